package fim

import (
	"encoding/json"
	"math"

	"github.com/san-kum/fimlab/internal/maxent"
	"github.com/san-kum/fimlab/internal/perturb"
)

// Snapshot is the persisted state of an Analyzer.
type Snapshot struct {
	Variant   string            `json:"variant"`
	Direction perturb.Direction `json:"direction"`
	Model     maxent.Spec       `json:"model"`
	Eps       float64           `json:"eps"`
	DJ        []Row             `json:"dj"`
	Flags     []Flag            `json:"flags"`
}

// Row is one row of dJ. Non-finite entries, which mark failed solves,
// encode as JSON null and decode as NaN.
type Row []float64

func (r Row) MarshalJSON() ([]byte, error) {
	out := make([]*float64, len(r))
	for i := range r {
		if math.IsNaN(r[i]) || math.IsInf(r[i], 0) {
			continue
		}
		out[i] = &r[i]
	}
	return json.Marshal(out)
}

func (r *Row) UnmarshalJSON(data []byte) error {
	var in []*float64
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	row := make(Row, len(in))
	for i, v := range in {
		if v == nil {
			row[i] = math.NaN()
			continue
		}
		row[i] = *v
	}
	*r = row
	return nil
}
