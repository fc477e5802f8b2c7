package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/san-kum/fimlab/internal/fim"
	"gonum.org/v1/gonum/mat"
)

var ErrNotFound = errors.New("storage: run not found")

const (
	metadataFile = "metadata.json"
	snapshotFile = "snapshot.json"
	hessianFile  = "hessian.csv"
)

// Store keeps one directory per run under baseDir.
type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

func (s *Store) Dir() string { return s.baseDir }

type RunMetadata struct {
	ID        string    `json:"id"`
	Variant   string    `json:"variant"`
	Kind      string    `json:"kind"`
	N         int       `json:"n"`
	Eps       float64   `json:"eps"`
	Timestamp time.Time `json:"timestamp"`
	// Flagged counts rows whose solve was not clean.
	Flagged int               `json:"flagged"`
	Hessian *HessianMetadata  `json:"hessian,omitempty"`
	Labels  map[string]string `json:"labels,omitempty"`
}

type HessianMetadata struct {
	Mode      string  `json:"mode"`
	Precision string  `json:"precision"`
	Eps       float64 `json:"eps"`
	Converged bool    `json:"converged"`
	Residual  float64 `json:"residual"`
}

// Save writes a new run holding snap and returns its ID.
func (s *Store) Save(snap fim.Snapshot, labels map[string]string) (string, error) {
	runID := uuid.NewString()
	runDir := filepath.Join(s.baseDir, runID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta := RunMetadata{
		ID:        runID,
		Variant:   snap.Variant,
		Kind:      snap.Model.Kind,
		N:         modelSize(snap),
		Eps:       snap.Eps,
		Timestamp: time.Now(),
		Labels:    labels,
	}
	for _, f := range snap.Flags {
		if f != fim.FlagOK {
			meta.Flagged++
		}
	}

	if err := writeJSON(filepath.Join(runDir, snapshotFile), snap); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, metadataFile), meta); err != nil {
		return "", err
	}
	return runID, nil
}

func modelSize(snap fim.Snapshot) int {
	k := snap.Model.K
	if k < 2 {
		k = 1
	}
	return len(snap.Model.H) / k
}

// List returns every readable run, newest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].Timestamp.After(runs[j].Timestamp)
	})
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	var meta RunMetadata
	if err := s.readJSON(runID, metadataFile, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (s *Store) LoadSnapshot(runID string) (*fim.Snapshot, error) {
	var snap fim.Snapshot
	if err := s.readJSON(runID, snapshotFile, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// SaveHessian stores h as CSV next to the run's snapshot and records how it
// was computed.
func (s *Store) SaveHessian(runID string, h mat.Matrix, info HessianMetadata) error {
	meta, err := s.Load(runID)
	if err != nil {
		return err
	}

	csvFile, err := os.Create(filepath.Join(s.baseDir, runID, hessianFile))
	if err != nil {
		return err
	}
	defer csvFile.Close()

	r, c := h.Dims()
	w := csv.NewWriter(csvFile)
	row := make([]string, c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			row[j] = strconv.FormatFloat(h.At(i, j), 'g', -1, 64)
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}

	meta.Hessian = &info
	return writeJSON(filepath.Join(s.baseDir, runID, metadataFile), meta)
}

func (s *Store) LoadHessian(runID string) (*mat.Dense, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, hessianFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s has no hessian", ErrNotFound, runID)
		}
		return nil, err
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("storage: %s: empty hessian", runID)
	}

	h := mat.NewDense(len(records), len(records[0]), nil)
	for i, record := range records {
		for j, field := range record {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("storage: %s: hessian[%d][%d]: %w", runID, i, j, err)
			}
			h.Set(i, j, v)
		}
	}
	return h, nil
}

func (s *Store) readJSON(runID, name string, v any) error {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, runID)
		}
		return err
	}
	return json.Unmarshal(data, v)
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
