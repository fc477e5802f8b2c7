package storage

import (
	"encoding/json"
	"io"
	"os"

	"gonum.org/v1/gonum/mat"
)

// Report is the exported summary of one analysis.
type Report struct {
	Run         RunMetadata `json:"run"`
	Eigenvalues []float64   `json:"eigenvalues,omitempty"`
	// Eigenvectors are stored column by column.
	Eigenvectors [][]float64 `json:"eigenvectors,omitempty"`
	Warnings     []string    `json:"warnings,omitempty"`
}

func NewReport(meta RunMetadata, values []float64, vectors mat.Matrix, warnings []string) Report {
	r := Report{Run: meta, Eigenvalues: values, Warnings: warnings}
	if vectors != nil {
		_, c := vectors.Dims()
		r.Eigenvectors = make([][]float64, c)
		for j := 0; j < c; j++ {
			r.Eigenvectors[j] = mat.Col(nil, j, vectors)
		}
	}
	return r
}

func ExportJSON(path string, r Report) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return WriteReport(file, r)
}

func WriteReport(w io.Writer, r Report) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(r)
}
