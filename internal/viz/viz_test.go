package viz

import (
	"strings"
	"testing"
	"time"

	"github.com/san-kum/fimlab/internal/analysis"
	"github.com/san-kum/fimlab/internal/fim"
	"github.com/san-kum/fimlab/internal/storage"
	"gonum.org/v1/gonum/mat"
)

func TestGetTheme(t *testing.T) {
	if got := GetTheme("paper"); got.Name != "paper" {
		t.Errorf("expected paper, got %s", got.Name)
	}
	if got := GetTheme("nope"); got.Name != ThemeTerminal.Name {
		t.Errorf("expected fallback theme, got %s", got.Name)
	}
	if len(ThemeNames()) != len(Themes) {
		t.Error("theme names out of sync")
	}
}

func TestResponsesListsFlaggedRows(t *testing.T) {
	r := NewRenderer(ThemeMinimal, 40)
	targets := []fim.Target{{I: 0, A: 1, State: -1}, {I: 1, A: 0, State: -1}}
	out := r.Responses("coupling", targets, []fim.Flag{fim.FlagOK, fim.FlagUnstable})

	if !strings.Contains(out, "coupling") {
		t.Error("missing variant name")
	}
	if !strings.Contains(out, targets[1].String()) {
		t.Error("flagged row not listed")
	}
	if strings.Contains(out, targets[0].String()) {
		t.Error("clean row should not be listed")
	}
}

func TestSpectrum(t *testing.T) {
	r := NewRenderer(ThemeMinimal, 40)
	out := r.Spectrum([]float64{3, 1, -0.5}, analysis.Report{Warnings: []string{"1 negative eigenvalue"}})
	if !strings.Contains(out, "spectrum") {
		t.Error("missing plot caption")
	}
	if !strings.Contains(out, "negative") {
		t.Error("missing warning")
	}
	if out := r.Spectrum([]float64{2}, analysis.Report{}); !strings.Contains(out, "λ0") {
		t.Error("single value not rendered")
	}
	if out := r.Spectrum(nil, analysis.Report{}); !strings.Contains(out, "none") {
		t.Error("empty spectrum not reported")
	}
}

func TestMatrixHasOneLinePerRow(t *testing.T) {
	r := NewRenderer(ThemeMinimal, 40)
	out := r.Matrix("H", mat.NewDense(3, 3, []float64{1, 0, 0, 0, -2, 0, 0, 0, 0}))
	if lines := strings.Count(out, "\n"); lines != 4 {
		t.Errorf("expected 4 lines, got %d", lines)
	}
	if !strings.Contains(out, "max 2") {
		t.Error("missing scale")
	}
}

func TestRuns(t *testing.T) {
	r := NewRenderer(ThemeMinimal, 40)
	if out := r.Runs(nil); !strings.Contains(out, "no runs") {
		t.Error("empty listing not reported")
	}
	out := r.Runs([]storage.RunMetadata{{
		ID: "abc", Variant: "coupling", Kind: "ising", N: 4, Timestamp: time.Unix(0, 0),
		Hessian: &storage.HessianMetadata{Mode: "majority", Converged: true},
	}})
	if !strings.Contains(out, "abc") || !strings.Contains(out, "majority") {
		t.Errorf("run row incomplete:\n%s", out)
	}
}

func TestProgressBarWidth(t *testing.T) {
	s := NewStyles(ThemeMinimal)
	for _, f := range []float64{-1, 0, 0.5, 1, 2} {
		bar := s.ProgressBar(f, 10)
		if n := strings.Count(bar, "█") + strings.Count(bar, "░"); n != 10 {
			t.Errorf("fraction %v: %d cells", f, n)
		}
	}
}
