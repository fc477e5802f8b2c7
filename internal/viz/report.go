package viz

import (
	"fmt"
	"math"
	"strings"

	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/fimlab/internal/analysis"
	"github.com/san-kum/fimlab/internal/fim"
	"github.com/san-kum/fimlab/internal/storage"
	"gonum.org/v1/gonum/mat"
)

// Renderer formats results as styled terminal text.
type Renderer struct {
	styles Styles
	width  int
}

func NewRenderer(t Theme, width int) *Renderer {
	if width < 20 {
		width = 60
	}
	return &Renderer{styles: NewStyles(t), width: width}
}

func (r *Renderer) Styles() Styles { return r.styles }

func (r *Renderer) flag(f fim.Flag) string {
	switch f {
	case fim.FlagOK:
		return r.styles.OK.Render(f.String())
	case fim.FlagUnstable:
		return r.styles.Warn.Render(f.String())
	}
	return r.styles.Bad.Render(f.String())
}

// Responses summarizes the per-row flags of a linear response run and lists
// every row that was not clean.
func (r *Renderer) Responses(variant string, targets []fim.Target, flags []fim.Flag) string {
	counts := map[fim.Flag]int{}
	for _, f := range flags {
		counts[f]++
	}

	var b strings.Builder
	b.WriteString(r.styles.Title.Render("linear responses: "+variant) + "\n")
	for _, f := range []fim.Flag{fim.FlagOK, fim.FlagIllConditioned, fim.FlagUnstable} {
		fmt.Fprintf(&b, "  %s %s\n", r.styles.Label.Render(fmt.Sprintf("%-18s", f.String())), r.styles.Value.Render(fmt.Sprint(counts[f])))
	}
	for i, f := range flags {
		if f == fim.FlagOK || i >= len(targets) {
			continue
		}
		fmt.Fprintf(&b, "  %s %s\n", r.styles.Subtle.Render(targets[i].String()), r.flag(f))
	}
	return b.String()
}

// Spectrum plots eigenvalues in decreasing order and lists the warnings of
// the decomposition.
func (r *Renderer) Spectrum(values []float64, report analysis.Report) string {
	var b strings.Builder
	b.WriteString(r.styles.Title.Render("eigenvalues") + "\n")
	if len(values) == 0 {
		b.WriteString(r.styles.Subtle.Render("  (none)") + "\n")
		return b.String()
	}

	for i, v := range values {
		style := r.styles.Value
		if v < 0 {
			style = r.styles.Bad
		}
		fmt.Fprintf(&b, "  %s %s\n", r.styles.Label.Render(fmt.Sprintf("λ%-3d", i)), style.Render(fmt.Sprintf("% .6e", v)))
	}

	opts := []asciigraph.Option{asciigraph.Height(8), asciigraph.Caption("spectrum")}
	if len(values) > 1 {
		opts = append(opts, asciigraph.Width(r.width))
	}
	b.WriteString(asciigraph.Plot(values, opts...) + "\n")

	for _, w := range report.Warnings {
		b.WriteString(r.styles.Warn.Render("! "+w) + "\n")
	}
	return b.String()
}

// Matrix draws h as a heat map of |h_ij| scaled to the largest entry.
func (r *Renderer) Matrix(title string, h mat.Matrix) string {
	rows, cols := h.Dims()
	scale := 0.0
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			scale = math.Max(scale, math.Abs(h.At(i, j)))
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", r.styles.Title.Render(title), r.styles.Subtle.Render(fmt.Sprintf("%dx%d max %.3g", rows, cols, scale)))
	for i := 0; i < rows; i++ {
		b.WriteString("  ")
		for j := 0; j < cols; j++ {
			b.WriteString(r.styles.Heat(h.At(i, j), scale))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// Rates lists majority log-probability rates, one line per spin.
func (r *Renderer) Rates(rates [][]float64) string {
	var b strings.Builder
	b.WriteString(r.styles.Title.Render("d log2 p(k) per spin") + "\n")
	for i, row := range rates {
		parts := make([]string, len(row))
		for c, v := range row {
			parts[c] = fmt.Sprintf("% .3e", v)
		}
		fmt.Fprintf(&b, "  %s %s\n", r.styles.Label.Render(fmt.Sprintf("spin %-3d", i)), strings.Join(parts, " "))
	}
	return b.String()
}

// Runs renders the run listing.
func (r *Renderer) Runs(runs []storage.RunMetadata) string {
	if len(runs) == 0 {
		return r.styles.Subtle.Render("no runs") + "\n"
	}
	var b strings.Builder
	b.WriteString(r.styles.Header.Render(fmt.Sprintf("%-36s  %-22s  %-6s  %3s  %-19s  %s", "id", "variant", "kind", "n", "created", "hessian")) + "\n")
	for _, run := range runs {
		h := r.styles.Subtle.Render("-")
		if run.Hessian != nil {
			style := r.styles.OK
			if !run.Hessian.Converged {
				style = r.styles.Warn
			}
			h = style.Render(run.Hessian.Mode)
		}
		id := run.ID
		if run.Flagged > 0 {
			id = r.styles.Warn.Render(id)
		}
		fmt.Fprintf(&b, "%-36s  %-22s  %-6s  %3d  %-19s  %s\n", id, run.Variant, run.Kind, run.N, run.Timestamp.Format("2006-01-02 15:04:05"), h)
	}
	return b.String()
}
