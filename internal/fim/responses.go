package fim

import (
	"context"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// LinearResponses solves every target of the solver's variant at eps and
// stacks the rows into dJ. Rows are solved concurrently on at most workers
// goroutines; workers <= 0 uses one per CPU.
func (s *Solver) LinearResponses(ctx context.Context, eps float64, workers int) (*mat.Dense, []Flag, error) {
	targets := s.variant.Targets()
	cols := s.variant.Model().ParamCount()
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make([]Result, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for r, t := range targets {
		r, t := r, t
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if s.opts.Adaptive {
				results[r] = s.Search(t, eps)
			} else {
				results[r] = s.Solve(t, eps)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	dJ := mat.NewDense(len(targets), cols, nil)
	flags := make([]Flag, len(targets))
	flagged := 0
	for r, res := range results {
		dJ.SetRow(r, res.DJ)
		flags[r] = res.Flag
		if res.Flag != FlagOK {
			flagged++
			s.logger.Warn("linear response flagged",
				zap.String("variant", s.variant.Name()),
				zap.Stringer("target", res.Target),
				zap.Stringer("flag", res.Flag),
				zap.Float64("eps", res.Eps),
				zap.Float64("cond", res.Cond))
		}
	}
	s.logger.Info("linear responses computed",
		zap.String("variant", s.variant.Name()),
		zap.Int("rows", len(targets)),
		zap.Int("flagged", flagged))
	return dJ, flags, nil
}
