package factor

import (
	"context"
	"math"

	"github.com/montanaflynn/stats"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

// EvaluateAll evaluates every factor against values in parallel, with at most limit evaluations
// in flight (unbounded when limit <= 0). Results are in factor order.
func EvaluateAll(
	ctx context.Context,
	factors []*BoundingBoxFactor,
	values Values,
	wantJacobians bool,
	limit int,
) ([]Result, error) {
	results := make([]Result, len(factors))
	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, f := range factors {
		i, f := i, f
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := f.EvaluateValues(values, wantJacobians, wantJacobians)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Summary describes the residual norms of a batch of evaluations. Failed evaluations are counted
// but excluded from the statistics.
type Summary struct {
	Count       int
	Failures    int
	MeanNorm    float64
	MedianNorm  float64
	MaxNorm     float64
	TotalSquare float64
}

// Summarize computes a Summary of results.
func Summarize(results []Result) (Summary, error) {
	out := Summary{
		Count:    len(results),
		Failures: lo.CountBy(results, func(r Result) bool { return r.Failed() }),
	}
	valid := lo.Filter(results, func(r Result, _ int) bool { return !r.Failed() })
	if len(valid) == 0 {
		return out, nil
	}
	norms := stats.Float64Data(lo.Map(valid, func(r Result, _ int) float64 {
		var sum float64
		for _, v := range r.Residual {
			sum += v * v
		}
		return math.Sqrt(sum)
	}))

	var err error
	if out.MeanNorm, err = norms.Mean(); err != nil {
		return Summary{}, err
	}
	if out.MedianNorm, err = norms.Median(); err != nil {
		return Summary{}, err
	}
	if out.MaxNorm, err = norms.Max(); err != nil {
		return Summary{}, err
	}
	for _, n := range norms {
		out.TotalSquare += n * n
	}
	return out, nil
}
