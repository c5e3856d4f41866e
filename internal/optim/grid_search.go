// Package optim searches coefficient grids for the setting that minimises a
// run metric, such as the constant dose that keeps the tumour burden lowest.
package optim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/san-kum/remodel/internal/dynamo"
	"github.com/san-kum/remodel/internal/experiment"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
)

// ErrMissingMetric is recorded for runs that did not report the searched metric.
var ErrMissingMetric = errors.New("optim: metric not reported")

// Point is one evaluated grid setting.
type Point struct {
	Params map[string]float64
	Value  float64
	Err    error
}

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
	parallel   int
}

func NewGridSearch(params []string, ranges [][]float64) (*GridSearch, error) {
	if len(params) == 0 {
		return nil, fmt.Errorf("%w: empty grid", dynamo.ErrParameterBounds)
	}
	if len(params) != len(ranges) {
		return nil, dynamo.DimensionError("ranges", len(ranges), len(params))
	}
	for i, r := range ranges {
		if len(r) == 0 {
			return nil, fmt.Errorf("%w: no values for %s", dynamo.ErrParameterBounds, params[i])
		}
	}
	return &GridSearch{paramNames: params, ranges: ranges, parallel: 1}, nil
}

// WithParallel caps the number of runs evaluated at once.
func (g *GridSearch) WithParallel(n int) *GridSearch {
	if n < 1 {
		n = 1
	}
	g.parallel = n
	return g
}

// Points enumerates the grid with the last parameter varying fastest.
func (g *GridSearch) Points() []map[string]float64 {
	var out []map[string]float64
	g.enumerate(0, make(map[string]float64), &out)
	return out
}

func (g *GridSearch) enumerate(depth int, current map[string]float64, out *[]map[string]float64) {
	if depth == len(g.paramNames) {
		p := make(map[string]float64, len(current))
		for k, v := range current {
			p[k] = v
		}
		*out = append(*out, p)
		return
	}
	name := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		current[name] = val
		g.enumerate(depth+1, current, out)
	}
	delete(current, name)
}

// Search runs one experiment per grid point and returns every point in
// enumeration order with the index of the lowest metric value, or -1 when no
// run succeeded. Runs that fail are recorded in their point; cancellation
// aborts the search.
func (g *GridSearch) Search(
	ctx context.Context,
	buildExperiment func(params map[string]float64) (*experiment.Experiment, error),
	metricName string,
) ([]Point, int, error) {
	settings := g.Points()
	points := make([]Point, len(settings))

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.parallel)
	for i, params := range settings {
		eg.Go(func() error {
			points[i] = Point{Params: params, Value: math.NaN()}
			exp, err := buildExperiment(params)
			if err != nil {
				points[i].Err = err
				return nil
			}
			result, err := exp.Run(ctx)
			if err != nil {
				if errors.Is(err, dynamo.ErrContextCanceled) || ctx.Err() != nil {
					return err
				}
				points[i].Err = err
				return nil
			}
			v, ok := result.Metrics[metricName]
			if !ok {
				points[i].Err = fmt.Errorf("%w: %s", ErrMissingMetric, metricName)
				return nil
			}
			points[i].Value = v
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return points, -1, err
	}

	best := -1
	for i, p := range points {
		if p.Err == nil && !math.IsNaN(p.Value) && (best < 0 || p.Value < points[best].Value) {
			best = i
		}
	}
	return points, best, nil
}

// ParseRange reads "name=v1,v2,..." or "name=min:max:steps".
func ParseRange(s string) (string, []float64, error) {
	name, spec, ok := strings.Cut(s, "=")
	if !ok || name == "" || spec == "" {
		return "", nil, fmt.Errorf("grid %q: want name=v1,v2 or name=min:max:steps", s)
	}

	if parts := strings.Split(spec, ":"); len(parts) == 3 {
		lo, err1 := strconv.ParseFloat(parts[0], 64)
		hi, err2 := strconv.ParseFloat(parts[1], 64)
		n, err3 := strconv.Atoi(parts[2])
		if err := errors.Join(err1, err2, err3); err != nil {
			return "", nil, fmt.Errorf("grid %q: %w", s, err)
		}
		if n < 2 {
			return "", nil, fmt.Errorf("%w: grid %q needs at least 2 steps", dynamo.ErrParameterBounds, s)
		}
		return name, floats.Span(make([]float64, n), lo, hi), nil
	}

	fields := strings.Split(spec, ",")
	values := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return "", nil, fmt.Errorf("grid %q: %w", s, err)
		}
		values[i] = v
	}
	return name, values, nil
}

// Ranked returns the successful points ordered by ascending value.
func Ranked(points []Point) []Point {
	out := make([]Point, 0, len(points))
	for _, p := range points {
		if p.Err == nil && !math.IsNaN(p.Value) {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Value < out[j].Value })
	return out
}
