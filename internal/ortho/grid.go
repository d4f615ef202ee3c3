// Package ortho builds sparse geolocation grids from an RPC model and
// estimates the affine georeference of an unwarped scene.
package ortho

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/pspoerri/rpcortho/internal/metrics"
	"github.com/pspoerri/rpcortho/internal/rpc"
)

// GridConfig describes which pixels are inverted.
type GridConfig struct {
	Width       int // image width in samples
	Height      int // image height in lines
	Spacing     int // pixels between grid nodes
	Concurrency int // inversion workers; defaults to NumCPU
	Progress    bool
}

// Node is one inverted pixel.
type Node struct {
	Line, Sample float64
	Lat, Lon     float64
	Height       float64
	X, Y         float64 // target CRS, set by Grid.Reproject
	Iterations   int
	Converged    bool
	Degenerate   bool
}

// Grid holds inverted nodes in row-major order: Nodes[i][j] is the node at
// line Lines[i] and sample Samples[j].
type Grid struct {
	Lines   []int
	Samples []int
	Nodes   [][]Node
	EPSG    int // CRS of X/Y; 0 until reprojected
}

// GridStats summarises solver outcomes over a grid.
type GridStats struct {
	Nodes        int
	NotConverged int
	Degenerate   int
}

// Reprojector converts batches of WGS84 longitudes and latitudes into a
// target CRS. *coord.Reprojector implements it.
type Reprojector interface {
	Forward(lons, lats [][]float64) (xs, ys [][]float64, err error)
	EPSG() int
}

// gridIndices returns 0, s, 2s, ... below n. When s >= n that would leave
// a single index and no extent along the axis, so the last pixel n-1 is
// added.
func gridIndices(n, s int) []int {
	idx := make([]int, 0, (n+s-1)/s+1)
	for i := 0; i < n; i += s {
		idx = append(idx, i)
	}
	if len(idx) == 1 && n > 1 {
		idx = append(idx, n-1)
	}
	return idx
}

// BuildGrid inverts every grid node of the image with solver, using height
// for terrain. Nodes are computed concurrently; the result does not depend
// on the concurrency.
func BuildGrid(ctx context.Context, cfg GridConfig, solver *rpc.Solver, height rpc.HeightFunc) (*Grid, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("invalid image size %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.Spacing <= 0 {
		return nil, fmt.Errorf("invalid grid spacing %d", cfg.Spacing)
	}
	workers := cfg.Concurrency
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	g := &Grid{
		Lines:   gridIndices(cfg.Height, cfg.Spacing),
		Samples: gridIndices(cfg.Width, cfg.Spacing),
	}
	g.Nodes = make([][]Node, len(g.Lines))
	for i := range g.Nodes {
		g.Nodes[i] = make([]Node, len(g.Samples))
	}
	total := len(g.Lines) * len(g.Samples)
	metrics.GridNodes.Set(float64(total))

	var pb *progressBar
	if cfg.Progress {
		pb = newProgressBar("Inverting", int64(total))
	}

	method := solver.Method.String()
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for i := range g.Lines {
		row := g.Nodes[i]
		line := float64(g.Lines[i])
		eg.Go(func() error {
			for j, s := range g.Samples {
				if err := egCtx.Err(); err != nil {
					return err
				}
				res := solver.Solve(line, float64(s), height)
				row[j] = Node{
					Line:       line,
					Sample:     float64(s),
					Lat:        res.Lat,
					Lon:        res.Lon,
					Height:     res.Height,
					Iterations: res.Iterations,
					Converged:  res.Converged,
					Degenerate: res.Degenerate,
				}
				recordInversion(method, res)
				pb.Increment()
			}
			return nil
		})
	}
	err := eg.Wait()
	pb.Finish()
	if err != nil {
		return nil, err
	}
	return g, nil
}

func recordInversion(method string, res rpc.Result) {
	outcome := metrics.OutcomeNotConverged
	switch {
	case res.Degenerate:
		outcome = metrics.OutcomeDegenerate
	case res.Converged:
		outcome = metrics.OutcomeConverged
	}
	metrics.Inversions.WithLabelValues(method, outcome).Inc()
	metrics.SolverIterations.WithLabelValues(method).Observe(float64(res.Iterations))
}

// Len returns the number of nodes.
func (g *Grid) Len() int {
	if len(g.Nodes) == 0 {
		return 0
	}
	return len(g.Nodes) * len(g.Nodes[0])
}

// Stats counts solver outcomes.
func (g *Grid) Stats() GridStats {
	var s GridStats
	for _, row := range g.Nodes {
		for _, n := range row {
			s.Nodes++
			if n.Degenerate {
				s.Degenerate++
			}
			if !n.Converged {
				s.NotConverged++
			}
		}
	}
	return s
}

// LonLat returns the node coordinates as two row-major arrays.
func (g *Grid) LonLat() (lons, lats [][]float64) {
	lons = make([][]float64, len(g.Nodes))
	lats = make([][]float64, len(g.Nodes))
	for i, row := range g.Nodes {
		lons[i] = make([]float64, len(row))
		lats[i] = make([]float64, len(row))
		for j, n := range row {
			lons[i][j], lats[i][j] = n.Lon, n.Lat
		}
	}
	return lons, lats
}

// Reproject converts all nodes into r's CRS in one batch.
func (g *Grid) Reproject(r Reprojector) error {
	lons, lats := g.LonLat()
	xs, ys, err := r.Forward(lons, lats)
	if err != nil {
		return err
	}
	if len(xs) != len(g.Nodes) || len(ys) != len(g.Nodes) {
		return fmt.Errorf("reprojection returned %d/%d rows for %d", len(xs), len(ys), len(g.Nodes))
	}
	for i, row := range g.Nodes {
		if len(xs[i]) != len(row) || len(ys[i]) != len(row) {
			return fmt.Errorf("reprojection row %d has %d/%d values for %d", i, len(xs[i]), len(ys[i]), len(row))
		}
		for j := range row {
			row[j].X, row[j].Y = xs[i][j], ys[i][j]
		}
	}
	g.EPSG = r.EPSG()
	return nil
}
