package ortho

import (
	"fmt"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Outline returns the WGS84 ring through the grid's border nodes, walking
// the first line left to right, the last sample down, the last line back
// and the first sample up. The ring is closed.
func (g *Grid) Outline() orb.Ring {
	rows := len(g.Nodes)
	if rows == 0 || len(g.Nodes[0]) == 0 {
		return nil
	}
	cols := len(g.Nodes[0])

	var ring orb.Ring
	add := func(n Node) {
		p := orb.Point{n.Lon, n.Lat}
		if len(ring) > 0 && ring[len(ring)-1] == p {
			return
		}
		ring = append(ring, p)
	}
	for j := 0; j < cols; j++ {
		add(g.Nodes[0][j])
	}
	for i := 1; i < rows; i++ {
		add(g.Nodes[i][cols-1])
	}
	for j := cols - 2; j >= 0; j-- {
		add(g.Nodes[rows-1][j])
	}
	for i := rows - 2; i >= 0; i-- {
		add(g.Nodes[i][0])
	}
	if len(ring) > 0 && ring[0] != ring[len(ring)-1] {
		ring = append(ring, ring[0])
	}
	return ring
}

// FootprintGeoJSON encodes the grid outline as a FeatureCollection with a
// single polygon feature carrying props.
func FootprintGeoJSON(g *Grid, props map[string]any) ([]byte, error) {
	ring := g.Outline()
	if len(ring) == 0 {
		return nil, errEmptyGrid
	}
	f := geojson.NewFeature(orb.Polygon{ring})
	for k, v := range props {
		f.Properties[k] = v
	}
	b := ring.Bound()
	f.BBox = geojson.NewBBox(b)

	fc := geojson.NewFeatureCollection()
	fc.Append(f)
	return fc.MarshalJSON()
}

// WriteFootprint writes FootprintGeoJSON to path.
func WriteFootprint(path string, g *Grid, props map[string]any) error {
	data, err := FootprintGeoJSON(g, props)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing footprint %s: %w", path, err)
	}
	return nil
}
