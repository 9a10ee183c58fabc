package interp

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/kdtree"
)

// site is a horizontal grid point on the unit sphere.
type site struct {
	xyz [3]float64
	idx int
}

func newSite(lon, lat float64, idx int) site {
	phi := lat * math.Pi / 180
	lambda := lon * math.Pi / 180
	return site{
		xyz: [3]float64{
			math.Cos(phi) * math.Cos(lambda),
			math.Cos(phi) * math.Sin(lambda),
			math.Sin(phi),
		},
		idx: idx,
	}
}

func (s site) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	return s.xyz[d] - c.(site).xyz[d]
}

func (s site) Dims() int { return 3 }

func (s site) Distance(c kdtree.Comparable) float64 {
	q := c.(site)
	var sum float64
	for i := range s.xyz {
		d := s.xyz[i] - q.xyz[i]
		sum += d * d
	}
	return sum
}

type sites []site

func (p sites) Index(i int) kdtree.Comparable         { return p[i] }
func (p sites) Len() int                              { return len(p) }
func (p sites) Pivot(d kdtree.Dim) int                { return sitePlane{sites: p, Dim: d}.Pivot() }
func (p sites) Slice(start, end int) kdtree.Interface { return p[start:end] }

type sitePlane struct {
	kdtree.Dim
	sites
}

func (p sitePlane) Less(i, j int) bool { return p.sites[i].xyz[p.Dim] < p.sites[j].xyz[p.Dim] }
func (p sitePlane) Pivot() int         { return kdtree.Partition(p, kdtree.MedianOfRandoms(p, 100)) }
func (p sitePlane) Slice(start, end int) kdtree.SortSlicer {
	p.sites = p.sites[start:end]
	return p
}
func (p sitePlane) Swap(i, j int) { p.sites[i], p.sites[j] = p.sites[j], p.sites[i] }

// NearestIndex maps target grid points to their nearest source grid point
// by great-circle distance.
type NearestIndex struct {
	tree *kdtree.Tree
}

// NewNearestIndex builds a search tree over the source points. Points whose
// coordinates are not finite are left out.
func NewNearestIndex(lons, lats []float64) (*NearestIndex, error) {
	if len(lons) != len(lats) {
		return nil, fmt.Errorf("coordinate length mismatch: %d lons, %d lats", len(lons), len(lats))
	}
	pts := make(sites, 0, len(lons))
	for i := range lons {
		if math.IsNaN(lons[i]) || math.IsNaN(lats[i]) || math.IsInf(lons[i], 0) || math.IsInf(lats[i], 0) {
			continue
		}
		pts = append(pts, newSite(lons[i], lats[i], i))
	}
	if len(pts) == 0 {
		return nil, fmt.Errorf("no valid source coordinates")
	}
	return &NearestIndex{tree: kdtree.New(pts, false)}, nil
}

// Nearest returns the source index closest to (lon, lat).
func (n *NearestIndex) Nearest(lon, lat float64) int {
	c, _ := n.tree.Nearest(newSite(lon, lat, -1))
	return c.(site).idx
}

// Lookup resolves the nearest source index for every target point.
func (n *NearestIndex) Lookup(lons, lats []float64) []int {
	out := make([]int, len(lons))
	for i := range lons {
		out[i] = n.Nearest(lons[i], lats[i])
	}
	return out
}
