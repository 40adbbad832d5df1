package hierarchy

import (
	"fmt"
	"sort"
	"strings"

	"github.com/diwise/water-network/pkg/types"
	"github.com/samber/lo"
)

var ErrPathNotFound = fmt.Errorf("hierarchy path not found")

// Depth is the number of administrative levels, country through habitation.
const Depth int = 5

const MinQueryLength int = 2

// Bucket lists the entities registered at a habitation.
type Bucket struct {
	Devices   []string `json:"devices"`
	GateWalls []string `json:"gateWalls"`
}

type node struct {
	children map[string]*node
	bucket   *Bucket
}

func newNode() *node {
	return &node{children: map[string]*node{}}
}

// Index groups devices and gate walls by administrative path.
type Index struct {
	root *node
}

func New() *Index {
	return &Index{root: newNode()}
}

// Rebuild discards the current tree and builds a new one from scratch.
func (idx *Index) Rebuild(devices []*types.Device, gateWalls []*types.GateWall) {
	idx.root = newNode()

	for _, d := range devices {
		b := idx.bucket(d.AdministrativePath.Levels())
		b.Devices = append(b.Devices, d.ID)
	}

	for _, g := range gateWalls {
		b := idx.bucket(g.AdministrativePath.Levels())
		b.GateWalls = append(b.GateWalls, g.ID)
	}
}

func (idx *Index) bucket(levels []string) *Bucket {
	n := idx.root
	for _, level := range levels {
		child, ok := n.children[level]
		if !ok {
			child = newNode()
			n.children[level] = child
		}
		n = child
	}

	if n.bucket == nil {
		n.bucket = &Bucket{Devices: []string{}, GateWalls: []string{}}
	}

	return n.bucket
}

func (idx *Index) find(path []string) (*node, error) {
	n := idx.root
	for _, level := range path {
		child, ok := n.children[level]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrPathNotFound, strings.Join(path, "/"))
		}
		n = child
	}
	return n, nil
}

// Query returns the sorted keys of the level below prefix. An empty prefix
// lists the countries and a full path to a habitation has no keys.
func (idx *Index) Query(prefix ...string) ([]string, error) {
	if len(prefix) > Depth {
		return nil, fmt.Errorf("%w: %s is below habitation level", ErrPathNotFound, strings.Join(prefix, "/"))
	}

	n, err := idx.find(prefix)
	if err != nil {
		return nil, err
	}

	keys := lo.Keys(n.children)
	sort.Strings(keys)

	return keys, nil
}

// Leaf returns the bucket at a full country to habitation path.
func (idx *Index) Leaf(path ...string) (Bucket, error) {
	if len(path) != Depth {
		return Bucket{}, fmt.Errorf("%w: expected %d levels, got %d", ErrPathNotFound, Depth, len(path))
	}

	n, err := idx.find(path)
	if err != nil {
		return Bucket{}, err
	}

	return Bucket{
		Devices:   append([]string{}, n.bucket.Devices...),
		GateWalls: append([]string{}, n.bucket.GateWalls...),
	}, nil
}

// Result is a single search hit.
type Result struct {
	Type     string `json:"type"`
	ID       string `json:"id"`
	Name     string `json:"name"`
	Location string `json:"location"`
}

// Search matches query case-insensitively against names, ids and the lower
// administrative levels. Devices come first, then gate walls, then pipelines.
func Search(query string, devices []*types.Device, gateWalls []*types.GateWall, pipelines []*types.Pipeline) []Result {
	results := []Result{}

	if len([]rune(query)) < MinQueryLength {
		return results
	}

	q := strings.ToLower(query)
	matches := func(fields ...string) bool {
		return lo.SomeBy(fields, func(f string) bool {
			return f != "" && strings.Contains(strings.ToLower(f), q)
		})
	}

	for _, d := range devices {
		if matches(d.Name, d.ID, d.Habitation, d.Mandal, d.District) {
			results = append(results, Result{Type: types.EntityDevice, ID: d.ID, Name: d.Name, Location: locationOf(d.AdministrativePath)})
		}
	}

	for _, g := range gateWalls {
		if matches(g.Name, g.ID, g.Habitation, g.Mandal, g.District) {
			results = append(results, Result{Type: types.EntityGateWall, ID: g.ID, Name: g.Name, Location: locationOf(g.AdministrativePath)})
		}
	}

	for _, p := range pipelines {
		if matches(p.Name, p.ID) {
			results = append(results, Result{Type: types.EntityPipeline, ID: p.ID, Name: p.Name, Location: "N/A"})
		}
	}

	return results
}

func locationOf(p types.AdministrativePath) string {
	for _, s := range []string{p.Habitation, p.Mandal, p.District} {
		if s != "" {
			return s
		}
	}
	return "N/A"
}
