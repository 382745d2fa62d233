package moduledeps

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/roach88/swiftdriver/internal/ir"
)

// Modules maps each ID to its node. There is exactly one node per ID.
type Modules map[ID]*ModuleInfo

// SortedIDs returns the keys in ID order.
func (m Modules) SortedIDs() []ID {
	ids := make([]ID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Compare(ids[j]) < 0 })
	return ids
}

// Clone returns a deep copy.
func (m Modules) Clone() Modules {
	c := make(Modules, len(m))
	for id, info := range m {
		c[id] = info.Clone()
	}
	return c
}

// Graph is the module dependency graph of one main module.
type Graph struct {
	MainModuleName string
	Modules        Modules
}

// NewGraph returns an empty graph for main.
func NewGraph(main string) *Graph {
	return &Graph{MainModuleName: main, Modules: make(Modules)}
}

// MainModuleID returns the ID of the main module.
func (g *Graph) MainModuleID() ID {
	return Swift(g.MainModuleName)
}

// Module returns the node for id.
func (g *Graph) Module(id ID) (*ModuleInfo, bool) {
	info, ok := g.Modules[id]
	return info, ok
}

// Clone returns a deep copy.
func (g *Graph) Clone() *Graph {
	return &Graph{MainModuleName: g.MainModuleName, Modules: g.Modules.Clone()}
}

type graphJSON struct {
	MainModuleName string            `json:"mainModuleName"`
	Modules        []json.RawMessage `json:"modules"`
}

// MarshalJSON writes modules as an alternating id, info list in ID order.
func (g *Graph) MarshalJSON() ([]byte, error) {
	out := graphJSON{MainModuleName: g.MainModuleName, Modules: []json.RawMessage{}}
	for _, id := range g.Modules.SortedIDs() {
		rawID, err := json.Marshal(id)
		if err != nil {
			return nil, err
		}
		rawInfo, err := json.Marshal(g.Modules[id])
		if err != nil {
			return nil, fmt.Errorf("module %s: %w", id, err)
		}
		out.Modules = append(out.Modules, rawID, rawInfo)
	}
	return json.Marshal(out)
}

// UnmarshalJSON parses the alternating id, info list.
func (g *Graph) UnmarshalJSON(data []byte) error {
	var aux graphJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("module graph: %w", err)
	}
	if len(aux.Modules)%2 != 0 {
		return fmt.Errorf("module graph: modules list has odd length %d", len(aux.Modules))
	}

	modules := make(Modules, len(aux.Modules)/2)
	for i := 0; i < len(aux.Modules); i += 2 {
		var id ID
		if err := json.Unmarshal(aux.Modules[i], &id); err != nil {
			return fmt.Errorf("module graph entry %d: %w", i/2, err)
		}
		info := &ModuleInfo{}
		if err := json.Unmarshal(aux.Modules[i+1], info); err != nil {
			return fmt.Errorf("module graph entry %s: %w", id, err)
		}
		if info.Details.kind() != id.Kind {
			return fmt.Errorf("module graph entry %s: details are %s", id, info.Details.kind())
		}
		if _, dup := modules[id]; dup {
			return fmt.Errorf("module graph: duplicate module %s", id)
		}
		modules[id] = info
	}

	g.MainModuleName = aux.MainModuleName
	g.Modules = modules
	return nil
}

// Encode renders g as indented canonical JSON.
func Encode(g *Graph) ([]byte, error) {
	return ir.MarshalCanonicalIndent(g)
}

// Decode parses scanner output or the output of Encode.
func Decode(data []byte) (*Graph, error) {
	g := &Graph{}
	if err := json.Unmarshal(data, g); err != nil {
		return nil, err
	}
	return g, nil
}
