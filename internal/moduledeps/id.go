package moduledeps

import (
	"cmp"
	"encoding/json"
	"fmt"
	"sort"
)

// Kind is the variant of a module ID.
type Kind string

const (
	KindSwift                 Kind = "swift"
	KindSwiftPrebuiltExternal Kind = "swiftPrebuiltExternal"
	KindSwiftPlaceholder      Kind = "swiftPlaceholder"
	KindClang                 Kind = "clang"
)

var kindRank = map[Kind]int{
	KindSwift:                 0,
	KindSwiftPrebuiltExternal: 1,
	KindSwiftPlaceholder:      2,
	KindClang:                 3,
}

func (k Kind) valid() bool {
	_, ok := kindRank[k]
	return ok
}

// IsSwift reports whether k is one of the Swift variants.
func (k Kind) IsSwift() bool {
	return k == KindSwift || k == KindSwiftPrebuiltExternal || k == KindSwiftPlaceholder
}

// ID identifies a module node.
type ID struct {
	Kind Kind
	Name string
}

// Swift returns the ID of a Swift module built from source or interface.
func Swift(name string) ID { return ID{Kind: KindSwift, Name: name} }

// Prebuilt returns the ID of a prebuilt Swift module.
func Prebuilt(name string) ID { return ID{Kind: KindSwiftPrebuiltExternal, Name: name} }

// Placeholder returns the ID of an unresolved Swift module.
func Placeholder(name string) ID { return ID{Kind: KindSwiftPlaceholder, Name: name} }

// Clang returns the ID of a Clang module.
func Clang(name string) ID { return ID{Kind: KindClang, Name: name} }

func (id ID) String() string {
	return fmt.Sprintf("%s:%s", id.Kind, id.Name)
}

// Compare orders by name, then variant.
func (id ID) Compare(o ID) int {
	if c := cmp.Compare(id.Name, o.Name); c != 0 {
		return c
	}
	return cmp.Compare(kindRank[id.Kind], kindRank[o.Kind])
}

// MarshalJSON renders {"<kind>": "<name>"}.
func (id ID) MarshalJSON() ([]byte, error) {
	if !id.Kind.valid() {
		return nil, fmt.Errorf("invalid module id kind %q", id.Kind)
	}
	return json.Marshal(map[string]string{string(id.Kind): id.Name})
}

// UnmarshalJSON parses {"<kind>": "<name>"}.
func (id *ID) UnmarshalJSON(data []byte) error {
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("module id: %w", err)
	}
	if len(m) != 1 {
		return fmt.Errorf("module id: expected exactly one key, got %d", len(m))
	}
	for k, v := range m {
		kind := Kind(k)
		if !kind.valid() {
			return fmt.Errorf("module id: unknown kind %q", k)
		}
		*id = ID{Kind: kind, Name: v}
	}
	return nil
}

// IDSet is a set of module IDs.
type IDSet map[ID]struct{}

// Add inserts id.
func (s IDSet) Add(id ID) { s[id] = struct{}{} }

// Has reports whether id is present.
func (s IDSet) Has(id ID) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the members in ID order.
func (s IDSet) Sorted() []ID {
	ids := make([]ID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Compare(ids[j]) < 0 })
	return ids
}
