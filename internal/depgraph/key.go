package depgraph

import (
	"cmp"
	"fmt"
)

// KeyKind is the category of a dependency fact.
type KeyKind string

const (
	KindTopLevel        KeyKind = "top-level"
	KindNominal         KeyKind = "nominal"
	KindMember          KeyKind = "member"
	KindPotentialMember KeyKind = "potential-member"
	KindDynamicLookup   KeyKind = "dynamic-lookup"
	KindExternal        KeyKind = "external"
)

var kindOrder = map[KeyKind]int{
	KindTopLevel:        0,
	KindNominal:         1,
	KindPotentialMember: 2,
	KindMember:          3,
	KindDynamicLookup:   4,
	KindExternal:        5,
}

// Key names one dependency fact.
//
// Context is the enclosing nominal type for nominal, member and
// potential-member keys. Name is empty for nominal and potential-member
// keys. External keys carry a file path in Name.
type Key struct {
	Kind    KeyKind `json:"kind"`
	Context string  `json:"context,omitempty"`
	Name    string  `json:"name,omitempty"`
}

func (k Key) String() string {
	switch k.Kind {
	case KindNominal:
		return fmt.Sprintf("nominal(%s)", k.Context)
	case KindPotentialMember:
		return fmt.Sprintf("potential-member(%s)", k.Context)
	case KindMember:
		return fmt.Sprintf("member(%s.%s)", k.Context, k.Name)
	}
	return fmt.Sprintf("%s(%s)", k.Kind, k.Name)
}

// Compare orders keys by kind, then context, then name.
func (k Key) Compare(o Key) int {
	if c := cmp.Compare(kindOrder[k.Kind], kindOrder[o.Kind]); c != 0 {
		return c
	}
	if c := cmp.Compare(k.Context, o.Context); c != 0 {
		return c
	}
	return cmp.Compare(k.Name, o.Name)
}

// TopLevel returns a top-level key.
func TopLevel(name string) Key { return Key{Kind: KindTopLevel, Name: name} }

// Nominal returns a nominal type key.
func Nominal(typeName string) Key { return Key{Kind: KindNominal, Context: typeName} }

// Member returns a member key.
func Member(typeName, member string) Key {
	return Key{Kind: KindMember, Context: typeName, Name: member}
}

// PotentialMember returns the key for "some member of typeName".
func PotentialMember(typeName string) Key {
	return Key{Kind: KindPotentialMember, Context: typeName}
}

// DynamicLookup returns a dynamic-lookup key.
func DynamicLookup(name string) Key { return Key{Kind: KindDynamicLookup, Name: name} }

// External returns the key for a dependency on a file outside the module.
func External(path string) Key { return Key{Kind: KindExternal, Name: path} }
