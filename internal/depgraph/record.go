package depgraph

import (
	"fmt"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// privateTag marks a depends entry as non-cascading.
const privateTag = "!private"

// Provide is a fact a file makes visible to the rest of the module.
type Provide struct {
	Key         Key    `json:"key"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

// Depend is a fact a file uses.
type Depend struct {
	Key       Key  `json:"key"`
	Cascading bool `json:"cascading"`
}

// Record is the parsed form of one swiftdeps file.
type Record struct {
	InterfaceHash string    `json:"interfaceHash,omitempty"`
	Provides      []Provide `json:"provides,omitempty"`
	Depends       []Depend  `json:"depends,omitempty"`
}

// ParseError reports a malformed dependency record.
type ParseError struct {
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("dependency record line %d: %s", e.Line, e.Message)
	}
	return "dependency record: " + e.Message
}

type section struct {
	provides bool
	kind     KeyKind
}

var sections = map[string]section{
	"provides-top-level":      {true, KindTopLevel},
	"provides-nominal":        {true, KindNominal},
	"provides-member":         {true, KindMember},
	"provides-dynamic-lookup": {true, KindDynamicLookup},
	"depends-top-level":       {false, KindTopLevel},
	"depends-nominal":         {false, KindNominal},
	"depends-member":          {false, KindMember},
	"depends-dynamic-lookup":  {false, KindDynamicLookup},
	"depends-external":        {false, KindExternal},
}

// ParseRecord parses a swiftdeps document.
//
// Provides without an explicit fingerprint inherit the record's
// interface hash. Entries and duplicates are normalized so that two
// records describing the same facts compare equal.
func ParseRecord(data []byte) (*Record, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse dependency record: %w", err)
	}
	rec := &Record{}
	if len(doc.Content) == 0 {
		return rec, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, &ParseError{Line: root.Line, Message: "expected a mapping at top level"}
	}

	for i := 0; i+1 < len(root.Content); i += 2 {
		k, v := root.Content[i], root.Content[i+1]
		if k.Value == "interface-hash" {
			if v.Kind != yaml.ScalarNode {
				return nil, &ParseError{Line: v.Line, Message: "interface-hash must be a scalar"}
			}
			rec.InterfaceHash = v.Value
			continue
		}
		sec, ok := sections[k.Value]
		if !ok {
			return nil, &ParseError{Line: k.Line, Message: fmt.Sprintf("unknown section %q", k.Value)}
		}
		if err := rec.parseSection(sec, v); err != nil {
			return nil, err
		}
	}

	for i := range rec.Provides {
		if rec.Provides[i].Fingerprint == "" {
			rec.Provides[i].Fingerprint = rec.InterfaceHash
		}
	}
	rec.normalize()
	return rec, nil
}

func (r *Record) parseSection(sec section, v *yaml.Node) error {
	switch v.Kind {
	case yaml.ScalarNode:
		if v.Tag == "!!null" {
			return nil
		}
		return &ParseError{Line: v.Line, Message: "expected a list or mapping"}
	case yaml.MappingNode:
		if !sec.provides || sec.kind == KindMember {
			return &ParseError{Line: v.Line, Message: "mapping form is only valid for non-member provides"}
		}
		for i := 0; i+1 < len(v.Content); i += 2 {
			name, fp := v.Content[i], v.Content[i+1]
			if name.Kind != yaml.ScalarNode || fp.Kind != yaml.ScalarNode {
				return &ParseError{Line: name.Line, Message: "mapping entries must be scalars"}
			}
			r.Provides = append(r.Provides, Provide{Key: scalarKey(sec.kind, name.Value), Fingerprint: fp.Value})
		}
		return nil
	case yaml.SequenceNode:
		for _, item := range v.Content {
			key, fp, err := parseEntry(sec.kind, item)
			if err != nil {
				return err
			}
			if sec.provides {
				r.Provides = append(r.Provides, Provide{Key: key, Fingerprint: fp})
			} else {
				r.Depends = append(r.Depends, Depend{Key: key, Cascading: item.Tag != privateTag})
			}
		}
		return nil
	}
	return &ParseError{Line: v.Line, Message: "unexpected node"}
}

func parseEntry(kind KeyKind, item *yaml.Node) (Key, string, error) {
	if kind != KindMember {
		if item.Kind != yaml.ScalarNode {
			return Key{}, "", &ParseError{Line: item.Line, Message: fmt.Sprintf("%s entry must be a scalar", kind)}
		}
		return scalarKey(kind, item.Value), "", nil
	}

	if item.Kind != yaml.SequenceNode || len(item.Content) < 2 || len(item.Content) > 3 {
		return Key{}, "", &ParseError{Line: item.Line, Message: "member entry must be [type, member] or [type, member, fingerprint]"}
	}
	parts := make([]string, len(item.Content))
	for i, c := range item.Content {
		if c.Kind != yaml.ScalarNode {
			return Key{}, "", &ParseError{Line: c.Line, Message: "member entry parts must be scalars"}
		}
		parts[i] = c.Value
	}
	var fp string
	if len(parts) == 3 {
		fp = parts[2]
	}
	if parts[1] == "" {
		return PotentialMember(parts[0]), fp, nil
	}
	return Member(parts[0], parts[1]), fp, nil
}

func scalarKey(kind KeyKind, value string) Key {
	switch kind {
	case KindNominal:
		return Nominal(value)
	case KindExternal:
		return External(value)
	case KindDynamicLookup:
		return DynamicLookup(value)
	}
	return TopLevel(value)
}

// normalize sorts entries and merges duplicates. A fact depended on both
// privately and cascadingly is cascading.
func (r *Record) normalize() {
	slices.SortFunc(r.Provides, func(a, b Provide) int { return a.Key.Compare(b.Key) })
	r.Provides = slices.CompactFunc(r.Provides, func(a, b Provide) bool { return a.Key == b.Key })

	slices.SortFunc(r.Depends, func(a, b Depend) int { return a.Key.Compare(b.Key) })
	out := r.Depends[:0]
	for _, d := range r.Depends {
		if n := len(out); n > 0 && out[n-1].Key == d.Key {
			out[n-1].Cascading = out[n-1].Cascading || d.Cascading
			continue
		}
		out = append(out, d)
	}
	r.Depends = out
}

// ProvidedKeys returns the keys of every provide, sorted.
func (r *Record) ProvidedKeys() []Key {
	if r == nil {
		return nil
	}
	keys := make([]Key, len(r.Provides))
	for i, p := range r.Provides {
		keys[i] = p.Key
	}
	return keys
}

// ExternalDepends returns the paths of external dependencies.
func (r *Record) ExternalDepends() []string {
	var paths []string
	for _, d := range r.Depends {
		if d.Key.Kind == KindExternal {
			paths = append(paths, d.Key.Name)
		}
	}
	return paths
}

// Diff returns the provided keys that were added, removed, or whose
// fingerprint changed relative to old. A nil old record means every
// provide is new.
func (r *Record) Diff(old *Record) []Key {
	if old == nil {
		return r.ProvidedKeys()
	}
	prev := make(map[Key]string, len(old.Provides))
	for _, p := range old.Provides {
		prev[p.Key] = p.Fingerprint
	}

	var changed []Key
	for _, p := range r.Provides {
		fp, ok := prev[p.Key]
		if !ok || fp != p.Fingerprint {
			changed = append(changed, p.Key)
		}
		delete(prev, p.Key)
	}
	for k := range prev {
		changed = append(changed, k)
	}
	slices.SortFunc(changed, Key.Compare)
	return changed
}

// Marshal renders the record in swiftdeps form.
func (r *Record) Marshal() ([]byte, error) {
	root := &yaml.Node{Kind: yaml.MappingNode}
	if r.InterfaceHash != "" {
		root.Content = append(root.Content, str("interface-hash"), str(r.InterfaceHash))
	}

	order := []string{
		"provides-top-level", "provides-nominal", "provides-member", "provides-dynamic-lookup",
		"depends-top-level", "depends-nominal", "depends-member", "depends-dynamic-lookup", "depends-external",
	}
	for _, name := range order {
		sec := sections[name]
		var node *yaml.Node
		if sec.provides {
			node = r.provideSection(sec.kind)
		} else {
			node = r.dependSection(sec.kind)
		}
		if node != nil {
			root.Content = append(root.Content, str(name), node)
		}
	}

	var b strings.Builder
	enc := yaml.NewEncoder(&b)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return nil, fmt.Errorf("encode dependency record: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return []byte(b.String()), nil
}

func (r *Record) provideSection(kind KeyKind) *yaml.Node {
	var entries []Provide
	inherit := true
	for _, p := range r.Provides {
		if sectionKind(p.Key.Kind) != kind {
			continue
		}
		entries = append(entries, p)
		if p.Fingerprint != r.InterfaceHash {
			inherit = false
		}
	}
	if len(entries) == 0 {
		return nil
	}

	if kind == KindMember {
		seq := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
		for _, p := range entries {
			item := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
			item.Content = []*yaml.Node{str(p.Key.Context), str(p.Key.Name)}
			if !inherit {
				item.Content = append(item.Content, str(p.Fingerprint))
			}
			seq.Content = append(seq.Content, item)
		}
		return seq
	}
	if inherit {
		seq := &yaml.Node{Kind: yaml.SequenceNode}
		for _, p := range entries {
			seq.Content = append(seq.Content, str(scalarValue(p.Key)))
		}
		return seq
	}
	m := &yaml.Node{Kind: yaml.MappingNode}
	for _, p := range entries {
		m.Content = append(m.Content, str(scalarValue(p.Key)), str(p.Fingerprint))
	}
	return m
}

func (r *Record) dependSection(kind KeyKind) *yaml.Node {
	seq := &yaml.Node{Kind: yaml.SequenceNode}
	for _, d := range r.Depends {
		if sectionKind(d.Key.Kind) != kind {
			continue
		}
		var item *yaml.Node
		if kind == KindMember {
			item = &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
			item.Content = []*yaml.Node{str(d.Key.Context), str(d.Key.Name)}
		} else {
			item = str(scalarValue(d.Key))
		}
		if !d.Cascading {
			item.Tag = privateTag
		}
		seq.Content = append(seq.Content, item)
	}
	if len(seq.Content) == 0 {
		return nil
	}
	return seq
}

// sectionKind folds potential members into the member section.
func sectionKind(k KeyKind) KeyKind {
	if k == KindPotentialMember {
		return KindMember
	}
	return k
}

func scalarValue(k Key) string {
	if k.Kind == KindNominal {
		return k.Context
	}
	return k.Name
}

func str(v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}
}
