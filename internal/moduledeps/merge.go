package moduledeps

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	// ErrUnresolvedPlaceholder means a placeholder reached a finalized graph.
	ErrUnresolvedPlaceholder = errors.New("unresolved placeholder module")

	// ErrMissingDependency means an edge names a module with no node.
	ErrMissingDependency = errors.New("dependency on unknown module")
)

// MergeInto merges incoming into acc by module identity.
//
//   - A Swift textual node never replaces a textual or prebuilt node
//     already present; it does replace a placeholder.
//   - A prebuilt node replaces a textual node or a placeholder.
//   - A placeholder is only inserted when nothing with its name exists.
//   - Clang nodes with the same name are combined: source files, direct
//     dependencies and captured argument sets are unioned.
//
// Whenever a node is replaced, every edge pointing at the old ID is
// rewritten to the new one. Merging the same graph twice is the same as
// merging it once. acc is left untouched when incoming is rejected.
func MergeInto(acc Modules, incoming *Graph) error {
	ids := incoming.Modules.SortedIDs()
	for _, id := range ids {
		if !id.Kind.valid() {
			return fmt.Errorf("merge %s: unknown module kind", id)
		}
		if d := incoming.Modules[id].Details; d == nil || d.kind() != id.Kind {
			return fmt.Errorf("merge %s: details do not match module kind", id)
		}
	}

	for _, id := range ids {
		info := incoming.Modules[id].Clone()

		switch id.Kind {
		case KindSwift:
			switch {
			case has(acc, Prebuilt(id.Name)), has(acc, id):
			case has(acc, Placeholder(id.Name)):
				replace(acc, Placeholder(id.Name), id, info)
			default:
				acc[id] = info
			}
		case KindSwiftPrebuiltExternal:
			switch {
			case has(acc, id):
			case has(acc, Swift(id.Name)):
				replace(acc, Swift(id.Name), id, info)
				if has(acc, Placeholder(id.Name)) {
					replace(acc, Placeholder(id.Name), id, info)
				}
			case has(acc, Placeholder(id.Name)):
				replace(acc, Placeholder(id.Name), id, info)
			default:
				acc[id] = info
			}
		case KindSwiftPlaceholder:
			if !has(acc, Swift(id.Name)) && !has(acc, Prebuilt(id.Name)) && !has(acc, id) {
				acc[id] = info
			}
		case KindClang:
			if existing, ok := acc[id]; ok {
				combineClang(existing, info)
			} else {
				acc[id] = info
			}
		}
	}

	canonicalizeEdges(acc)
	return nil
}

func has(acc Modules, id ID) bool {
	_, ok := acc[id]
	return ok
}

func replace(acc Modules, old, id ID, info *ModuleInfo) {
	delete(acc, old)
	acc[id] = info
	for _, m := range acc {
		m.rewriteEdges(old, id)
	}
}

// canonicalizeEdges points edges at whichever member of a Swift name's
// variants is present, preferring prebuilt, then textual, then
// placeholder. Incoming graphs refer to their own variant of a module,
// which may not be the one acc kept.
func canonicalizeEdges(acc Modules) {
	for _, m := range acc {
		for _, e := range m.edges() {
			if has(acc, e) || !e.Kind.IsSwift() {
				continue
			}
			for _, candidate := range []ID{Prebuilt(e.Name), Swift(e.Name), Placeholder(e.Name)} {
				if has(acc, candidate) {
					m.rewriteEdges(e, candidate)
					break
				}
			}
		}
		m.DirectDependencies = dedupe(m.DirectDependencies)
	}
}

func combineClang(existing, incoming *ModuleInfo) {
	existing.SourceFiles = unionStrings(existing.SourceFiles, incoming.SourceFiles)
	existing.DirectDependencies = dedupe(append(existing.DirectDependencies, incoming.DirectDependencies...))

	ed := existing.Details.(*ClangDetails)
	id := incoming.Details.(*ClangDetails)
	if ed.ModuleMapPath == "" {
		ed.ModuleMapPath = id.ModuleMapPath
	}
	for _, args := range id.CapturedPCMArgs {
		if !slices.ContainsFunc(ed.CapturedPCMArgs, func(a []string) bool { return slices.Equal(a, args) }) {
			ed.CapturedPCMArgs = append(ed.CapturedPCMArgs, args)
		}
	}
}

func unionStrings(a, b []string) []string {
	for _, s := range b {
		if !slices.Contains(a, s) {
			a = append(a, s)
		}
	}
	return a
}

// Finalize checks that acc is usable for planning: no placeholder is left
// and every edge names a node in the map.
func Finalize(acc Modules) error {
	var placeholders, missing []string
	for _, id := range acc.SortedIDs() {
		if id.Kind == KindSwiftPlaceholder {
			placeholders = append(placeholders, id.Name)
		}
		for _, e := range acc[id].edges() {
			if !has(acc, e) {
				missing = append(missing, fmt.Sprintf("%s -> %s", id, e))
			}
		}
	}
	if len(placeholders) > 0 {
		return fmt.Errorf("%w: %s", ErrUnresolvedPlaceholder, strings.Join(placeholders, ", "))
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingDependency, strings.Join(missing, ", "))
	}
	return nil
}
