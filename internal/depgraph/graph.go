package depgraph

import (
	"slices"
	"sort"
)

// compactThreshold is the minimum number of tombstoned slots before the
// arena is rebuilt.
const compactThreshold = 1024

type provideNode struct {
	key         Key
	file        string
	fingerprint string
	live        bool
}

type useEdge struct {
	key       Key
	file      string
	cascading bool
	live      bool
}

type fileEntry struct {
	record *Record
	nodes  []int
	uses   []int
}

// Graph is the merged dependency graph of one module.
//
// Graph is not safe for concurrent use. The incremental state serializes
// all access behind its own lock.
type Graph struct {
	nodes []provideNode
	uses  []useEdge

	providers map[Key][]int
	users     map[Key][]int
	files     map[string]*fileEntry

	tombstones int
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		providers: make(map[Key][]int),
		users:     make(map[Key][]int),
		files:     make(map[string]*fileEntry),
	}
}

// Integrate replaces the record of source and returns the provided keys
// that changed relative to the previous record. Every node and use edge
// contributed by the previous record is removed first.
func (g *Graph) Integrate(source string, rec *Record) []Key {
	changed := rec.Diff(g.Record(source))
	g.detach(source)

	entry := &fileEntry{record: rec}
	for _, p := range rec.Provides {
		idx := len(g.nodes)
		g.nodes = append(g.nodes, provideNode{key: p.Key, file: source, fingerprint: p.Fingerprint, live: true})
		g.providers[p.Key] = append(g.providers[p.Key], idx)
		entry.nodes = append(entry.nodes, idx)
	}
	for _, d := range rec.Depends {
		idx := len(g.uses)
		g.uses = append(g.uses, useEdge{key: d.Key, file: source, cascading: d.Cascading, live: true})
		g.users[d.Key] = append(g.users[d.Key], idx)
		entry.uses = append(entry.uses, idx)
	}
	g.files[source] = entry

	if g.tombstones > compactThreshold && g.tombstones > (len(g.nodes)+len(g.uses))/2 {
		g.compact()
	}
	return changed
}

// Remove drops source from the graph and returns the keys it provided.
func (g *Graph) Remove(source string) []Key {
	entry, ok := g.files[source]
	if !ok {
		return nil
	}
	keys := entry.record.ProvidedKeys()
	g.detach(source)
	delete(g.files, source)
	return keys
}

func (g *Graph) detach(source string) {
	entry, ok := g.files[source]
	if !ok {
		return
	}
	for _, idx := range entry.nodes {
		n := &g.nodes[idx]
		n.live = false
		g.providers[n.key] = without(g.providers[n.key], idx)
		if len(g.providers[n.key]) == 0 {
			delete(g.providers, n.key)
		}
	}
	for _, idx := range entry.uses {
		u := &g.uses[idx]
		u.live = false
		g.users[u.key] = without(g.users[u.key], idx)
		if len(g.users[u.key]) == 0 {
			delete(g.users, u.key)
		}
	}
	g.tombstones += len(entry.nodes) + len(entry.uses)
	entry.nodes, entry.uses = nil, nil
}

// compact rebuilds the arena from the live records.
func (g *Graph) compact() {
	files := g.Files()
	records := make([]*Record, len(files))
	for i, f := range files {
		records[i] = g.files[f].record
	}
	*g = *NewGraph()
	for i, f := range files {
		g.Integrate(f, records[i])
	}
}

func without(list []int, idx int) []int {
	if i := slices.Index(list, idx); i >= 0 {
		return slices.Delete(list, i, i+1)
	}
	return list
}

// FilesAffectedBy returns the files that must recompile because the given
// keys changed in origin.
//
// Every user of a changed key is affected. A cascading use also treats
// everything the using file provides as changed, which is repeated until
// no new keys appear. A changed member also changes the potential-member
// key of its type. origin itself is never part of the result.
func (g *Graph) FilesAffectedBy(keys []Key, origin string) []string {
	affected := make(map[string]struct{})
	expanded := make(map[string]struct{})
	seen := make(map[Key]struct{})

	queue := append([]Key(nil), keys...)
	for len(queue) > 0 {
		k := queue[0]
		queue = queue[1:]
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}

		if k.Kind == KindMember {
			queue = append(queue, PotentialMember(k.Context))
		}
		for _, idx := range g.users[k] {
			u := g.uses[idx]
			affected[u.file] = struct{}{}
			if !u.cascading {
				continue
			}
			if _, ok := expanded[u.file]; ok {
				continue
			}
			expanded[u.file] = struct{}{}
			queue = append(queue, g.files[u.file].record.ProvidedKeys()...)
		}
	}

	delete(affected, origin)
	return sortedSet(affected)
}

// Record returns the record currently integrated for source.
func (g *Graph) Record(source string) *Record {
	if entry, ok := g.files[source]; ok {
		return entry.record
	}
	return nil
}

// Contains reports whether source has a record in the graph.
func (g *Graph) Contains(source string) bool {
	_, ok := g.files[source]
	return ok
}

// Files returns every source with a record, sorted.
func (g *Graph) Files() []string {
	files := make([]string, 0, len(g.files))
	for f := range g.files {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}

// Providers returns the files providing key, sorted.
func (g *Graph) Providers(key Key) []string {
	set := make(map[string]struct{})
	for _, idx := range g.providers[key] {
		set[g.nodes[idx].file] = struct{}{}
	}
	return sortedSet(set)
}

// Users returns the files depending on key, sorted.
func (g *Graph) Users(key Key) []string {
	set := make(map[string]struct{})
	for _, idx := range g.users[key] {
		set[g.uses[idx].file] = struct{}{}
	}
	return sortedSet(set)
}

// ExternalDependencies returns every external path some file depends on.
func (g *Graph) ExternalDependencies() []string {
	set := make(map[string]struct{})
	for k := range g.users {
		if k.Kind == KindExternal {
			set[k.Name] = struct{}{}
		}
	}
	return sortedSet(set)
}

// Unresolved returns the non-external keys that are depended on but that
// no file in the module provides. These usually name facts from other
// modules.
func (g *Graph) Unresolved() []Key {
	var keys []Key
	for k := range g.users {
		if k.Kind == KindExternal {
			continue
		}
		if _, ok := g.providers[k]; !ok {
			keys = append(keys, k)
		}
	}
	slices.SortFunc(keys, Key.Compare)
	return keys
}

// Stats summarizes the live contents of the graph.
type Stats struct {
	Files    int `json:"files"`
	Provides int `json:"provides"`
	Uses     int `json:"uses"`
}

// Stats returns live node and edge counts.
func (g *Graph) Stats() Stats {
	s := Stats{Files: len(g.files)}
	for _, idxs := range g.providers {
		s.Provides += len(idxs)
	}
	for _, idxs := range g.users {
		s.Uses += len(idxs)
	}
	return s
}

func sortedSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
