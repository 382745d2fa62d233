package moduledeps

import (
	"encoding/json"
	"fmt"
	"slices"
)

// Details is the kind-specific part of a ModuleInfo. The implementations
// are closed: SwiftTextualDetails, SwiftPrebuiltDetails,
// SwiftPlaceholderDetails and ClangDetails.
type Details interface {
	kind() Kind
}

// SwiftTextualDetails describes a Swift module built from source or from
// a textual interface.
type SwiftTextualDetails struct {
	ModuleInterfacePath        string   `json:"moduleInterfacePath,omitempty"`
	CompiledModuleCandidates   []string `json:"compiledModuleCandidates,omitempty"`
	BridgingHeaderPath         string   `json:"bridgingHeaderPath,omitempty"`
	BridgingSourceFiles        []string `json:"bridgingSourceFiles,omitempty"`
	BridgingHeaderDependencies []ID     `json:"bridgingHeaderDependencies,omitempty"`
	CommandLine                []string `json:"commandLine,omitempty"`
	ExtraPCMArgs               []string `json:"extraPcmArgs,omitempty"`
	ContextHash                string   `json:"contextHash,omitempty"`
	IsFramework                bool     `json:"isFramework"`
	SwiftOverlayDependencies   []ID     `json:"swiftOverlayDependencies,omitempty"`
	ModuleCacheKey             string   `json:"moduleCacheKey,omitempty"`
}

// SwiftPrebuiltDetails describes an already compiled Swift module.
type SwiftPrebuiltDetails struct {
	CompiledModulePath   string `json:"compiledModulePath"`
	ModuleDocPath        string `json:"moduleDocPath,omitempty"`
	ModuleSourceInfoPath string `json:"moduleSourceInfoPath,omitempty"`
	IsFramework          bool   `json:"isFramework"`
	ModuleCacheKey       string `json:"moduleCacheKey,omitempty"`
}

// SwiftPlaceholderDetails describes a module expected from another target.
type SwiftPlaceholderDetails struct {
	ModuleDocPath        string `json:"moduleDocPath,omitempty"`
	ModuleSourceInfoPath string `json:"moduleSourceInfoPath,omitempty"`
}

// ClangDetails describes a Clang module.
type ClangDetails struct {
	ModuleMapPath string   `json:"moduleMapPath"`
	ContextHash   string   `json:"contextHash,omitempty"`
	CommandLine   []string `json:"commandLine,omitempty"`

	// CapturedPCMArgs holds every distinct argument set the module was
	// scanned under.
	CapturedPCMArgs [][]string `json:"capturedPCMArgs,omitempty"`
	ModuleCacheKey  string     `json:"moduleCacheKey,omitempty"`
}

func (*SwiftTextualDetails) kind() Kind     { return KindSwift }
func (*SwiftPrebuiltDetails) kind() Kind    { return KindSwiftPrebuiltExternal }
func (*SwiftPlaceholderDetails) kind() Kind { return KindSwiftPlaceholder }
func (*ClangDetails) kind() Kind            { return KindClang }

// ModuleInfo is one node of the module graph.
type ModuleInfo struct {
	ModulePath         string
	SourceFiles        []string
	DirectDependencies []ID
	Details            Details
}

type moduleInfoJSON struct {
	ModulePath         string                     `json:"modulePath"`
	SourceFiles        []string                   `json:"sourceFiles,omitempty"`
	DirectDependencies []ID                       `json:"directDependencies,omitempty"`
	Details            map[string]json.RawMessage `json:"details"`
}

// MarshalJSON renders details as {"<kind>": {...}}.
func (m *ModuleInfo) MarshalJSON() ([]byte, error) {
	if m.Details == nil {
		return nil, fmt.Errorf("module %s has no details", m.ModulePath)
	}
	raw, err := json.Marshal(m.Details)
	if err != nil {
		return nil, err
	}
	return json.Marshal(moduleInfoJSON{
		ModulePath:         m.ModulePath,
		SourceFiles:        m.SourceFiles,
		DirectDependencies: m.DirectDependencies,
		Details:            map[string]json.RawMessage{string(m.Details.kind()): raw},
	})
}

// UnmarshalJSON parses the form written by MarshalJSON.
func (m *ModuleInfo) UnmarshalJSON(data []byte) error {
	var aux moduleInfoJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if len(aux.Details) != 1 {
		return fmt.Errorf("module %s: details must have exactly one kind", aux.ModulePath)
	}

	var details Details
	for k, raw := range aux.Details {
		switch Kind(k) {
		case KindSwift:
			details = &SwiftTextualDetails{}
		case KindSwiftPrebuiltExternal:
			details = &SwiftPrebuiltDetails{}
		case KindSwiftPlaceholder:
			details = &SwiftPlaceholderDetails{}
		case KindClang:
			details = &ClangDetails{}
		default:
			return fmt.Errorf("module %s: unknown details kind %q", aux.ModulePath, k)
		}
		if err := json.Unmarshal(raw, details); err != nil {
			return fmt.Errorf("module %s: %w", aux.ModulePath, err)
		}
	}

	*m = ModuleInfo{
		ModulePath:         aux.ModulePath,
		SourceFiles:        aux.SourceFiles,
		DirectDependencies: aux.DirectDependencies,
		Details:            details,
	}
	return nil
}

// Clone returns a deep copy.
func (m *ModuleInfo) Clone() *ModuleInfo {
	c := &ModuleInfo{
		ModulePath:         m.ModulePath,
		SourceFiles:        slices.Clone(m.SourceFiles),
		DirectDependencies: slices.Clone(m.DirectDependencies),
	}
	switch d := m.Details.(type) {
	case *SwiftTextualDetails:
		cp := *d
		cp.CompiledModuleCandidates = slices.Clone(d.CompiledModuleCandidates)
		cp.BridgingSourceFiles = slices.Clone(d.BridgingSourceFiles)
		cp.BridgingHeaderDependencies = slices.Clone(d.BridgingHeaderDependencies)
		cp.CommandLine = slices.Clone(d.CommandLine)
		cp.ExtraPCMArgs = slices.Clone(d.ExtraPCMArgs)
		cp.SwiftOverlayDependencies = slices.Clone(d.SwiftOverlayDependencies)
		c.Details = &cp
	case *SwiftPrebuiltDetails:
		cp := *d
		c.Details = &cp
	case *SwiftPlaceholderDetails:
		cp := *d
		c.Details = &cp
	case *ClangDetails:
		cp := *d
		cp.CommandLine = slices.Clone(d.CommandLine)
		if d.CapturedPCMArgs != nil {
			cp.CapturedPCMArgs = make([][]string, len(d.CapturedPCMArgs))
			for i, args := range d.CapturedPCMArgs {
				cp.CapturedPCMArgs[i] = slices.Clone(args)
			}
		}
		c.Details = &cp
	}
	return c
}

// edges returns the dependency-equivalent edges of the node: direct
// dependencies plus Swift overlay and bridging header dependencies.
func (m *ModuleInfo) edges() []ID {
	out := slices.Clone(m.DirectDependencies)
	if d, ok := m.Details.(*SwiftTextualDetails); ok {
		out = append(out, d.SwiftOverlayDependencies...)
		out = append(out, d.BridgingHeaderDependencies...)
	}
	return out
}

// rewriteEdges replaces every reference to from with to, dropping
// duplicates.
func (m *ModuleInfo) rewriteEdges(from, to ID) {
	m.DirectDependencies = substitute(m.DirectDependencies, from, to)
	if d, ok := m.Details.(*SwiftTextualDetails); ok {
		d.SwiftOverlayDependencies = substitute(d.SwiftOverlayDependencies, from, to)
		d.BridgingHeaderDependencies = substitute(d.BridgingHeaderDependencies, from, to)
	}
}

func substitute(ids []ID, from, to ID) []ID {
	if !slices.Contains(ids, from) {
		return ids
	}
	for i, id := range ids {
		if id == from {
			ids[i] = to
		}
	}
	return dedupe(ids)
}

func dedupe(ids []ID) []ID {
	seen := make(map[ID]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
