// Package promptbank loads the versioned exam-item catalogs. The bank is
// read-only after load; sessions freeze their own prompt snapshots, so
// later catalog edits never reach an existing session.
package promptbank

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/Xsert/french-fluency-forge-sub001/internal/model"
)

// catalogFile is the on-disk JSON shape of one prompt catalog.
type catalogFile struct {
	Version string         `json:"version"`
	Prompts []model.Prompt `json:"prompts"`
}

// Bank holds the loaded prompt catalogs keyed by module.
type Bank struct {
	prompts  map[model.ModuleType][]model.Prompt
	versions map[model.ModuleType]string
	byID     map[model.ModuleType]map[string]model.Prompt
}

// Load reads one or more catalog JSON files. Every prompt must name a known
// module and carry a unique ID within its module.
func Load(paths []string) (*Bank, error) {
	b := &Bank{
		prompts:  make(map[model.ModuleType][]model.Prompt),
		versions: make(map[model.ModuleType]string),
		byID:     make(map[model.ModuleType]map[string]model.Prompt),
	}

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}

		var cat catalogFile
		if err := json.Unmarshal(data, &cat); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		if cat.Version == "" {
			return nil, fmt.Errorf("catalog %s has no version", path)
		}

		for _, p := range cat.Prompts {
			if !model.IsValidModule(p.Module) {
				return nil, fmt.Errorf("catalog %s: prompt %q has unknown module %q", path, p.ID, p.Module)
			}
			if p.ID == "" {
				return nil, fmt.Errorf("catalog %s: prompt with empty ID in module %s", path, p.Module)
			}
			if b.byID[p.Module] == nil {
				b.byID[p.Module] = make(map[string]model.Prompt)
			}
			if _, dup := b.byID[p.Module][p.ID]; dup {
				return nil, fmt.Errorf("catalog %s: duplicate prompt ID %q in module %s", path, p.ID, p.Module)
			}
			b.byID[p.Module][p.ID] = p
			b.prompts[p.Module] = append(b.prompts[p.Module], p)
			b.versions[p.Module] = cat.Version
		}

		slog.Info("loaded prompt catalog", "path", path, "version", cat.Version, "prompts", len(cat.Prompts))
	}

	return b, nil
}

// Prompts returns the ordered catalog for a module. The returned slice is a
// copy; callers may reorder it freely.
func (b *Bank) Prompts(module model.ModuleType) []model.Prompt {
	src := b.prompts[module]
	out := make([]model.Prompt, len(src))
	copy(out, src)
	return out
}

// Version returns the catalog version for a module, or empty if the module
// has no prompts loaded.
func (b *Bank) Version(module model.ModuleType) string {
	return b.versions[module]
}

// CompositeVersion joins the per-module versions of the given modules into
// one stable string, suitable for freezing into a session record.
func (b *Bank) CompositeVersion(modules []model.ModuleType) string {
	parts := make([]string, 0, len(modules))
	for _, m := range modules {
		parts = append(parts, string(m)+"="+b.versions[m])
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

// PromptsByIDs resolves prompt IDs within a module, preserving the given
// order. Unknown IDs are an error.
func (b *Bank) PromptsByIDs(module model.ModuleType, ids []string) ([]model.Prompt, error) {
	out := make([]model.Prompt, 0, len(ids))
	for _, id := range ids {
		p, ok := b.byID[module][id]
		if !ok {
			return nil, fmt.Errorf("prompt %q not found in module %s", id, module)
		}
		out = append(out, p)
	}
	return out, nil
}
