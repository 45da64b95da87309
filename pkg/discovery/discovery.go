// Package discovery finds the identities directly affected by a set of
// configuration changes: for every changed value whose schema path is a
// reference target, the identities whose current state references that
// value through a leafref source.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/netscope-io/netscope/pkg/diff"
	"github.com/netscope-io/netscope/pkg/schema"
	"github.com/netscope-io/netscope/pkg/store"
	"github.com/netscope-io/netscope/pkg/tree"
)

// Dependent is one discovered direct dependency: Key's current state holds
// Value at SourcePath, and the change touches TargetPath.
type Dependent struct {
	Key        store.Key `json:"key"`
	SourcePath string    `json:"source_path"`
	TargetPath string    `json:"target_path"`
	Value      string    `json:"value"`
	ChangePath string    `json:"change_path"`
}

// Discoverer resolves change records against the reference map and the
// store's current-value index.
type Discoverer struct {
	Store store.Store
	Refs  *schema.RefMap
	Log   *slog.Logger
}

func New(s store.Store, refs *schema.RefMap, log *slog.Logger) *Discoverer {
	if log == nil {
		log = slog.Default()
	}
	return &Discoverer{Store: s, Refs: refs, Log: log}
}

// Caveats lists the reference-map gaps as analysis caveats. A non-empty
// result means discovery is partial: some reference kinds were invisible.
func (d *Discoverer) Caveats() []string {
	out := make([]string, 0, len(d.Refs.Gaps))
	for _, g := range d.Refs.Gaps {
		out = append(out, g.String())
	}
	return out
}

// Direct returns the identities that reference values touched by the given
// changes. Only mutating changes matter: an added value cannot already be
// referenced, so added records contribute nothing here.
func (d *Discoverer) Direct(ctx context.Context, changes []diff.Change) ([]Dependent, error) {
	targets := d.Refs.Targets()
	seen := map[string]bool{}
	var out []Dependent

	for _, c := range diff.Mutating(changes) {
		changedPath := tree.SchemaPath(c.Path)
		for _, target := range targets {
			values := valuesUnder(c.Old, changedPath, target)
			if len(values) == 0 {
				continue
			}
			for _, source := range d.Refs.SourcesOf(target) {
				for _, value := range values {
					keys, err := d.Store.LookupValue(ctx, source, value)
					if err != nil {
						return nil, fmt.Errorf("discovery: lookup %s=%q: %w", source, value, err)
					}
					for _, key := range keys {
						dedup := key.String() + "\x00" + source + "\x00" + value
						if seen[dedup] {
							continue
						}
						seen[dedup] = true
						out = append(out, Dependent{
							Key:        key,
							SourcePath: source,
							TargetPath: target,
							Value:      value,
							ChangePath: c.Path,
						})
					}
				}
			}
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Key != out[j].Key {
			return out[i].Key.String() < out[j].Key.String()
		}
		return out[i].SourcePath < out[j].SourcePath
	})
	d.Log.DebugContext(ctx, "direct dependency discovery",
		slog.Int("changes", len(changes)), slog.Int("dependents", len(out)))
	return out, nil
}

// valuesUnder extracts the old values at a reference-target path from one
// change record. The change either hits the target leaf itself or removes a
// subtree the target lives in; anything else contributes nothing.
func valuesUnder(old any, changedPath, target string) []string {
	switch {
	case changedPath == target:
		if tree.IsScalar(old) {
			return []string{tree.ScalarString(old)}
		}
		if list, ok := old.([]any); ok {
			out := make([]string, 0, len(list))
			for _, v := range list {
				if tree.IsScalar(v) {
					out = append(out, tree.ScalarString(v))
				}
			}
			return out
		}
		return nil
	case strings.HasPrefix(target, changedPath+"/"):
		sub, ok := old.(map[string]any)
		if !ok {
			return nil
		}
		return tree.ValuesAt(sub, target[len(changedPath)+1:])
	default:
		return nil
	}
}
