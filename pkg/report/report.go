// Package report renders analysis results for operators and pipelines:
// JSON and YAML for machines, a plain text summary for review.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/netscope-io/netscope/pkg/diff"
	"github.com/netscope-io/netscope/pkg/store"
)

// Finding is one affected identity, graded. Hops 0 means the identity
// directly references a changed value; higher hops come from the cascade.
type Finding struct {
	Key        store.Key `json:"key" yaml:"key"`
	Hops       int       `json:"hops" yaml:"hops"`
	Severity   string    `json:"severity" yaml:"severity"`
	Rules      []string  `json:"rules,omitempty" yaml:"rules,omitempty"`
	SourcePath string    `json:"source_path,omitempty" yaml:"source_path,omitempty"`
	Value      string    `json:"value,omitempty" yaml:"value,omitempty"`
	ChangePath string    `json:"change_path,omitempty" yaml:"change_path,omitempty"`
}

// Report is the full result of one blast-radius analysis.
type Report struct {
	Device      string        `json:"device" yaml:"device"`
	GeneratedAt time.Time     `json:"generated_at" yaml:"generated_at"`
	Summary     diff.Summary  `json:"summary" yaml:"summary"`
	Changes     []diff.Change `json:"changes" yaml:"changes"`
	Findings    []Finding     `json:"findings" yaml:"findings"`
	Caveats     []string      `json:"caveats,omitempty" yaml:"caveats,omitempty"`
}

// BySeverity counts findings per severity level.
func (r *Report) BySeverity() map[string]int {
	out := make(map[string]int)
	for _, f := range r.Findings {
		out[f.Severity]++
	}
	return out
}

// WriteJSON writes the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteYAML writes the report as YAML.
func (r *Report) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(r)
}

// WriteText writes the human summary.
func (r *Report) WriteText(w io.Writer) error {
	var b strings.Builder
	fmt.Fprintf(&b, "impact report for %s (%s)\n", r.Device, r.GeneratedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "changes: %d total, %d added, %d modified, %d removed, %d structural\n",
		r.Summary.Total, r.Summary.Added, r.Summary.Modified, r.Summary.Removed, r.Summary.Structural)

	if len(r.Findings) == 0 {
		b.WriteString("no affected identities\n")
	} else {
		fmt.Fprintf(&b, "affected identities: %d\n", len(r.Findings))
		for _, f := range r.Findings {
			fmt.Fprintf(&b, "  [%s] %s %s", f.Severity, f.Key, hopLabel(f.Hops))
			if f.SourcePath != "" {
				fmt.Fprintf(&b, " references %q at %s", f.Value, f.SourcePath)
			}
			b.WriteByte('\n')
		}
	}

	if len(r.Caveats) > 0 {
		b.WriteString("caveats:\n")
		for _, c := range r.Caveats {
			fmt.Fprintf(&b, "  - %s\n", c)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// Save writes the report to a file, picking the format by extension.
// Unknown extensions get the text form.
func (r *Report) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return r.WriteJSON(f)
	case ".yaml", ".yml":
		return r.WriteYAML(f)
	default:
		return r.WriteText(f)
	}
}

func hopLabel(hops int) string {
	switch hops {
	case 0:
		return "(direct)"
	case 1:
		return "(1 hop)"
	default:
		return fmt.Sprintf("(%d hops)", hops)
	}
}
