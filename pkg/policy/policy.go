// Package policy grades analysis findings with operator-defined rules. Rules
// are CEL expressions over one finding's attributes; the highest severity of
// the matching rules wins.
package policy

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/checker/decls"
	"gopkg.in/yaml.v3"
)

// Severity levels, weakest to strongest.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

var severityRank = map[string]int{
	SeverityInfo:     1,
	SeverityWarning:  2,
	SeverityCritical: 3,
}

// Rule is one grading rule.
type Rule struct {
	ID        string `yaml:"id" json:"id"`
	Condition string `yaml:"condition" json:"condition"`
	Severity  string `yaml:"severity" json:"severity"`
}

// Finding is the variable set a rule evaluates against.
type Finding struct {
	Device       string // device owning the affected identity
	IdentityKind string // interface, vlan, acl, ...
	Identity     string
	Hops         int    // 0 = directly referenced, >0 = cascade distance
	ChangeKind   string // added, removed, modified, structural
	ChangePath   string
}

type compiled struct {
	rule Rule
	prg  cel.Program
}

// Engine holds the compiled rule set.
type Engine struct {
	env      *cel.Env
	programs []compiled
	log      *slog.Logger
}

// New initializes the CEL environment with the finding variable declarations.
func New(log *slog.Logger) (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Declarations(
			decls.NewVar("device", decls.String),
			decls.NewVar("identity_kind", decls.String),
			decls.NewVar("identity", decls.String),
			decls.NewVar("hops", decls.Int),
			decls.NewVar("change_kind", decls.String),
			decls.NewVar("change_path", decls.String),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("policy: create CEL env: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{env: env, log: log}, nil
}

// Compile adds rules to the engine. A rule that fails to compile rejects the
// whole set; silently dropping a grading rule would hide findings.
func (e *Engine) Compile(rules []Rule) error {
	for _, r := range rules {
		if _, ok := severityRank[r.Severity]; !ok {
			return fmt.Errorf("policy: rule %s has unknown severity %q", r.ID, r.Severity)
		}
		ast, issues := e.env.Compile(r.Condition)
		if issues != nil && issues.Err() != nil {
			return fmt.Errorf("policy: rule %s: %w", r.ID, issues.Err())
		}
		prg, err := e.env.Program(ast)
		if err != nil {
			return fmt.Errorf("policy: rule %s: %w", r.ID, err)
		}
		e.programs = append(e.programs, compiled{rule: r, prg: prg})
	}
	return nil
}

// Grade evaluates every rule against one finding and returns the strongest
// matching severity plus the IDs of the rules that fired. Findings no rule
// matches grade as info.
func (e *Engine) Grade(f Finding) (string, []string) {
	vars := map[string]any{
		"device":        f.Device,
		"identity_kind": f.IdentityKind,
		"identity":      f.Identity,
		"hops":          int64(f.Hops),
		"change_kind":   f.ChangeKind,
		"change_path":   f.ChangePath,
	}

	severity := SeverityInfo
	var matched []string
	for _, c := range e.programs {
		out, _, err := c.prg.Eval(vars)
		if err != nil {
			e.log.Error("rule evaluation failed", "rule_id", c.rule.ID, "error", err)
			continue
		}
		if hit, ok := out.Value().(bool); ok && hit {
			matched = append(matched, c.rule.ID)
			if severityRank[c.rule.Severity] > severityRank[severity] {
				severity = c.rule.Severity
			}
		}
	}
	return severity, matched
}

// DefaultRules is the built-in grading baseline: broken references are
// critical, one-hop cascade is a warning.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:        "direct-removal",
			Condition: `hops == 0 && (change_kind == "removed" || change_kind == "structural")`,
			Severity:  SeverityCritical,
		},
		{
			ID:        "direct-modification",
			Condition: `hops == 0 && change_kind == "modified"`,
			Severity:  SeverityWarning,
		},
		{
			ID:        "near-cascade",
			Condition: `hops == 1`,
			Severity:  SeverityWarning,
		},
	}
}

// LoadRules reads a YAML rule file.
func LoadRules(path string) ([]Rule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Rules []Rule `yaml:"rules"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("policy: parse %s: %w", path, err)
	}
	return doc.Rules, nil
}
