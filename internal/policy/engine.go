package policy

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/spf13/afero"
)

// DefaultPolicyPackage is the Rego package queried for auto-approval rules.
const DefaultPolicyPackage = "shiftwing.autoapprove"

//go:embed default.rego
var defaultPolicy string

// DefaultPolicy returns the built-in policy source.
func DefaultPolicy() string {
	return defaultPolicy
}

// Engine wraps OPA for policy evaluation. All evaluation happens locally.
type Engine struct {
	policies      []*PolicyFile
	policyPackage string
}

// EngineConfig holds configuration for creating an Engine.
type EngineConfig struct {
	// PoliciesDir holds user .rego files, loaded in addition to the default.
	PoliciesDir string

	// PolicyPackage is the Rego package to query.
	// If empty, defaults to "shiftwing.autoapprove".
	PolicyPackage string

	// Fs is the filesystem to use for loading policies.
	// If nil, uses the OS filesystem.
	Fs afero.Fs

	// SkipDefault leaves out the built-in policy.
	SkipDefault bool
}

// NewEngine creates an engine with the built-in policy plus any user policies.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}
	if cfg.PolicyPackage == "" {
		cfg.PolicyPackage = DefaultPolicyPackage
	}

	var policies []*PolicyFile
	if !cfg.SkipDefault {
		policies = append(policies, &PolicyFile{Path: "builtin/default.rego", Name: "default", Content: defaultPolicy})
	}
	loaded, err := NewLoader(cfg.Fs, cfg.PoliciesDir).LoadAll()
	if err != nil {
		return nil, fmt.Errorf("load policies: %w", err)
	}
	policies = append(policies, loaded...)

	return &Engine{policies: policies, policyPackage: cfg.PolicyPackage}, nil
}

// NewEngineWithPolicies creates an engine with explicitly provided policies.
func NewEngineWithPolicies(policies []*PolicyFile) *Engine {
	return &Engine{policies: policies, policyPackage: DefaultPolicyPackage}
}

// PolicyNames returns the names of all loaded policies.
func (e *Engine) PolicyNames() []string {
	names := make([]string, len(e.policies))
	for i, p := range e.policies {
		names[i] = p.Name
	}
	return names
}

func (e *Engine) modules() []func(*rego.Rego) {
	modules := make([]func(*rego.Rego), len(e.policies))
	for i, p := range e.policies {
		modules[i] = rego.Module(p.Path, p.Content)
	}
	return modules
}

// Check compiles every loaded policy and reports the first error.
func (e *Engine) Check(ctx context.Context) error {
	opts := append([]func(*rego.Rego){rego.Query(fmt.Sprintf("data.%s", e.policyPackage))}, e.modules()...)
	if _, err := rego.New(opts...).PrepareForEval(ctx); err != nil {
		return fmt.Errorf("compile policies: %w", err)
	}
	return nil
}

// Evaluate runs all loaded policies against input. Strings produced by
// "deny" rules block; strings produced by "warn" rules are advisory.
func (e *Engine) Evaluate(ctx context.Context, input any) (*PolicyDecision, error) {
	decision := &PolicyDecision{
		DecisionID:  uuid.New().String(),
		PolicyPath:  e.policyPackage,
		Result:      PolicyResultAllow,
		Input:       input,
		EvaluatedAt: time.Now().UTC(),
	}
	if len(e.policies) == 0 {
		return decision, nil
	}

	modules := e.modules()
	violations, err := e.querySet(ctx, input, "deny", modules)
	if err != nil {
		return nil, fmt.Errorf("query deny rules: %w", err)
	}
	warnings, err := e.querySet(ctx, input, "warn", modules)
	if err != nil {
		return nil, fmt.Errorf("query warn rules: %w", err)
	}

	decision.Warnings = warnings
	if len(violations) > 0 {
		decision.Result = PolicyResultDeny
		decision.Violations = violations
	}
	return decision, nil
}

// EvaluateAutoApproval evaluates the auto-approval rules for one proposal.
// An empty proposal is never auto-approved.
func (e *Engine) EvaluateAutoApproval(ctx context.Context, in *AutoApprovalInput) (*PolicyDecision, error) {
	if in == nil || len(in.Steps) == 0 {
		return &PolicyDecision{
			DecisionID:  uuid.New().String(),
			PolicyPath:  e.policyPackage,
			Result:      PolicyResultDeny,
			Violations:  []string{"nothing to auto-approve"},
			Input:       in,
			EvaluatedAt: time.Now().UTC(),
		}, nil
	}
	d, err := e.Evaluate(ctx, in)
	if err != nil {
		return nil, err
	}
	d.ShiftID = in.ShiftID
	return d, nil
}

// querySet queries a set-generating rule (like deny or warn) and returns all string values.
func (e *Engine) querySet(ctx context.Context, input any, ruleName string, modules []func(*rego.Rego)) ([]string, error) {
	opts := []func(*rego.Rego){
		rego.Query(fmt.Sprintf("data.%s.%s", e.policyPackage, ruleName)),
		rego.Input(input),
	}
	opts = append(opts, modules...)

	rs, err := rego.New(opts...).Eval(ctx)
	if err != nil {
		if strings.Contains(err.Error(), "undefined") {
			return nil, nil
		}
		return nil, err
	}

	var results []string
	for _, result := range rs {
		for _, expr := range result.Expressions {
			if set, ok := expr.Value.([]any); ok {
				for _, item := range set {
					if s, ok := item.(string); ok {
						results = append(results, s)
					}
				}
			}
		}
	}
	return results, nil
}
