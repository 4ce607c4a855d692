// Package access implements the tier gate: the access check that rejects
// a request based on the subject's service tier before any cache or quota
// work is performed.
package access

import (
	"fmt"
	"log/slog"

	"github.com/celestine-app/celestine/internal/domain/content"
)

// Action is what a matching rule does with the request.
type Action string

const (
	ActionAllow Action = "allow"
	ActionDeny  Action = "deny"
)

// Rule is a single configured access rule. Rules are evaluated in order;
// first match wins. When no rule matches, the built-in tier gate applies.
type Rule struct {
	// Name is a human-readable identifier for this rule.
	Name string

	// Condition is a CEL expression over the request. Available variables:
	// user.id, user.tier, content.type, content.topic, content.premium.
	Condition string

	// Action is "allow" or "deny" when the condition matches.
	Action Action
}

// Input carries the evaluation variables for one check.
type Input struct {
	User    map[string]any
	Content map[string]any
}

// Program is a compiled rule condition.
type Program interface {
	// Eval returns whether the condition matches the input.
	Eval(in Input) (bool, error)
}

// Compiler parses and type-checks rule conditions at startup, so a bad
// expression fails boot instead of a live request.
type Compiler interface {
	Compile(expression string) (Program, error)
}

type compiledRule struct {
	rule    Rule
	program Program
}

// Gate evaluates access rules against generation requests.
type Gate struct {
	rules  []compiledRule
	logger *slog.Logger
}

// NewGate compiles the configured rules. With no rules configured the
// gate falls back entirely to the built-in premium check.
func NewGate(compiler Compiler, rules []Rule, logger *slog.Logger) (*Gate, error) {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gate{logger: logger}
	for _, r := range rules {
		if r.Action != ActionAllow && r.Action != ActionDeny {
			return nil, fmt.Errorf("rule %q: unknown action %q", r.Name, r.Action)
		}
		prg, err := compiler.Compile(r.Condition)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", r.Name, err)
		}
		g.rules = append(g.rules, compiledRule{rule: r, program: prg})
	}
	return g, nil
}

// Check applies the rules to the request. A deny, or the built-in premium
// gate when no rule matches, returns content.ErrPremiumRequired.
func (g *Gate) Check(req *content.GenerationRequest) error {
	in := Input{
		User: map[string]any{
			"id":   req.UserID,
			"tier": string(req.Tier),
		},
		Content: map[string]any{
			"type":    string(req.Type),
			"topic":   req.Topic,
			"premium": req.Type.RequiresPremium(),
		},
	}

	for _, cr := range g.rules {
		matched, err := cr.program.Eval(in)
		if err != nil {
			// A rule that cannot be evaluated must not decide access;
			// log and fall through to the remaining rules.
			g.logger.Warn("access rule evaluation failed",
				"rule", cr.rule.Name,
				"error", err,
			)
			continue
		}
		if !matched {
			continue
		}
		if cr.rule.Action == ActionDeny {
			g.logger.Debug("access denied by rule",
				"rule", cr.rule.Name,
				"user_id", req.UserID,
				"content_type", req.Type,
			)
			return content.ErrPremiumRequired
		}
		return nil
	}

	if req.Type.RequiresPremium() && req.Tier != content.TierPremium {
		return content.ErrPremiumRequired
	}
	return nil
}
