package filter

import (
	"fmt"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/bakkerme/curator-streams/internal/config"
	"github.com/bakkerme/curator-streams/internal/core"
)

const (
	ResultDrop = "drop"
	ResultPass = "pass"
)

// Rule is a compiled item filter. A "drop" rule drops items it matches; a "pass"
// rule drops items it does not match.
type Rule struct {
	name    string
	result  string
	program *vm.Program
}

func NewRule(cfg *config.FilterRule) (*Rule, error) {
	if cfg == nil {
		return nil, fmt.Errorf("filter rule config is required")
	}
	if cfg.Name == "" || cfg.Rule == "" {
		return nil, fmt.Errorf("filter rule name and expression are required")
	}
	result := cfg.Result
	if result == "" {
		result = ResultDrop
	}
	if result != ResultDrop && result != ResultPass {
		return nil, fmt.Errorf("filter rule %q: result must be 'pass' or 'drop'", cfg.Name)
	}
	program, err := expr.Compile(cfg.Rule, expr.Env(itemEnv(&core.Item{}, time.Time{})), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile filter rule %q: %w", cfg.Name, err)
	}
	return &Rule{name: cfg.Name, result: result, program: program}, nil
}

func (r *Rule) Name() string {
	return r.name
}

// Keep evaluates the rule against item.
func (r *Rule) Keep(item *core.Item, now time.Time) (bool, error) {
	out, err := expr.Run(r.program, itemEnv(item, now))
	if err != nil {
		return true, fmt.Errorf("filter rule %q: %w", r.name, err)
	}
	matched, ok := out.(bool)
	if !ok {
		return true, fmt.Errorf("filter rule %q did not return bool", r.name)
	}
	if r.result == ResultDrop {
		return !matched, nil
	}
	return matched, nil
}

// Chain applies rules in order; the first rule that drops an item wins.
type Chain []*Rule

func NewChain(cfgs []config.FilterRule) (Chain, error) {
	chain := make(Chain, 0, len(cfgs))
	for i := range cfgs {
		rule, err := NewRule(&cfgs[i])
		if err != nil {
			return nil, err
		}
		chain = append(chain, rule)
	}
	return chain, nil
}

// Keep reports whether item survives every rule. When it does not, the name of
// the dropping rule is returned. Evaluation errors keep the item and are
// returned alongside so the caller can log them.
func (c Chain) Keep(item *core.Item, now time.Time) (bool, string, error) {
	var errs []error
	for _, rule := range c {
		keep, err := rule.Keep(item, now)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !keep {
			return false, rule.name, nil
		}
	}
	if len(errs) > 0 {
		return true, "", fmt.Errorf("%d filter rule(s) failed: %w", len(errs), errs[0])
	}
	return true, "", nil
}

func itemEnv(item *core.Item, now time.Time) map[string]interface{} {
	author := item.UserID
	if item.Author != nil && item.Author.Username != "" {
		author = item.Author.Username
	}
	age := 0.0
	if !now.IsZero() && !item.PublicationTime.IsZero() {
		age = now.Sub(item.PublicationTime).Hours()
	}
	tags := item.Tags
	if tags == nil {
		tags = []string{}
	}
	lists := item.Lists
	if lists == nil {
		lists = []string{}
	}
	return map[string]interface{}{
		"title":        item.Title,
		"text":         item.Text,
		"url":          item.URL,
		"author":       author,
		"user_id":      item.UserID,
		"label":        item.Label,
		"source":       item.Source,
		"tags":         tags,
		"lists":        lists,
		"category":     string(item.Category),
		"media":        len(item.Media),
		"published_at": item.PublicationTime,
		"age_hours":    age,
	}
}
