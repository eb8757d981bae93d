package diagnose

import "sort"

// RuleKind partitions rewrite rules by where the proxy applies them.
type RuleKind string

const (
	RuleKindHeader  RuleKind = "header"
	RuleKindBody    RuleKind = "body"
	RuleKindDefault RuleKind = "default"
)

// RuleAction names the transformation the proxy should perform.
type RuleAction string

const (
	ActionFindReplace RuleAction = "find_replace"
	ActionAdd         RuleAction = "add"
	ActionReplace     RuleAction = "replace"
	ActionRemove      RuleAction = "remove"
	ActionAppend      RuleAction = "append"
	ActionEnable      RuleAction = "enable"
)

// Placeholder tokens embedded in generated rule values. The proxy tooling
// resolves these downstream; this server never substitutes them.
const (
	PlaceholderExternalFQDN = "{{DEVICE_EXTERNAL_FQDN}}"
	PlaceholderInternalIP   = "{{DEVICE_INTERNAL_IP}}"
	PlaceholderDeviceIP     = "{{DEVICE_IP}}"
	PlaceholderHostname     = "{{DEVICE_HOSTNAME}}"
	PlaceholderRealIP       = "{{DEVICE_REAL_IP}}"
)

// RewriteRule is a single declarative proxy transformation. Rules are
// immutable once created; lower priority applies earlier.
type RewriteRule struct {
	Kind        RuleKind   `json:"type"`
	Action      RuleAction `json:"action"`
	Pattern     string     `json:"pattern,omitempty"`
	Replacement string     `json:"replacement,omitempty"`
	Header      string     `json:"header,omitempty"`
	Value       string     `json:"value,omitempty"`
	Path        string     `json:"path,omitempty"`
	Condition   string     `json:"condition,omitempty"`
	Description string     `json:"description"`
	Priority    int        `json:"priority"`
}

// Catalog is the growing ordered sequence of generated rules. It is never
// deduplicated; re-running a phase appends duplicate findings on purpose so
// the operator can see how often a symptom recurred.
type Catalog struct {
	rules []RewriteRule
}

// Add appends a rule preserving insertion order.
func (c *Catalog) Add(rule RewriteRule) {
	c.rules = append(c.rules, rule)
}

// Len returns the number of accumulated rules.
func (c *Catalog) Len() int { return len(c.rules) }

// Rules returns the catalog in insertion order.
func (c *Catalog) Rules() []RewriteRule {
	out := make([]RewriteRule, len(c.rules))
	copy(out, c.rules)
	return out
}

// Sorted returns the rules ordered by priority. The sort is stable: rules
// sharing a priority keep their insertion order. The catalog itself is left
// untouched so insertion order remains queryable.
func (c *Catalog) Sorted() []RewriteRule {
	out := c.Rules()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority < out[j].Priority
	})
	return out
}
