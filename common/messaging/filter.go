package messaging

import (
	"encoding/json"
	"sort"
)

// Condition is the rule applied to one attribute of a FilterPolicy.
type Condition struct {
	// AnyOf matches when at least one attribute value equals one of these.
	AnyOf []string `json:"anyOf,omitempty" mapstructure:"any_of"`

	// Exists requires the attribute to be present with any value.
	Exists bool `json:"exists,omitempty" mapstructure:"exists"`
}

// FilterPolicy decides delivery from message metadata alone. Every
// attribute condition must hold; an empty policy matches everything.
type FilterPolicy map[string]Condition

// Match reports whether md satisfies every condition in p.
func (p FilterPolicy) Match(md Metadata) bool {
	for attr, cond := range p {
		values := md.Values(attr)
		present := len(values) > 0

		if cond.Exists && !present {
			return false
		}
		if len(cond.AnyOf) == 0 {
			continue
		}
		if !present || !intersects(values, cond.AnyOf) {
			return false
		}
	}
	return true
}

// SlackPolicy admits messages targeted at Slack that name a channel.
func SlackPolicy() FilterPolicy {
	return FilterPolicy{
		"targets": {AnyOf: []string{"Slack", "slack"}},
		"channel": {Exists: true},
	}
}

// Attributes returns the attribute names p filters on, sorted.
func (p FilterPolicy) Attributes() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SNSJSON renders p in the SNS subscription filter policy syntax, so the
// same policy can be installed on a topic subscription.
func (p FilterPolicy) SNSJSON() (string, error) {
	out := make(map[string][]any, len(p))
	for attr, cond := range p {
		var rules []any
		for _, v := range cond.AnyOf {
			rules = append(rules, v)
		}
		if cond.Exists {
			rules = append(rules, map[string]bool{"exists": true})
		}
		out[attr] = rules
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func intersects(values, allowed []string) bool {
	for _, v := range values {
		for _, a := range allowed {
			if v == a {
				return true
			}
		}
	}
	return false
}
