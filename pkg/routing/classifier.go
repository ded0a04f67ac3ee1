package routing

import (
	"regexp"
	"sort"
	"strings"
)

// moduleAPIPattern matches the /<module>/api tree every module mounts its JSON API under.
var moduleAPIPattern = regexp.MustCompile(`^/[^/]+/api(?:/|$)`)

// Classifier maps request paths to route classes. The longest allowlisted prefix wins.
type Classifier struct {
	rules []AllowlistRule
}

func NewClassifier(rules []AllowlistRule) *Classifier {
	c := &Classifier{rules: make([]AllowlistRule, 0, len(rules))}
	for _, r := range rules {
		if r.Prefix = strings.TrimSpace(r.Prefix); r.Prefix != "" {
			c.rules = append(c.rules, r)
		}
	}
	sort.SliceStable(c.rules, func(i, j int) bool {
		return len(c.rules[i].Prefix) > len(c.rules[j].Prefix)
	})
	return c
}

func (c *Classifier) ClassifyPath(path string) RouteClass {
	for _, r := range c.rules {
		if HasPathPrefixOnBoundary(path, r.Prefix) {
			return r.Class
		}
	}
	if moduleAPIPattern.MatchString(path) {
		return RouteClassInternalAPI
	}
	return RouteClassUnknown
}

// HasPathPrefixOnBoundary reports whether prefix covers path up to a segment boundary:
// "/health" covers "/health" and "/health/db" but not "/healthz".
func HasPathPrefixOnBoundary(path, prefix string) bool {
	rest, ok := strings.CutPrefix(path, prefix)
	switch {
	case prefix == "" || !ok:
		return false
	case rest == "", strings.HasSuffix(prefix, "/"):
		return true
	default:
		return rest[0] == '/'
	}
}
