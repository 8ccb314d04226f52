package filter

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidPattern is returned for an excluded-item expression without a wildcard.
var ErrInvalidPattern = errors.New("excluded item must contain a '*' wildcard")

// ExcludedItems is an ordered list of wildcard path expressions.
// '*' matches any run of characters, path separators included.
type ExcludedItems struct {
	items []excludedItem
}

type excludedItem struct {
	expr     string
	literals []string       // non-empty text between wildcards, substring prefilter
	matcher  *regexp.Regexp // anchored full match
}

// NewExcludedItems compiles expressions. Blank expressions are ignored; an
// expression without '*' is rejected.
func NewExcludedItems(exprs []string) (ExcludedItems, error) {
	var e ExcludedItems
	var bad []string
	for _, expr := range exprs {
		expr = strings.TrimSpace(expr)
		if expr == "" {
			continue
		}
		if !strings.Contains(expr, "*") {
			bad = append(bad, expr)
			continue
		}
		item, err := compileItem(expr)
		if err != nil {
			return ExcludedItems{}, fmt.Errorf("excluded item %q: %w", expr, err)
		}
		e.items = append(e.items, item)
	}
	if len(bad) > 0 {
		return ExcludedItems{}, fmt.Errorf("%w: %s", ErrInvalidPattern, strings.Join(bad, ", "))
	}
	return e, nil
}

func compileItem(expr string) (excludedItem, error) {
	pieces := strings.Split(expr, "*")
	quoted := make([]string, len(pieces))
	var literals []string
	for i, p := range pieces {
		quoted[i] = regexp.QuoteMeta(p)
		if p != "" {
			literals = append(literals, p)
		}
	}
	re, err := regexp.Compile("(?s)^" + strings.Join(quoted, ".*") + "$")
	if err != nil {
		return excludedItem{}, err
	}
	return excludedItem{expr: expr, literals: literals, matcher: re}, nil
}

// Len returns the number of compiled expressions.
func (e ExcludedItems) Len() int { return len(e.items) }

// Expressions returns the source expressions in order.
func (e ExcludedItems) Expressions() []string {
	out := make([]string, len(e.items))
	for i, it := range e.items {
		out[i] = it.expr
	}
	return out
}

// Matches reports whether path matches any expression.
func (e ExcludedItems) Matches(path string) bool {
	for i := range e.items {
		if e.items[i].matches(path) {
			return true
		}
	}
	return false
}

func (it *excludedItem) matches(path string) bool {
	for _, lit := range it.literals {
		if !strings.Contains(path, lit) {
			return false
		}
	}
	return it.matcher.MatchString(path)
}
