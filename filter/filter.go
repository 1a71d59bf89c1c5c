// Package filter implements the LDAP-style property-predicate language used
// throughout the runtime to select service references: parenthesized
// boolean expressions over property keys and values, with wildcards and the
// usual &, |, ! combinators. The implementation is a plain recursive-descent
// parser producing a small AST and a straight visitor evaluator, tokenized
// over balanced parentheses rather than built on regular expressions. Error
// reporting and the total-function discipline follow the corvuserr
// conventions used everywhere else in this module.
package filter

import (
	"fmt"
	"strings"

	"github.com/corvus-rt/corvus/corvuserr"
)

// kind discriminates the node types of a parsed Filter.
type kind int

const (
	kAnd kind = iota
	kOr
	kNot
	kEq
	kLe
	kGe
	kApprox
	kPresent
)

// Filter is a parsed LDAP-style predicate over a property map. A nil
// *Filter, or one parsed from an empty string, matches everything.
type Filter struct {
	k        kind
	attr     string
	value    string
	children []*Filter
}

// objectClassAttr is the reserved attribute name that evaluates against a
// reference's set of interface names rather than a single scalar value.
const objectClassAttr = "objectClass"

// Parse parses an LDAP-style filter string. Parsing is total: any unmatched
// parenthesis or unrecognized operator is reported as a
// corvuserr.CodeMalformedFilter error, never silently accepted. An empty
// string parses to a nil *Filter that matches everything.
func Parse(s string) (*Filter, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	p := &parser{input: s}
	f, err := p.parseFilter()
	if err != nil {
		return nil, corvuserr.MalformedFilter(s, err)
	}
	p.skipSpace()
	if p.pos != len(p.input) {
		return nil, corvuserr.MalformedFilter(s, fmt.Errorf("unexpected trailing input at offset %d", p.pos))
	}
	return f, nil
}

// MustParse parses s and panics on error. Intended for static filters built
// at init time, never for filters derived from user or network input.
func MustParse(s string) *Filter {
	f, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return f
}

// CombineAnd returns a single filter that is the conjunction of fs. nil
// filters are treated as "match everything" and dropped. Combining zero
// non-nil filters returns nil (match everything).
func CombineAnd(fs ...*Filter) *Filter {
	var kept []*Filter
	for _, f := range fs {
		if f != nil {
			kept = append(kept, f)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	default:
		return &Filter{k: kAnd, children: kept}
	}
}

// Escape escapes the LDAP-filter metacharacters ( ) * \ in a literal value
// so it can be embedded safely in a generated filter string.
func Escape(literal string) string {
	var b strings.Builder
	for _, r := range literal {
		switch r {
		case '(', ')', '*', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// String renders the filter back to LDAP-filter syntax.
func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	switch f.k {
	case kAnd:
		return "(&" + joinChildren(f.children) + ")"
	case kOr:
		return "(|" + joinChildren(f.children) + ")"
	case kNot:
		return "(!" + f.children[0].String() + ")"
	case kEq:
		return fmt.Sprintf("(%s=%s)", f.attr, f.value)
	case kLe:
		return fmt.Sprintf("(%s<=%s)", f.attr, f.value)
	case kGe:
		return fmt.Sprintf("(%s>=%s)", f.attr, f.value)
	case kApprox:
		return fmt.Sprintf("(%s~=%s)", f.attr, f.value)
	case kPresent:
		return fmt.Sprintf("(%s=*)", f.attr)
	}
	return ""
}

func joinChildren(children []*Filter) string {
	var b strings.Builder
	for _, c := range children {
		b.WriteString(c.String())
	}
	return b.String()
}

// Matches evaluates the filter against a property map. Matching is total:
// a missing key makes any comparison predicate false, except beneath a '!'
// where the absence is itself what gets negated. A nil filter (including
// one parsed from "") matches everything.
func (f *Filter) Matches(props map[string]any) bool {
	if f == nil {
		return true
	}
	switch f.k {
	case kAnd:
		for _, c := range f.children {
			if !c.Matches(props) {
				return false
			}
		}
		return true
	case kOr:
		for _, c := range f.children {
			if c.Matches(props) {
				return true
			}
		}
		return false
	case kNot:
		return !f.children[0].Matches(props)
	case kPresent:
		if strings.EqualFold(f.attr, objectClassAttr) {
			return len(interfaceNames(props)) > 0
		}
		_, ok := props[f.attr]
		return ok
	case kEq:
		return f.matchEq(props)
	case kLe:
		return compareOrdered(f, props) <= 0
	case kGe:
		c := compareOrdered(f, props)
		return c != 2 && c >= 0
	case kApprox:
		return f.matchApprox(props)
	}
	return false
}

func (f *Filter) matchEq(props map[string]any) bool {
	if hasWildcard(f.value) {
		return matchWildcard(f.value, f.scalar(props))
	}
	if strings.EqualFold(f.attr, objectClassAttr) {
		for _, name := range interfaceNames(props) {
			if name == f.value {
				return true
			}
		}
		return false
	}
	v, ok := props[f.attr]
	if !ok {
		return false
	}
	return toString(v) == f.value
}

// scalar returns the string form of the property value, or "" when absent
// or when the attribute is objectClass (wildcards never apply there).
func (f *Filter) scalar(props map[string]any) string {
	if strings.EqualFold(f.attr, objectClassAttr) {
		return ""
	}
	v, ok := props[f.attr]
	if !ok {
		return ""
	}
	return toString(v)
}

func (f *Filter) matchApprox(props map[string]any) bool {
	v, ok := props[f.attr]
	if !ok {
		return false
	}
	return strings.Contains(normalizeApprox(toString(v)), normalizeApprox(f.value))
}

// normalizeApprox case-folds and collapses internal whitespace runs, which
// is how ~= defines approximate equality.
func normalizeApprox(s string) string {
	fields := strings.Fields(strings.ToLower(s))
	return strings.Join(fields, " ")
}

// compareOrdered returns -1/0/1 comparing the property's string value to
// the filter's literal, lexically. A missing key reports a 2 sentinel, which
// <= rejects by value and >= rejects by checking for it explicitly.
func compareOrdered(f *Filter, props map[string]any) int {
	v, ok := props[f.attr]
	if !ok {
		return 2 // neither <= nor >= is satisfied by an absent key
	}
	return strings.Compare(toString(v), f.value)
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// interfaceNames extracts the objectClass list from a property map, which
// registry populates as []string under that reserved key.
func interfaceNames(props map[string]any) []string {
	v, ok := props[objectClassAttr]
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			out = append(out, toString(e))
		}
		return out
	default:
		return nil
	}
}

func hasWildcard(s string) bool { return strings.Contains(s, "*") }

// matchWildcard implements glob-style '*' matching used by '=' filters
// that contain a literal wildcard (substring filters).
func matchWildcard(pattern, value string) bool {
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return pattern == value
	}

	rest := value
	for i, part := range parts {
		if part == "" {
			continue
		}
		switch {
		case i == 0:
			if !strings.HasPrefix(rest, part) {
				return false
			}
			rest = rest[len(part):]
		case i == len(parts)-1:
			return strings.HasSuffix(rest, part)
		default:
			idx := strings.Index(rest, part)
			if idx < 0 {
				return false
			}
			rest = rest[idx+len(part):]
		}
	}
	return true
}
