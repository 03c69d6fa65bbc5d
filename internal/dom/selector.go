package dom

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// The cascade's selector tables use a small CSS subset: tag names, .class,
// #id, [attr] / [attr=value], compound simple selectors, the descendant
// combinator, and comma-separated lists. Nothing in the ecosystem the rest
// of this codebase uses covers selectors, so the matcher lives here.

type attrMatch struct {
	key   string
	value string
	any   bool // [attr] with no value requirement
}

type simpleSelector struct {
	tag     string
	id      string
	classes []string
	attrs   []attrMatch
}

type compiledSelector struct {
	// chain is ancestor-first; the final entry matches the target element.
	chain []simpleSelector
}

// Select returns all elements in the document matching the selector, in
// document order. Invalid selectors return an error so a bad table entry is
// skipped by the caller rather than silently matching nothing.
func (d *Document) Select(selector string) ([]*html.Node, error) {
	groups, err := compileSelector(selector)
	if err != nil {
		return nil, err
	}

	var out []*html.Node
	seen := map[*html.Node]bool{}
	WalkElements(d.Root, func(n *html.Node) bool {
		for _, g := range groups {
			if g.matches(n) && !seen[n] {
				seen[n] = true
				out = append(out, n)
				break
			}
		}
		return true
	})
	return out, nil
}

func compileSelector(selector string) ([]compiledSelector, error) {
	var groups []compiledSelector
	for _, part := range strings.Split(selector, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		var chain []simpleSelector
		for _, token := range strings.Fields(part) {
			simple, err := parseSimple(token)
			if err != nil {
				return nil, err
			}
			chain = append(chain, simple)
		}
		if len(chain) == 0 {
			continue
		}
		groups = append(groups, compiledSelector{chain: chain})
	}
	if len(groups) == 0 {
		return nil, fmt.Errorf("empty selector %q", selector)
	}
	return groups, nil
}

func parseSimple(token string) (simpleSelector, error) {
	var s simpleSelector
	rest := token
	for rest != "" {
		switch rest[0] {
		case '.':
			name, tail := readName(rest[1:])
			if name == "" {
				return s, fmt.Errorf("bad class in selector %q", token)
			}
			s.classes = append(s.classes, name)
			rest = tail
		case '#':
			name, tail := readName(rest[1:])
			if name == "" {
				return s, fmt.Errorf("bad id in selector %q", token)
			}
			s.id = name
			rest = tail
		case '[':
			end := strings.IndexByte(rest, ']')
			if end < 0 {
				return s, fmt.Errorf("unterminated attribute in selector %q", token)
			}
			body := rest[1:end]
			rest = rest[end+1:]
			if eq := strings.IndexByte(body, '='); eq >= 0 {
				val := strings.Trim(body[eq+1:], `"'`)
				s.attrs = append(s.attrs, attrMatch{key: body[:eq], value: val})
			} else {
				s.attrs = append(s.attrs, attrMatch{key: body, any: true})
			}
		default:
			name, tail := readName(rest)
			if name == "" {
				return s, fmt.Errorf("unparsable selector %q", token)
			}
			s.tag = strings.ToLower(name)
			rest = tail
		}
	}
	return s, nil
}

func readName(s string) (name, rest string) {
	i := 0
	for i < len(s) {
		c := s[i]
		if c == '.' || c == '#' || c == '[' {
			break
		}
		i++
	}
	return s[:i], s[i:]
}

func (s simpleSelector) matchesNode(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if s.tag != "" && !strings.EqualFold(n.Data, s.tag) {
		return false
	}
	if s.id != "" {
		id, ok := Attr(n, "id")
		if !ok || id != s.id {
			return false
		}
	}
	if len(s.classes) > 0 {
		raw, _ := Attr(n, "class")
		have := map[string]bool{}
		for _, c := range strings.Fields(raw) {
			have[c] = true
		}
		for _, want := range s.classes {
			if !have[want] {
				return false
			}
		}
	}
	for _, a := range s.attrs {
		val, ok := Attr(n, a.key)
		if !ok {
			return false
		}
		if !a.any && val != a.value {
			return false
		}
	}
	return true
}

func (c compiledSelector) matches(n *html.Node) bool {
	last := len(c.chain) - 1
	if !c.chain[last].matchesNode(n) {
		return false
	}
	// Earlier chain entries must match successively higher ancestors.
	idx := last - 1
	for p := n.Parent; p != nil && idx >= 0; p = p.Parent {
		if c.chain[idx].matchesNode(p) {
			idx--
		}
	}
	return idx < 0
}
