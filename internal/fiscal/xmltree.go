package fiscal

import (
	"encoding/xml"
	"errors"
	"io"
	"strings"
)

// Element is a namespace-aware XML element whose lookups ignore namespaces.
type Element struct {
	Name     xml.Name
	Attr     []xml.Attr
	Children []*Element
	text     []byte
}

// Text returns the character data directly inside the element.
func (e *Element) Text() string {
	return string(e.text)
}

// AttrValue returns the value of the attribute with the given local name.
func (e *Element) AttrValue(local string) (string, bool) {
	for _, a := range e.Attr {
		if a.Name.Space == "xmlns" || (a.Name.Space == "" && a.Name.Local == "xmlns") {
			continue
		}
		if a.Name.Local == local {
			return a.Value, true
		}
	}
	return "", false
}

// ParseTree parses already decoded XML text into an element tree. The
// encoding named in the prolog is ignored because the text is decoded.
func ParseTree(text string) (*Element, error) {
	dec := xml.NewDecoder(strings.NewReader(text))
	dec.CharsetReader = func(_ string, in io.Reader) (io.Reader, error) {
		return in, nil
	}

	var root *Element
	var stack []*Element
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &MalformedXMLError{Err: err}
		}

		switch t := tok.(type) {
		case xml.StartElement:
			el := &Element{Name: t.Name, Attr: t.Copy().Attr}
			if len(stack) == 0 {
				if root != nil {
					return nil, &MalformedXMLError{Err: errors.New("junk after document element: <" + t.Name.Local + ">")}
				}
				root = el
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, el)
			}
			stack = append(stack, el)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				top := stack[len(stack)-1]
				top.text = append(top.text, t...)
			}
		}
	}

	if root == nil {
		return nil, &MalformedXMLError{Err: errors.New("no root element")}
	}
	return root, nil
}

type pathStep struct {
	name       string
	descendant bool
}

// parsePath splits a lookup path such as "//CPFCNPJPrestador/CNPJ" or
// "ide/@Id" into element steps and an optional trailing attribute.
func parsePath(path string) (steps []pathStep, attr string) {
	for len(path) > 0 {
		descendant := false
		switch {
		case strings.HasPrefix(path, "//"):
			descendant = true
			path = path[2:]
		case strings.HasPrefix(path, "/"):
			path = path[1:]
		}

		seg := path
		if i := strings.IndexByte(path, '/'); i >= 0 {
			seg, path = path[:i], path[i:]
		} else {
			path = ""
		}
		if seg == "" {
			continue
		}
		if strings.HasPrefix(seg, "@") {
			attr = seg[1:]
			break
		}
		steps = append(steps, pathStep{name: seg, descendant: descendant})
	}
	return steps, attr
}

// FindAll returns the elements matching path below e, in document order.
// Element names are compared by local name only.
func (e *Element) FindAll(path string) []*Element {
	steps, _ := parsePath(path)
	return e.walk(steps)
}

// FindFirst returns the first element matching path below e, or nil.
func (e *Element) FindFirst(path string) *Element {
	if found := e.FindAll(path); len(found) > 0 {
		return found[0]
	}
	return nil
}

// Values returns the trimmed values addressed by path, in document order.
// A trailing @attr step selects an attribute instead of element text.
func (e *Element) Values(path string) []string {
	steps, attr := parsePath(path)
	nodes := e.walk(steps)

	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if attr != "" {
			if v, ok := n.AttrValue(attr); ok {
				out = append(out, strings.TrimSpace(v))
			}
			continue
		}
		out = append(out, strings.TrimSpace(n.Text()))
	}
	return out
}

func (e *Element) walk(steps []pathStep) []*Element {
	current := []*Element{e}
	for _, step := range steps {
		seen := make(map[*Element]bool)
		var next []*Element
		for _, n := range current {
			var candidates []*Element
			if step.descendant {
				candidates = n.descendants(step.name)
			} else {
				candidates = n.children(step.name)
			}
			for _, c := range candidates {
				if !seen[c] {
					seen[c] = true
					next = append(next, c)
				}
			}
		}
		current = next
		if len(current) == 0 {
			return nil
		}
	}
	return current
}

func (e *Element) children(local string) []*Element {
	var out []*Element
	for _, c := range e.Children {
		if c.Name.Local == local {
			out = append(out, c)
		}
	}
	return out
}

// descendants collects matching elements below e (not e itself) in
// pre-order.
func (e *Element) descendants(local string) []*Element {
	var out []*Element
	var visit func(n *Element)
	visit = func(n *Element) {
		for _, c := range n.Children {
			if c.Name.Local == local {
				out = append(out, c)
			}
			visit(c)
		}
	}
	visit(e)
	return out
}
