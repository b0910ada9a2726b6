package manifest

import (
	"strconv"
	"strings"

	"github.com/roach88/bowltrack/internal/bowl"
)

// Entry is one candidate code found in a manifest, with the metadata in
// scope where it was found.
type Entry struct {
	Code string    `json:"code"`
	Meta bowl.Meta `json:"meta"`
	Path string    `json:"path"`
}

// Fields that hold a single code, in extraction order.
var codeFields = []string{"code", "id", "boxId", "bowlCode", "bowl_id", "uniqueIdentifier"}

// Fields that hold a list of codes.
var codeListFields = []string{"bowlCodes", "codes"}

// Keys whose elements are company-level nodes, where "name" means company.
var containerKeys = map[string]bool{
	"companies":  true,
	"deliveries": true,
	"company":    true,
}

// Keys consumed as metadata or codes, never walked into.
var skipKeys = map[string]bool{
	"bowlCodes": true,
	"codes":     true,
	"users":     true,
}

// scope is the metadata in effect at a node. It is passed by value, so a
// child can never change what its siblings or parent see.
type scope struct {
	meta      bowl.Meta
	container bool
	path      string
}

// Flatten walks root depth-first and returns every candidate code in
// document order. Codes are trimmed; empty strings are dropped. No allow-list
// or dedupe is applied here.
func Flatten(root *Node) []Entry {
	var out []Entry
	visit(root, scope{container: true, path: "$"}, &out)
	return out
}

func visit(n *Node, sc scope, out *[]Entry) {
	if n == nil {
		return
	}
	switch n.Kind {
	case KindArray:
		for i, item := range n.Items {
			child := sc
			child.path = sc.path + "[" + strconv.Itoa(i) + "]"
			visit(item, child, out)
		}
	case KindObject:
		visitObject(n, sc, out)
	}
}

func visitObject(n *Node, parent scope, out *[]Entry) {
	sc := parent
	sc.meta = derive(n, parent)

	emit := func(raw, path string) {
		if c := strings.TrimSpace(raw); c != "" {
			*out = append(*out, Entry{Code: c, Meta: sc.meta, Path: path})
		}
	}

	for _, key := range codeFields {
		if v := n.Get(key); v != nil && v.Kind == KindString {
			emit(v.Str, sc.path+"."+key)
		}
	}
	for _, key := range codeListFields {
		list := n.Get(key)
		if list == nil || list.Kind != KindArray {
			continue
		}
		for i, item := range list.Items {
			if item.Kind == KindString {
				emit(item.Str, sc.path+"."+key+"["+strconv.Itoa(i)+"]")
			}
		}
	}

	for _, f := range n.Fields {
		if skipKeys[f.Key] {
			continue
		}
		if f.Value.Kind != KindObject && f.Value.Kind != KindArray {
			continue
		}
		child := scope{
			meta:      sc.meta,
			container: containerKeys[f.Key],
			path:      sc.path + "." + f.Key,
		}
		visit(f.Value, child, out)
	}
}

// derive computes the metadata for node n from the parent scope. Values set
// on n win over inherited ones.
func derive(n *Node, parent scope) bowl.Meta {
	m := parent.meta

	company := firstString(n, "company", "companyName")
	if company == "" && parent.container {
		company = n.Get("name").String()
	}
	if company != "" {
		m.Company = company
	}

	if customer := usersOf(n); customer != "" {
		m.Customer = customer
	} else if c := strings.TrimSpace(n.Get("customer").String()); c != "" {
		m.Customer = c
	}

	if dish := firstString(n, "label", "dish"); dish != "" {
		m.Dish = dish
	}
	return m
}

// usersOf joins the users list (plain names or {"username": ...} objects).
func usersOf(n *Node) string {
	users := n.Get("users")
	if users == nil || users.Kind != KindArray {
		return ""
	}
	var names []string
	for _, u := range users.Items {
		name := u.String()
		if u.Kind == KindObject {
			name = u.Get("username").String()
		}
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return strings.Join(names, ", ")
}

func firstString(n *Node, keys ...string) string {
	for _, k := range keys {
		if s := strings.TrimSpace(n.Get(k).String()); s != "" {
			return s
		}
	}
	return ""
}
