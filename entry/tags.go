package entry

import (
	"sort"
	"strings"
	"sync"
)

// tag is an interned atom. Equality between tags is reference-equal: two
// tags represent the same name iff they are the same *tag, which Context
// guarantees by never minting two atoms for the same string.
type tag struct {
	name string
}

// Context is an interning domain for tag atoms. Distinct Contexts may
// intern the same string to distinct *tag values; ckmon uses a single
// process-wide Context (DefaultContext) unless a host wants isolation
// (e.g. per-test).
type Context struct {
	mu    sync.Mutex
	atoms map[string]*tag
}

// NewContext returns an empty interning Context.
func NewContext() *Context {
	return &Context{atoms: make(map[string]*tag)}
}

// DefaultContext is the process-wide tag interning domain used by
// producer clients and the external log path unless overridden.
var DefaultContext = NewContext()

// Intern returns the canonical *tag for name, minting one if this is the
// first time name has been seen in this Context.
func (c *Context) Intern(name string) *tag {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.atoms[name]; ok {
		return t
	}
	t := &tag{name: name}
	c.atoms[name] = t
	return t
}

// Tags is an interned set of tag atoms. The zero value is an empty set.
// Equality of member tags is reference-equal (see tag); Tags itself
// compares by canonical string representation.
type Tags struct {
	atoms []*tag // sorted by name, deduplicated
}

// NewTags interns and returns the set of the given names, using ctx (or
// DefaultContext if ctx is nil).
func NewTags(ctx *Context, names ...string) Tags {
	if ctx == nil {
		ctx = DefaultContext
	}
	if len(names) == 0 {
		return Tags{}
	}
	seen := make(map[*tag]bool, len(names))
	atoms := make([]*tag, 0, len(names))
	for _, n := range names {
		t := ctx.Intern(n)
		if !seen[t] {
			seen[t] = true
			atoms = append(atoms, t)
		}
	}
	sort.Slice(atoms, func(i, j int) bool { return atoms[i].name < atoms[j].name })
	return Tags{atoms: atoms}
}

// Empty reports whether the set has no members.
func (t Tags) Empty() bool { return len(t.atoms) == 0 }

// Contains reports whether name (interned in ctx, or DefaultContext if
// nil) is a member.
func (t Tags) Contains(ctx *Context, name string) bool {
	if ctx == nil {
		ctx = DefaultContext
	}
	want := ctx.Intern(name)
	for _, a := range t.atoms {
		if a == want {
			return true
		}
	}
	return false
}

// String returns the canonical string representation used for
// persistence: member names, sorted, joined by "|".
func (t Tags) String() string {
	if len(t.atoms) == 0 {
		return ""
	}
	names := make([]string, len(t.atoms))
	for i, a := range t.atoms {
		names[i] = a.name
	}
	return strings.Join(names, "|")
}

// ParseTags reconstructs a Tags set from its canonical String
// representation, interning members in ctx (or DefaultContext if nil).
func ParseTags(ctx *Context, s string) Tags {
	if s == "" {
		return Tags{}
	}
	return NewTags(ctx, strings.Split(s, "|")...)
}

// Union returns the set union of a and b, merged by member name. When
// either set is empty the other is returned unchanged; otherwise the
// result's members are interned in DefaultContext, whatever Context a
// and b were built in.
func Union(a, b Tags) Tags {
	if a.Empty() {
		return b
	}
	if b.Empty() {
		return a
	}
	names := make(map[string]bool, len(a.atoms)+len(b.atoms))
	for _, t := range a.atoms {
		names[t.name] = true
	}
	for _, t := range b.atoms {
		names[t.name] = true
	}
	out := make([]string, 0, len(names))
	for n := range names {
		out = append(out, n)
	}
	return NewTags(nil, out...)
}
