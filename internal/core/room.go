package core

import "slices"

// Group is a named list of client ids. Joining the same group twice appends
// the id twice.
type Group struct {
	Name    string
	members []ClientID
}

// NewGroup constructs a group with no members.
func NewGroup(name string) *Group {
	return &Group{Name: name}
}

// Add appends id to the member list.
func (g *Group) Add(id ClientID) {
	g.members = append(g.members, id)
}

// Remove deletes every occurrence of id and returns how many were removed.
func (g *Group) Remove(id ClientID) int {
	before := len(g.members)
	g.members = slices.DeleteFunc(g.members, func(m ClientID) bool { return m == id })
	return before - len(g.members)
}

// Count returns how many times id appears in the group.
func (g *Group) Count(id ClientID) int {
	n := 0
	for _, m := range g.members {
		if m == id {
			n++
		}
	}
	return n
}

// Members returns a copy of the member list.
func (g *Group) Members() []ClientID {
	return slices.Clone(g.members)
}

// Empty returns true if the group has no members.
func (g *Group) Empty() bool {
	return len(g.members) == 0
}
