package core

import "testing"

func TestGroupKeepsDuplicates(t *testing.T) {
	g := NewGroup("red")
	if !g.Empty() {
		t.Fatalf("new group should be empty")
	}

	g.Add("alice")
	g.Add("bob")
	g.Add("alice")

	if got := g.Count("alice"); got != 2 {
		t.Fatalf("expected alice twice, got %d", got)
	}
	if got := g.Count("carol"); got != 0 {
		t.Fatalf("expected no carol, got %d", got)
	}

	if n := g.Remove("alice"); n != 2 {
		t.Fatalf("remove should drop every entry, dropped %d", n)
	}
	if g.Count("alice") != 0 || g.Empty() {
		t.Fatalf("unexpected members after remove: %v", g.Members())
	}

	g.Remove("bob")
	if !g.Empty() {
		t.Fatalf("group should be empty, has %v", g.Members())
	}
}

func TestGroupMembersIsACopy(t *testing.T) {
	g := NewGroup("red")
	g.Add("alice")

	m := g.Members()
	m[0] = "mallory"

	if g.Count("alice") != 1 || g.Count("mallory") != 0 {
		t.Fatalf("Members leaked internal slice: %v", g.Members())
	}
}
