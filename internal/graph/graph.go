package graph

import (
	"sort"

	"grit/internal/commit"
)

// DefaultBranch is the branch every repository starts with.
const DefaultBranch = "main"

// Graph owns every commit plus the head and branch pointers. After any
// successful mutation, head == branches[current] — the one documented
// exception is the engine's commit checkout, which detaches head
// directly.
type Graph struct {
	commits  map[string]*commit.Commit
	head     string
	branches map[string]string
	current  string
}

func New() *Graph {
	return &Graph{
		commits:  make(map[string]*commit.Commit),
		branches: map[string]string{DefaultBranch: ""},
		current:  DefaultBranch,
	}
}

// AddCommit inserts c, links it as a child of its parent when the
// parent id is already known, and advances head and the current branch
// tip. This is the only path by which head moves forward.
func (g *Graph) AddCommit(c *commit.Commit) string {
	g.commits[c.ID] = c

	if c.Parent != "" {
		if parent, ok := g.commits[c.Parent]; ok {
			parent.Children = append(parent.Children, c.ID)
		}
	}

	g.head = c.ID
	g.branches[g.current] = c.ID
	return c.ID
}

// RemoveCommit undoes an AddCommit that has not been followed by any
// other mutation. Head and the current branch tip are restored
// independently: the two differ when head was detached by a commit
// checkout, and collapsing them here would silently reattach the
// branch to the wrong commit. Used by the engine to back out an
// insertion whose persistence failed.
func (g *Graph) RemoveCommit(id, prevHead, prevTip string) {
	c, ok := g.commits[id]
	if !ok {
		return
	}
	delete(g.commits, id)

	if c.Parent != "" {
		if parent, ok := g.commits[c.Parent]; ok {
			for i, child := range parent.Children {
				if child == id {
					parent.Children = append(parent.Children[:i], parent.Children[i+1:]...)
					break
				}
			}
		}
	}

	g.head = prevHead
	g.branches[g.current] = prevTip
}

// Commit looks up a commit by id.
func (g *Graph) Commit(id string) (*commit.Commit, bool) {
	c, ok := g.commits[id]
	return c, ok
}

// History walks parent links from start (or head when start is empty)
// and returns the visited commits newest first. Traversal stops
// silently when a commit has no parent or references a parent missing
// from the graph; downstream log and rollback behavior depends on that.
func (g *Graph) History(start string) []*commit.Commit {
	var history []*commit.Commit

	current := start
	if current == "" {
		current = g.head
	}
	for current != "" {
		c, ok := g.commits[current]
		if !ok {
			break
		}
		history = append(history, c)
		current = c.Parent
	}
	return history
}

// CreateBranch points name at the current head. Duplicate names are
// overwritten silently at this layer; the engine is the one that
// rejects them.
func (g *Graph) CreateBranch(name string) {
	g.branches[name] = g.head
}

// DeleteBranch removes a branch pointer. Used by the engine to back out
// a create whose persistence failed; never exposed for the current
// branch.
func (g *Graph) DeleteBranch(name string) {
	delete(g.branches, name)
}

// CheckoutBranch repoints the graph at name. It deliberately does not
// touch the working directory; restoring files is a separate engine
// concern.
func (g *Graph) CheckoutBranch(name string) bool {
	tip, ok := g.branches[name]
	if !ok {
		return false
	}
	g.current = name
	g.head = tip
	return true
}

// HasBranch reports whether name is a known branch.
func (g *Graph) HasBranch(name string) bool {
	_, ok := g.branches[name]
	return ok
}

// Branches returns the branch names in sorted order.
func (g *Graph) Branches() []string {
	names := make([]string, 0, len(g.branches))
	for name := range g.branches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Head returns the commit id the active branch points to, or "" before
// the first commit.
func (g *Graph) Head() string {
	return g.head
}

// SetHead repoints head directly, bypassing the current branch's stored
// tip. This is the detached state the engine enters on commit checkout.
func (g *Graph) SetHead(id string) {
	g.head = id
}

// CurrentBranch returns the active branch name.
func (g *Graph) CurrentBranch() string {
	return g.current
}

// Len returns the number of commits in the graph.
func (g *Graph) Len() int {
	return len(g.commits)
}

// All returns a shallow copy of the commit map for serialization.
func (g *Graph) All() map[string]*commit.Commit {
	out := make(map[string]*commit.Commit, len(g.commits))
	for id, c := range g.commits {
		out[id] = c
	}
	return out
}

// BranchTips returns a copy of the branch → tip table.
func (g *Graph) BranchTips() map[string]string {
	out := make(map[string]string, len(g.branches))
	for name, tip := range g.branches {
		out[name] = tip
	}
	return out
}

// Load rebuilds a graph from persisted state. The caller is expected to
// have validated the shape already.
func Load(commits map[string]*commit.Commit, head string, branches map[string]string, current string) *Graph {
	g := &Graph{
		commits:  commits,
		head:     head,
		branches: branches,
		current:  current,
	}
	if g.commits == nil {
		g.commits = make(map[string]*commit.Commit)
	}
	if g.branches == nil {
		g.branches = map[string]string{DefaultBranch: ""}
	}
	return g
}
