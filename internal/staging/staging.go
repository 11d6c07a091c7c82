package staging

import "sort"

// Area accumulates the path → blob hash pairs that will form the next
// commit's file snapshot. It does no disk validation; that belongs to
// the engine.
type Area struct {
	hashes map[string]string
}

func New() *Area {
	return &Area{hashes: make(map[string]string)}
}

// Add inserts or overwrites the mapping for path.
func (a *Area) Add(path, hash string) {
	a.hashes[path] = hash
}

// Clear empties the staging area. Called once, immediately after a
// successful commit.
func (a *Area) Clear() {
	a.hashes = make(map[string]string)
}

// IsEmpty reports whether nothing is staged.
func (a *Area) IsEmpty() bool {
	return len(a.hashes) == 0
}

// Files returns an independent copy of the staged mapping, so later
// Add/Clear calls cannot alter a commit built from a prior snapshot.
func (a *Area) Files() map[string]string {
	out := make(map[string]string, len(a.hashes))
	for path, hash := range a.hashes {
		out[path] = hash
	}
	return out
}

// Paths returns the staged paths in sorted order.
func (a *Area) Paths() []string {
	paths := make([]string, 0, len(a.hashes))
	for path := range a.hashes {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}
