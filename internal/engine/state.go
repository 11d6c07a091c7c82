package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"grit/internal/commit"
	"grit/internal/graph"
	"grit/internal/vcserrors"
)

// stateDoc is the single serialized repository document. Head and
// branch tips are pointers so an unborn branch round-trips as null
// rather than an empty string.
type stateDoc struct {
	Graph  graphDoc `json:"graph"`
	Config Config   `json:"config"`
}

type graphDoc struct {
	Commits       map[string]*commit.Commit `json:"commits"`
	Head          *string                   `json:"head"`
	Branches      map[string]*string        `json:"branches"`
	CurrentBranch string                    `json:"current_branch"`
}

// saveState writes the full graph plus config as one document,
// overwriting state.json via a temp file and rename so a crashed save
// never leaves a half-written state behind.
func (e *Engine) saveState() error {
	doc := stateDoc{
		Graph: graphDoc{
			Commits:       e.graph.All(),
			Head:          optional(e.graph.Head()),
			Branches:      make(map[string]*string),
			CurrentBranch: e.graph.CurrentBranch(),
		},
		Config: e.config,
	}
	for name, tip := range e.graph.BranchTips() {
		doc.Graph.Branches[name] = optional(tip)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return vcserrors.StorageIO("marshaling state", err)
	}

	tmp, err := os.CreateTemp(e.controlPath, "state-*.json")
	if err != nil {
		return vcserrors.StorageIO("creating temp state file", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return vcserrors.StorageIO("writing state", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return vcserrors.StorageIO("closing state file", err)
	}

	if err := os.Rename(tmpName, filepath.Join(e.controlPath, stateFile)); err != nil {
		os.Remove(tmpName)
		return vcserrors.StorageIO("replacing state file", err)
	}
	return nil
}

// loadState reads and strictly validates the state document. A missing
// file is NotFound; anything structurally invalid is Corrupt.
func loadState(path string) (*graph.Graph, Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, Config{}, vcserrors.NotFound("repository state file is missing")
		}
		return nil, Config{}, vcserrors.StorageIO("reading state file", err)
	}

	var doc stateDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, Config{}, vcserrors.Corrupt("state document is not valid JSON", err)
	}

	if err := validate(&doc); err != nil {
		return nil, Config{}, err
	}

	if doc.Config.Author == "" {
		doc.Config = DefaultConfig()
	}

	branches := make(map[string]string, len(doc.Graph.Branches))
	for name, tip := range doc.Graph.Branches {
		branches[name] = deref(tip)
	}

	g := graph.Load(doc.Graph.Commits, deref(doc.Graph.Head), branches, doc.Graph.CurrentBranch)
	return g, doc.Config, nil
}

func validate(doc *stateDoc) error {
	if doc.Graph.Commits == nil {
		return corruptf("missing commit map")
	}
	if doc.Graph.CurrentBranch == "" {
		return corruptf("missing current branch")
	}
	if doc.Graph.Branches == nil {
		return corruptf("missing branch table")
	}
	if _, ok := doc.Graph.Branches[doc.Graph.CurrentBranch]; !ok {
		return corruptf("current branch %q is not in the branch table", doc.Graph.CurrentBranch)
	}

	for id, c := range doc.Graph.Commits {
		if c == nil {
			return corruptf("commit %q has no body", id)
		}
		if c.ID != id {
			return corruptf("commit key %q does not match its id %q", id, c.ID)
		}
		if c.Timestamp == "" {
			return corruptf("commit %q has no timestamp", id)
		}
		if c.Files == nil {
			return corruptf("commit %q has no file map", id)
		}
		if c.Children == nil {
			c.Children = []string{}
		}
	}

	if head := deref(doc.Graph.Head); head != "" {
		if _, ok := doc.Graph.Commits[head]; !ok {
			return corruptf("head %q is not a known commit", head)
		}
	}
	for name, tip := range doc.Graph.Branches {
		if t := deref(tip); t != "" {
			if _, ok := doc.Graph.Commits[t]; !ok {
				return corruptf("branch %q points at unknown commit %q", name, t)
			}
		}
	}
	return nil
}

func corruptf(format string, args ...any) error {
	return vcserrors.Corrupt(fmt.Sprintf(format, args...), nil)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
