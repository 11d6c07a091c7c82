package engine

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"grit/internal/blob"
	"grit/internal/commit"
	"grit/internal/diff"
	"grit/internal/graph"
	"grit/internal/history"
	"grit/internal/staging"
	"grit/internal/vcserrors"
)

const (
	// ControlDir is the repository control directory name.
	ControlDir = ".grit"

	objectsDir = "objects"
	refsDir    = "refs"
	metaDir    = "meta"
	stateFile  = "state.json"

	diffContextLines = 3
)

// Config is the per-repository configuration persisted alongside the
// graph.
type Config struct {
	Author string `json:"author"`
}

// DefaultConfig is the configuration a fresh repository starts with.
func DefaultConfig() Config {
	return Config{Author: "User"}
}

// Status is a read-only snapshot of the repository position.
type Status struct {
	Branch       string
	Head         string
	StagedFiles  []string
	TotalCommits int
}

// Engine composes the content store, staging area, commit graph and
// history stack into a usable repository, owns the on-disk layout, and
// persists the full state on every mutation.
type Engine struct {
	root        string
	controlPath string

	db      *badger.DB
	store   *blob.Store
	graph   *graph.Graph
	staging *staging.Area
	history *history.Stack
	differ  *diff.Engine
	config  Config
	logger  *zap.Logger
}

// Init creates a new repository at root. It fails with AlreadyExists if
// the control directory is already present; it never overwrites an
// existing repository.
func Init(root string, logger *zap.Logger) (*Engine, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, vcserrors.StorageIO("resolving repository root", err)
	}
	controlPath := filepath.Join(root, ControlDir)

	if _, err := os.Stat(controlPath); err == nil {
		return nil, vcserrors.AlreadyExists("repository already exists at %s", root)
	}

	for _, dir := range []string{controlPath, filepath.Join(controlPath, objectsDir), filepath.Join(controlPath, refsDir)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, vcserrors.StorageIO("creating repository layout", err)
		}
	}

	e, err := open(root, controlPath, graph.New(), DefaultConfig(), logger)
	if err != nil {
		return nil, err
	}

	if err := e.saveState(); err != nil {
		e.Close()
		return nil, err
	}

	e.logger.Info("initialized repository", zap.String("root", root))
	return e, nil
}

// Load reconstructs an engine from the persisted state file. It fails
// with NotFound when the control directory or state file is missing and
// with Corrupt when the state document is malformed. The history stack
// is rebuilt by replaying history from the loaded head.
func Load(root string, logger *zap.Logger) (*Engine, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, vcserrors.StorageIO("resolving repository root", err)
	}
	controlPath := filepath.Join(root, ControlDir)

	if _, err := os.Stat(controlPath); err != nil {
		return nil, vcserrors.NotFound("no repository at %s", root)
	}

	g, cfg, err := loadState(filepath.Join(controlPath, stateFile))
	if err != nil {
		return nil, err
	}

	e, err := open(root, controlPath, g, cfg, logger)
	if err != nil {
		return nil, err
	}

	// Replay newest-first, leaving the root commit on top. Preserved
	// deliberately; see the history package.
	for _, c := range e.graph.History("") {
		e.history.Push(c.ID)
	}

	e.logger.Info("loaded repository",
		zap.String("root", root),
		zap.String("branch", e.graph.CurrentBranch()),
		zap.Int("commits", e.graph.Len()))
	return e, nil
}

func open(root, controlPath string, g *graph.Graph, cfg Config, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := acquireLock(controlPath); err != nil {
		return nil, err
	}

	opts := badger.DefaultOptions(filepath.Join(controlPath, metaDir))
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		releaseLock(controlPath)
		return nil, vcserrors.StorageIO("opening metadata database", err)
	}

	store, err := blob.New(db, blob.Options{
		Root: filepath.Join(controlPath, objectsDir),
	})
	if err != nil {
		db.Close()
		releaseLock(controlPath)
		return nil, err
	}

	return &Engine{
		root:        root,
		controlPath: controlPath,
		db:          db,
		store:       store,
		graph:       g,
		staging:     staging.New(),
		history:     history.New(history.DefaultCapacity),
		differ:      diff.NewEngine(diffContextLines),
		config:      cfg,
		logger:      logger,
	}, nil
}

// Close releases the metadata database and the advisory lock.
func (e *Engine) Close() error {
	err := e.db.Close()
	releaseLock(e.controlPath)
	if err != nil {
		return vcserrors.StorageIO("closing metadata database", err)
	}
	return nil
}

// Root returns the repository root directory.
func (e *Engine) Root() string {
	return e.root
}

// Add validates that path names a regular file inside the repository,
// stores its content as a blob, and stages the path → hash pair. It
// fails without side effects when validation fails.
func (e *Engine) Add(path string) error {
	rel, err := e.repoRelative(path)
	if err != nil {
		return err
	}

	full := filepath.Join(e.root, rel)
	info, err := os.Stat(full)
	if err != nil || !info.Mode().IsRegular() {
		return vcserrors.NotFound("%s is not a regular file in the repository", path)
	}

	content, err := os.ReadFile(full)
	if err != nil {
		return vcserrors.StorageIO("reading file", err)
	}

	hash, err := e.store.Store(content)
	if err != nil {
		return err
	}

	e.staging.Add(rel, hash)
	e.logger.Debug("staged file", zap.String("path", rel), zap.String("hash", hash))
	return nil
}

// Commit builds a commit from the staging snapshot, inserts it, pushes
// its id on the history stack, clears staging, and persists. An empty
// author falls back to the configured default. Committing with nothing
// staged is an EmptyStaging error, and a failed persist rolls the
// in-memory insertion back so head never advances on a failed save.
func (e *Engine) Commit(message, author string) (string, error) {
	if e.staging.IsEmpty() {
		return "", vcserrors.EmptyStaging("nothing staged to commit")
	}
	if author == "" {
		author = e.config.Author
	}

	c := commit.New(message, author, e.graph.Head())
	for path, hash := range e.staging.Files() {
		c.AddFile(path, hash)
	}

	// Head and the branch tip are captured separately: after a commit
	// checkout they differ, and the rollback must not reattach one to
	// the other.
	prevHead := e.graph.Head()
	prevTip := e.graph.BranchTips()[e.graph.CurrentBranch()]
	e.graph.AddCommit(c)

	if err := e.saveState(); err != nil {
		e.graph.RemoveCommit(c.ID, prevHead, prevTip)
		return "", err
	}

	e.history.Push(c.ID)
	e.staging.Clear()

	e.logger.Info("created commit",
		zap.String("id", c.ID),
		zap.String("branch", e.graph.CurrentBranch()),
		zap.Int("files", len(c.Files)))
	return c.ID, nil
}

// Log returns up to limit history entries, newest first.
func (e *Engine) Log(limit int) []*commit.Commit {
	h := e.graph.History("")
	if limit >= 0 && limit < len(h) {
		h = h[:limit]
	}
	return h
}

// GetCommit looks up a commit by id.
func (e *Engine) GetCommit(id string) (*commit.Commit, bool) {
	return e.graph.Commit(id)
}

// CreateBranch records a new branch pointing at the current head. A
// name already in use is an AlreadyExists error.
func (e *Engine) CreateBranch(name string) error {
	if name == "" {
		return vcserrors.NotFound("branch name cannot be empty")
	}
	if e.graph.HasBranch(name) {
		return vcserrors.AlreadyExists("branch %q already exists", name)
	}

	e.graph.CreateBranch(name)
	if err := e.saveState(); err != nil {
		e.graph.DeleteBranch(name)
		return err
	}

	e.logger.Info("created branch", zap.String("name", name), zap.String("tip", e.graph.Head()))
	return nil
}

// SwitchBranch repoints the graph at the named branch. It does not
// alter working-directory contents; that asymmetry with Checkout is
// deliberate.
func (e *Engine) SwitchBranch(name string) error {
	prevBranch := e.graph.CurrentBranch()
	prevHead := e.graph.Head()

	if !e.graph.CheckoutBranch(name) {
		return vcserrors.NotFound("branch %q does not exist", name)
	}

	if err := e.saveState(); err != nil {
		e.graph.CheckoutBranch(prevBranch)
		e.graph.SetHead(prevHead)
		return err
	}

	e.logger.Info("switched branch", zap.String("name", name), zap.String("head", e.graph.Head()))
	return nil
}

// Branches returns all branch names in sorted order.
func (e *Engine) Branches() []string {
	return e.graph.Branches()
}

// Checkout restores every file recorded by the given commit into the
// working directory and points head at it directly, bypassing the
// current branch's stored tip. This is the one operation that writes
// working-directory content, and the one documented exception to the
// head == branch-tip invariant.
func (e *Engine) Checkout(commitID string) error {
	c, ok := e.graph.Commit(commitID)
	if !ok {
		return vcserrors.NotFound("commit %q does not exist", commitID)
	}

	paths := make([]string, 0, len(c.Files))
	for path := range c.Files {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		if err := e.store.Restore(c.Files[path], filepath.Join(e.root, path)); err != nil {
			return err
		}
	}

	prevHead := e.graph.Head()
	e.graph.SetHead(commitID)

	if err := e.saveState(); err != nil {
		e.graph.SetHead(prevHead)
		return err
	}

	e.logger.Info("checked out commit", zap.String("id", commitID), zap.Int("files", len(c.Files)))
	return nil
}

// History exposes the bounded undo stack. Rebuilt on load by replaying
// the commit chain from head back to the root.
func (e *Engine) History() *history.Stack {
	return e.history
}

// Status reports the current branch, head, staged paths, and commit
// count.
func (e *Engine) Status() Status {
	return Status{
		Branch:       e.graph.CurrentBranch(),
		Head:         e.graph.Head(),
		StagedFiles:  e.staging.Paths(),
		TotalCommits: e.graph.Len(),
	}
}

// Diff renders a unified diff between the head commit's version of path
// and the working-tree version, the text an annotation service
// consumes. A path tracked by neither side is a NotFound error.
func (e *Engine) Diff(path string) (string, error) {
	rel, err := e.repoRelative(path)
	if err != nil {
		return "", err
	}

	var oldContent []byte
	tracked := false
	if head := e.graph.Head(); head != "" {
		if c, ok := e.graph.Commit(head); ok {
			if hash, ok := c.Files[rel]; ok {
				tracked = true
				oldContent, err = e.store.Get(hash)
				if err != nil {
					return "", err
				}
			}
		}
	}

	newContent, err := os.ReadFile(filepath.Join(e.root, rel))
	if err != nil {
		if !os.IsNotExist(err) {
			return "", vcserrors.StorageIO("reading file", err)
		}
		if !tracked {
			return "", vcserrors.NotFound("%s is tracked by neither head nor the working tree", path)
		}
	}

	return e.differ.Unified(rel, oldContent, newContent), nil
}

// repoRelative normalizes path to a clean repository-relative path and
// rejects anything escaping the root.
func (e *Engine) repoRelative(path string) (string, error) {
	if path == "" {
		return "", vcserrors.NotFound("empty path")
	}
	if filepath.IsAbs(path) {
		rel, err := filepath.Rel(e.root, path)
		if err != nil {
			return "", vcserrors.NotFound("%s is outside the repository", path)
		}
		path = rel
	}

	rel := filepath.ToSlash(filepath.Clean(path))
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", vcserrors.NotFound("%s is outside the repository", path)
	}
	if rel == ControlDir || strings.HasPrefix(rel, ControlDir+"/") {
		return "", vcserrors.NotFound("%s is inside the control directory", path)
	}
	return rel, nil
}
