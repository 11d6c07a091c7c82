package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grit/internal/blob"
	"grit/internal/vcserrors"
)

func initRepo(t *testing.T) (*Engine, string) {
	t.Helper()
	root := t.TempDir()
	e, err := Init(root, nil)
	require.NoError(t, err)
	return e, root
}

func writeFile(t *testing.T, root, path, content string) {
	t.Helper()
	full := filepath.Join(root, path)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0644))
}

func TestInit(t *testing.T) {
	t.Run("CreatesLayout", func(t *testing.T) {
		e, root := initRepo(t)
		defer e.Close()

		for _, dir := range []string{ControlDir, filepath.Join(ControlDir, objectsDir), filepath.Join(ControlDir, refsDir)} {
			info, err := os.Stat(filepath.Join(root, dir))
			require.NoError(t, err)
			assert.True(t, info.IsDir())
		}
		_, err := os.Stat(filepath.Join(root, ControlDir, stateFile))
		require.NoError(t, err)

		s := e.Status()
		assert.Equal(t, "main", s.Branch)
		assert.Empty(t, s.Head)
		assert.Zero(t, s.TotalCommits)
	})

	t.Run("NeverOverwrites", func(t *testing.T) {
		e, root := initRepo(t)
		defer e.Close()

		_, err := Init(root, nil)
		require.Error(t, err)
		assert.True(t, vcserrors.IsKind(err, vcserrors.KindAlreadyExists))
	})
}

func TestLoad(t *testing.T) {
	t.Run("MissingRepository", func(t *testing.T) {
		_, err := Load(t.TempDir(), nil)
		require.Error(t, err)
		assert.True(t, vcserrors.IsKind(err, vcserrors.KindNotFound))
	})

	t.Run("MissingStateFile", func(t *testing.T) {
		root := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(root, ControlDir), 0755))

		_, err := Load(root, nil)
		require.Error(t, err)
		assert.True(t, vcserrors.IsKind(err, vcserrors.KindNotFound))
	})

	t.Run("UnparsableState", func(t *testing.T) {
		e, root := initRepo(t)
		require.NoError(t, e.Close())
		require.NoError(t, os.WriteFile(filepath.Join(root, ControlDir, stateFile), []byte("{not json"), 0644))

		_, err := Load(root, nil)
		require.Error(t, err)
		assert.True(t, vcserrors.IsKind(err, vcserrors.KindCorrupt))
	})

	t.Run("StructurallyInvalidState", func(t *testing.T) {
		e, root := initRepo(t)
		require.NoError(t, e.Close())
		require.NoError(t, os.WriteFile(filepath.Join(root, ControlDir, stateFile), []byte(`{"graph":{},"config":{}}`), 0644))

		_, err := Load(root, nil)
		require.Error(t, err)
		assert.True(t, vcserrors.IsKind(err, vcserrors.KindCorrupt))
	})

	t.Run("SecondWriterRejected", func(t *testing.T) {
		e, root := initRepo(t)
		defer e.Close()

		_, err := Load(root, nil)
		require.Error(t, err)
		assert.True(t, vcserrors.IsKind(err, vcserrors.KindAlreadyExists))
	})
}

func TestAdd(t *testing.T) {
	e, root := initRepo(t)
	defer e.Close()

	t.Run("StagesExistingFile", func(t *testing.T) {
		writeFile(t, root, "a.txt", "hello")
		require.NoError(t, e.Add("a.txt"))

		s := e.Status()
		assert.Equal(t, []string{"a.txt"}, s.StagedFiles)
	})

	t.Run("MissingFileFailsWithoutSideEffects", func(t *testing.T) {
		before := e.Status().StagedFiles

		err := e.Add("nope.txt")
		require.Error(t, err)
		assert.True(t, vcserrors.IsKind(err, vcserrors.KindNotFound))
		assert.Equal(t, before, e.Status().StagedFiles)
	})

	t.Run("DirectoryRejected", func(t *testing.T) {
		require.NoError(t, os.MkdirAll(filepath.Join(root, "subdir"), 0755))
		err := e.Add("subdir")
		require.Error(t, err)
		assert.True(t, vcserrors.IsKind(err, vcserrors.KindNotFound))
	})

	t.Run("EscapingPathRejected", func(t *testing.T) {
		err := e.Add("../outside.txt")
		require.Error(t, err)
		assert.True(t, vcserrors.IsKind(err, vcserrors.KindNotFound))
	})

	t.Run("ControlDirRejected", func(t *testing.T) {
		err := e.Add(filepath.Join(ControlDir, stateFile))
		require.Error(t, err)
		assert.True(t, vcserrors.IsKind(err, vcserrors.KindNotFound))
	})
}

func TestCommit(t *testing.T) {
	t.Run("EmptyStagingRejected", func(t *testing.T) {
		e, _ := initRepo(t)
		defer e.Close()

		before := e.Status()
		_, err := e.Commit("nothing", "")
		require.Error(t, err)
		assert.True(t, vcserrors.IsKind(err, vcserrors.KindEmptyStaging))
		assert.Equal(t, before, e.Status())
	})

	t.Run("CreatesCommitAndClearsStaging", func(t *testing.T) {
		e, root := initRepo(t)
		defer e.Close()

		writeFile(t, root, "a.txt", "hello")
		require.NoError(t, e.Add("a.txt"))

		id, err := e.Commit("msg1", "")
		require.NoError(t, err)
		require.NotEmpty(t, id)

		s := e.Status()
		assert.Equal(t, id, s.Head)
		assert.Empty(t, s.StagedFiles)
		assert.Equal(t, 1, s.TotalCommits)

		c, ok := e.GetCommit(id)
		require.True(t, ok)
		assert.Equal(t, "msg1", c.Message)
		assert.Equal(t, "User", c.Author) // configured default
		assert.Equal(t, map[string]string{"a.txt": blob.Hash([]byte("hello"))}, c.Files)
	})

	t.Run("ParentChain", func(t *testing.T) {
		e, root := initRepo(t)
		defer e.Close()

		writeFile(t, root, "a.txt", "v1")
		require.NoError(t, e.Add("a.txt"))
		id1, err := e.Commit("first", "alice")
		require.NoError(t, err)

		writeFile(t, root, "a.txt", "v2")
		require.NoError(t, e.Add("a.txt"))
		id2, err := e.Commit("second", "alice")
		require.NoError(t, err)

		c2, ok := e.GetCommit(id2)
		require.True(t, ok)
		assert.Equal(t, id1, c2.Parent)

		c1, ok := e.GetCommit(id1)
		require.True(t, ok)
		assert.Equal(t, []string{id2}, c1.Children)
	})

	t.Run("PersistFailureRollsBackFully", func(t *testing.T) {
		e, root := initRepo(t)
		defer e.Close()

		writeFile(t, root, "A", "v1")
		require.NoError(t, e.Add("A"))
		id1, err := e.Commit("v1", "")
		require.NoError(t, err)

		writeFile(t, root, "A", "v2")
		require.NoError(t, e.Add("A"))
		id2, err := e.Commit("v2", "")
		require.NoError(t, err)

		// Detach head from the branch tip before the failing commit.
		require.NoError(t, e.Checkout(id1))

		// Make the state save fail: the rename target becomes a
		// directory.
		statePath := filepath.Join(root, ControlDir, stateFile)
		require.NoError(t, os.Remove(statePath))
		require.NoError(t, os.Mkdir(statePath, 0755))

		writeFile(t, root, "B", "new")
		require.NoError(t, e.Add("B"))
		_, err = e.Commit("doomed", "")
		require.Error(t, err)
		assert.True(t, vcserrors.IsKind(err, vcserrors.KindStorageIO))

		// Nothing in memory moved: head stays detached at id1, the
		// branch tip stays at id2, the commit is gone, and staging is
		// not cleared.
		s := e.Status()
		assert.Equal(t, id1, s.Head)
		assert.Equal(t, 2, s.TotalCommits)
		assert.Equal(t, []string{"B"}, s.StagedFiles)
		assert.Equal(t, id2, e.graph.BranchTips()["main"])
		assert.Equal(t, id2, e.History().Peek())
	})

	t.Run("SnapshotIsImmutable", func(t *testing.T) {
		e, root := initRepo(t)
		defer e.Close()

		writeFile(t, root, "a.txt", "v1")
		require.NoError(t, e.Add("a.txt"))
		id, err := e.Commit("first", "")
		require.NoError(t, err)

		c, ok := e.GetCommit(id)
		require.True(t, ok)
		want := map[string]string{"a.txt": blob.Hash([]byte("v1"))}
		assert.Equal(t, want, c.Files)

		// Later staging and committing leaves the earlier snapshot alone.
		writeFile(t, root, "b.txt", "other")
		require.NoError(t, e.Add("b.txt"))
		_, err = e.Commit("second", "")
		require.NoError(t, err)

		c, ok = e.GetCommit(id)
		require.True(t, ok)
		assert.Equal(t, want, c.Files)
	})
}

func TestRoundTripPersistence(t *testing.T) {
	e, root := initRepo(t)

	writeFile(t, root, "A", "hello")
	require.NoError(t, e.Add("A"))
	id, err := e.Commit("msg1", "")
	require.NoError(t, err)
	require.NoError(t, e.Close())

	reloaded, err := Load(root, nil)
	require.NoError(t, err)
	defer reloaded.Close()

	commits := reloaded.Log(10)
	require.Len(t, commits, 1)
	assert.Equal(t, id, commits[0].ID)
	assert.Equal(t, "msg1", commits[0].Message)
	assert.Equal(t, map[string]string{"A": blob.Hash([]byte("hello"))}, commits[0].Files)

	s := reloaded.Status()
	assert.Equal(t, "main", s.Branch)
	assert.Equal(t, id, s.Head)
}

func TestHistoryStackReplayOrder(t *testing.T) {
	e, root := initRepo(t)

	writeFile(t, root, "a.txt", "v1")
	require.NoError(t, e.Add("a.txt"))
	id1, err := e.Commit("first", "")
	require.NoError(t, err)

	writeFile(t, root, "a.txt", "v2")
	require.NoError(t, e.Add("a.txt"))
	id2, err := e.Commit("second", "")
	require.NoError(t, err)

	// Live stack: most recent commit on top.
	assert.Equal(t, id2, e.History().Peek())
	require.NoError(t, e.Close())

	// Replay pushes newest-first, so the oldest commit ends on top.
	reloaded, err := Load(root, nil)
	require.NoError(t, err)
	defer reloaded.Close()

	require.Equal(t, 2, reloaded.History().Len())
	assert.Equal(t, id1, reloaded.History().Peek())
}

func TestCheckout(t *testing.T) {
	t.Run("RestoresBytes", func(t *testing.T) {
		e, root := initRepo(t)
		defer e.Close()

		writeFile(t, root, "A", "v1")
		require.NoError(t, e.Add("A"))
		id1, err := e.Commit("v1", "")
		require.NoError(t, err)

		// Modify on disk without staging or committing.
		writeFile(t, root, "A", "v2")

		require.NoError(t, e.Checkout(id1))

		got, err := os.ReadFile(filepath.Join(root, "A"))
		require.NoError(t, err)
		assert.Equal(t, "v1", string(got))
	})

	t.Run("DetachesHeadFromBranchTip", func(t *testing.T) {
		e, root := initRepo(t)
		defer e.Close()

		writeFile(t, root, "A", "v1")
		require.NoError(t, e.Add("A"))
		id1, err := e.Commit("v1", "")
		require.NoError(t, err)

		writeFile(t, root, "A", "v2")
		require.NoError(t, e.Add("A"))
		id2, err := e.Commit("v2", "")
		require.NoError(t, err)

		require.NoError(t, e.Checkout(id1))

		s := e.Status()
		assert.Equal(t, id1, s.Head)
		assert.Equal(t, "main", s.Branch)
		tipAfter := e.Log(1)
		require.Len(t, tipAfter, 1)
		assert.Equal(t, id1, tipAfter[0].ID)

		// The branch tip still points at the newest commit; switching
		// back to the branch reattaches head to it.
		require.NoError(t, e.SwitchBranch("main"))
		assert.Equal(t, id2, e.Status().Head)
	})

	t.Run("UnknownIDFailsWithoutMutation", func(t *testing.T) {
		e, root := initRepo(t)
		defer e.Close()

		writeFile(t, root, "A", "v1")
		require.NoError(t, e.Add("A"))
		_, err := e.Commit("v1", "")
		require.NoError(t, err)

		before := e.Status()
		err = e.Checkout("doesnotexist")
		require.Error(t, err)
		assert.True(t, vcserrors.IsKind(err, vcserrors.KindNotFound))
		assert.Equal(t, before, e.Status())
	})
}

func TestBranches(t *testing.T) {
	t.Run("DuplicateRejected", func(t *testing.T) {
		e, root := initRepo(t)
		defer e.Close()

		writeFile(t, root, "A", "v1")
		require.NoError(t, e.Add("A"))
		_, err := e.Commit("c1", "")
		require.NoError(t, err)

		require.NoError(t, e.CreateBranch("feature"))
		err = e.CreateBranch("feature")
		require.Error(t, err)
		assert.True(t, vcserrors.IsKind(err, vcserrors.KindAlreadyExists))
	})

	t.Run("SwitchUnknownFailsWithoutMutation", func(t *testing.T) {
		e, _ := initRepo(t)
		defer e.Close()

		before := e.Status()
		err := e.SwitchBranch("doesnotexist")
		require.Error(t, err)
		assert.True(t, vcserrors.IsKind(err, vcserrors.KindNotFound))
		assert.Equal(t, before, e.Status())
	})

	t.Run("SwitchDoesNotTouchWorkingTree", func(t *testing.T) {
		e, root := initRepo(t)
		defer e.Close()

		writeFile(t, root, "A", "v1")
		require.NoError(t, e.Add("A"))
		_, err := e.Commit("c1", "")
		require.NoError(t, err)
		require.NoError(t, e.CreateBranch("feature"))

		writeFile(t, root, "A", "dirty")
		require.NoError(t, e.SwitchBranch("feature"))

		got, err := os.ReadFile(filepath.Join(root, "A"))
		require.NoError(t, err)
		assert.Equal(t, "dirty", string(got))
	})

	t.Run("Isolation", func(t *testing.T) {
		e, root := initRepo(t)
		defer e.Close()

		writeFile(t, root, "A", "v1")
		require.NoError(t, e.Add("A"))
		id1, err := e.Commit("c1", "")
		require.NoError(t, err)

		require.NoError(t, e.CreateBranch("feature"))
		require.NoError(t, e.SwitchBranch("feature"))

		writeFile(t, root, "B", "v2")
		require.NoError(t, e.Add("B"))
		id2, err := e.Commit("c2", "")
		require.NoError(t, err)

		require.NoError(t, e.SwitchBranch("main"))
		log := e.Log(10)
		require.Len(t, log, 1)
		assert.Equal(t, id1, log[0].ID)

		require.NoError(t, e.SwitchBranch("feature"))
		log = e.Log(10)
		require.Len(t, log, 2)
		assert.Equal(t, id2, log[0].ID)
		assert.Equal(t, id1, log[1].ID)
	})

	t.Run("PersistedAcrossReload", func(t *testing.T) {
		e, root := initRepo(t)

		writeFile(t, root, "A", "v1")
		require.NoError(t, e.Add("A"))
		_, err := e.Commit("c1", "")
		require.NoError(t, err)
		require.NoError(t, e.CreateBranch("feature"))
		require.NoError(t, e.SwitchBranch("feature"))
		require.NoError(t, e.Close())

		reloaded, err := Load(root, nil)
		require.NoError(t, err)
		defer reloaded.Close()

		assert.Equal(t, "feature", reloaded.Status().Branch)
		assert.Equal(t, []string{"feature", "main"}, reloaded.Branches())
	})
}

func TestDiff(t *testing.T) {
	e, root := initRepo(t)
	defer e.Close()

	writeFile(t, root, "A", "line one\nline two\n")
	require.NoError(t, e.Add("A"))
	_, err := e.Commit("c1", "")
	require.NoError(t, err)

	t.Run("CleanFile", func(t *testing.T) {
		text, err := e.Diff("A")
		require.NoError(t, err)
		assert.Empty(t, text)
	})

	t.Run("ModifiedFile", func(t *testing.T) {
		writeFile(t, root, "A", "line one\nline 2\n")

		text, err := e.Diff("A")
		require.NoError(t, err)
		assert.Contains(t, text, "--- a/A")
		assert.Contains(t, text, "+++ b/A")
		assert.Contains(t, text, "-line two")
		assert.Contains(t, text, "+line 2")
	})

	t.Run("UntrackedFile", func(t *testing.T) {
		writeFile(t, root, "new.txt", "fresh\n")

		text, err := e.Diff("new.txt")
		require.NoError(t, err)
		assert.Contains(t, text, "+fresh")
	})

	t.Run("UnknownPath", func(t *testing.T) {
		_, err := e.Diff("ghost.txt")
		require.Error(t, err)
		assert.True(t, vcserrors.IsKind(err, vcserrors.KindNotFound))
	})
}
