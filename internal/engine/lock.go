package engine

import (
	"fmt"
	"os"
	"path/filepath"

	"grit/internal/vcserrors"
)

const lockFile = "lock"

// acquireLock creates the advisory lock file exclusively. A second
// process against the same repository is rejected rather than left as
// undefined behavior.
func acquireLock(controlPath string) error {
	path := filepath.Join(controlPath, lockFile)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			return vcserrors.AlreadyExists("repository is locked by another process (remove %s if stale)", path)
		}
		return vcserrors.StorageIO("creating lock file", err)
	}
	fmt.Fprintf(f, "%d\n", os.Getpid())
	return f.Close()
}

func releaseLock(controlPath string) {
	os.Remove(filepath.Join(controlPath, lockFile))
}
