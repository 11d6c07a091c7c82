package commit

import (
	"crypto/sha1"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// IDLen is the hex length of a commit id.
const IDLen = 8

// Commit is an immutable snapshot record. Files maps repository-relative
// paths to blob hashes and represents the complete tracked snapshot at
// this commit, not a delta. Children is the one field mutated after
// creation: the graph appends to it when a descendant commit links back.
type Commit struct {
	ID        string            `json:"id"`
	Message   string            `json:"message"`
	Author    string            `json:"author"`
	Timestamp string            `json:"timestamp"`
	Parent    string            `json:"parent,omitempty"`
	Files     map[string]string `json:"files"`
	Children  []string          `json:"children"`
}

// New creates a commit with a freshly generated id. Parent may be empty
// for the first commit of a repository.
func New(message, author, parent string) *Commit {
	return &Commit{
		ID:        generateID(),
		Message:   message,
		Author:    author,
		Timestamp: time.Now().Format(time.RFC3339),
		Parent:    parent,
		Files:     make(map[string]string),
		Children:  []string{},
	}
}

// AddFile records a path → blob hash pair in the snapshot.
func (c *Commit) AddFile(path, hash string) {
	c.Files[path] = hash
}

// generateID derives a short id from the creation instant and a random
// salt. Ids are deliberately not content hashes: two commits with
// identical payloads get different ids.
func generateID() string {
	raw := time.Now().Format(time.RFC3339Nano) + uuid.NewString()
	sum := sha1.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])[:IDLen]
}
