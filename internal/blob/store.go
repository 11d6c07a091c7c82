package blob

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v4"
	lru "github.com/hashicorp/golang-lru/v2"

	"grit/internal/vcserrors"
)

// HashLen is the hex length of a blob hash (sha1).
const HashLen = 40

const metaPrefix = "blob:"

// Meta records bookkeeping about a stored blob. The blob files
// themselves are the source of truth; metadata is derived state kept in
// badger.
type Meta struct {
	Hash       string    `json:"hash"`
	Size       int64     `json:"size"`
	Compressed bool      `json:"compressed"`
	CreatedAt  time.Time `json:"created_at"`
	AccessedAt time.Time `json:"accessed_at"`
}

// Store is a content-addressed blob store. Objects are written once
// under <root>/<hh>/<rest> where hh is the first two hex characters of
// the sha1 of the raw bytes, and never mutated or deleted.
type Store struct {
	root  string
	db    *badger.DB
	cache *lru.Cache[string, []byte]
	comp  *compressor
}

// Options configures a Store.
type Options struct {
	Root        string // object directory, required
	CacheSize   int    // number of blobs to keep in memory
	Compression CompressionOptions
}

func New(db *badger.DB, opts Options) (*Store, error) {
	if opts.Root == "" {
		return nil, fmt.Errorf("object directory is required")
	}
	if err := os.MkdirAll(opts.Root, 0755); err != nil {
		return nil, vcserrors.StorageIO("creating object directory", err)
	}

	if opts.CacheSize == 0 {
		opts.CacheSize = 128
	}
	cache, err := lru.New[string, []byte](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating cache: %w", err)
	}

	comp, err := newCompressor(opts.Compression)
	if err != nil {
		return nil, fmt.Errorf("creating compressor: %w", err)
	}

	return &Store{
		root:  opts.Root,
		db:    db,
		cache: cache,
		comp:  comp,
	}, nil
}

// Hash returns the hex sha1 of content.
func Hash(content []byte) string {
	h := sha1.Sum(content)
	return hex.EncodeToString(h[:])
}

// Store writes content and returns its hash. Storing the same bytes
// twice is a no-op the second time and returns the same hash.
func (s *Store) Store(content []byte) (string, error) {
	if content == nil {
		content = []byte{}
	}

	hash := Hash(content)
	if s.Exists(hash) {
		return hash, nil
	}

	path := s.objectPath(hash)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", vcserrors.StorageIO("creating shard directory", err)
	}

	data, compressed := s.comp.compress(content)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", vcserrors.StorageIO("writing object", err)
	}

	now := time.Now().UTC()
	meta := Meta{
		Hash:       hash,
		Size:       int64(len(content)),
		Compressed: compressed,
		CreatedAt:  now,
		AccessedAt: now,
	}
	if err := s.putMeta(meta); err != nil {
		os.Remove(path)
		return "", err
	}

	s.cache.Add(hash, content)
	return hash, nil
}

// Get returns the raw bytes of the blob with the given hash.
func (s *Store) Get(hash string) ([]byte, error) {
	if !ValidHash(hash) {
		return nil, vcserrors.NotFound("invalid blob hash %q", hash)
	}

	if content, ok := s.cache.Get(hash); ok {
		return content, nil
	}

	data, err := os.ReadFile(s.objectPath(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, vcserrors.NotFound("blob %s not found", hash)
		}
		return nil, vcserrors.StorageIO("reading object", err)
	}

	content, err := s.comp.decompress(data)
	if err != nil {
		return nil, vcserrors.Corrupt(fmt.Sprintf("decompressing blob %s", hash), err)
	}
	if Hash(content) != hash {
		return nil, vcserrors.Corrupt(fmt.Sprintf("blob %s content hash mismatch", hash), nil)
	}

	s.cache.Add(hash, content)
	s.touch(hash)
	return content, nil
}

// Restore copies the blob with the given hash to dest, creating any
// missing parent directories. An unknown hash is a NotFound error.
func (s *Store) Restore(hash, dest string) error {
	content, err := s.Get(hash)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return vcserrors.StorageIO("creating destination directory", err)
	}
	if err := os.WriteFile(dest, content, 0644); err != nil {
		return vcserrors.StorageIO("restoring object", err)
	}
	return nil
}

// Exists reports whether a blob with the given hash is stored.
func (s *Store) Exists(hash string) bool {
	if !ValidHash(hash) {
		return false
	}
	if s.cache.Contains(hash) {
		return true
	}
	if _, err := s.getMeta(hash); err == nil {
		return true
	}
	_, err := os.Stat(s.objectPath(hash))
	return err == nil
}

// Stat returns the stored metadata for a blob.
func (s *Store) Stat(hash string) (Meta, error) {
	if !ValidHash(hash) {
		return Meta{}, vcserrors.NotFound("invalid blob hash %q", hash)
	}
	return s.getMeta(hash)
}

// ValidHash reports whether hash is a well-formed blob hash.
func ValidHash(hash string) bool {
	if len(hash) != HashLen {
		return false
	}
	_, err := hex.DecodeString(hash)
	return err == nil
}

func (s *Store) objectPath(hash string) string {
	return filepath.Join(s.root, hash[:2], hash[2:])
}

func (s *Store) touch(hash string) {
	meta, err := s.getMeta(hash)
	if err != nil {
		return
	}
	meta.AccessedAt = time.Now().UTC()
	_ = s.putMeta(meta)
}

func (s *Store) putMeta(meta Meta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return vcserrors.StorageIO("marshaling blob metadata", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(metaPrefix+meta.Hash), data)
	})
	if err != nil {
		return vcserrors.StorageIO("storing blob metadata", err)
	}
	return nil
}

func (s *Store) getMeta(hash string) (Meta, error) {
	var meta Meta
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(metaPrefix + hash))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &meta)
		})
	})
	if err == badger.ErrKeyNotFound {
		return Meta{}, vcserrors.NotFound("blob %s not found", hash)
	}
	if err != nil {
		return Meta{}, vcserrors.StorageIO("reading blob metadata", err)
	}
	return meta, nil
}
