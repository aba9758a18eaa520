// Package ledger remembers which source files were ingested into which collection, keyed by
// content digest, so incremental runs can skip unchanged files.
package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"go.uber.org/zap"
)

const keyPrefix = "ledger/"

// Entry is what the ledger keeps per (collection, file).
type Entry struct {
	Digest     string    `json:"digest"`
	Records    int       `json:"records"`
	IngestedAt time.Time `json:"ingested_at"`
}

// Ledger is a badger-backed ingestion ledger.
type Ledger struct {
	db  *badger.DB
	now func() time.Time
}

// Open opens the ledger at path, creating the directory when needed.
// An empty path keeps the ledger in memory for the lifetime of the process.
func Open(path string, logger *zap.Logger) (*Ledger, error) {
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("create ledger dir: %w", err)
		}
		opts = badger.DefaultOptions(path)
	}
	opts.Logger = &badgerLogger{s: logger.Named("ledger").Sugar()}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	return &Ledger{db: db, now: time.Now}, nil
}

// Close flushes and closes the ledger.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Get returns the entry for a file; ok is false when the file was never ingested.
func (l *Ledger) Get(_ context.Context, collection, file string) (Entry, bool, error) {
	var (
		e  Entry
		ok bool
	)
	err := l.db.View(func(tx *badger.Txn) error {
		item, err := tx.Get(key(collection, file))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		ok = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &e)
		})
	})
	if err != nil {
		return Entry{}, false, fmt.Errorf("ledger get %s/%s: %w", collection, file, err)
	}
	return e, ok, nil
}

// Unchanged reports whether the file was ingested before with the same digest.
func (l *Ledger) Unchanged(ctx context.Context, collection, file, digest string) (bool, error) {
	e, ok, err := l.Get(ctx, collection, file)
	if err != nil || !ok {
		return false, err
	}
	return e.Digest == digest, nil
}

// Record stores the digest of a successfully ingested file.
func (l *Ledger) Record(_ context.Context, collection, file, digest string, records int) error {
	val, err := json.Marshal(Entry{Digest: digest, Records: records, IngestedAt: l.now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal ledger entry: %w", err)
	}
	if err := l.db.Update(func(tx *badger.Txn) error {
		return tx.Set(key(collection, file), val)
	}); err != nil {
		return fmt.Errorf("ledger record %s/%s: %w", collection, file, err)
	}
	return nil
}

// Reset forgets every file of a collection.
func (l *Ledger) Reset(_ context.Context, collection string) error {
	if err := l.db.DropPrefix([]byte(keyPrefix + collection + "/")); err != nil {
		return fmt.Errorf("ledger reset %s: %w", collection, err)
	}
	return nil
}

func key(collection, file string) []byte {
	return []byte(keyPrefix + collection + "/" + file)
}

// FileDigest returns the hex sha256 of a file's contents.
func FileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("digest %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// badgerLogger routes badger's internal logging through zap.
type badgerLogger struct {
	s *zap.SugaredLogger
}

var _ badger.Logger = (*badgerLogger)(nil)

func (b *badgerLogger) Errorf(msg string, args ...any)   { b.s.Errorf(msg, args...) }
func (b *badgerLogger) Warningf(msg string, args ...any) { b.s.Warnf(msg, args...) }
func (b *badgerLogger) Infof(msg string, args ...any)    { b.s.Debugf(msg, args...) }
func (b *badgerLogger) Debugf(msg string, args ...any)   { b.s.Debugf(msg, args...) }
