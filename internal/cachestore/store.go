// Package cachestore implements CacheStore (§4.2): a durable,
// content-addressed map from (task_name, task_id) to a cache entry
// living at the filesystem layout fixed by §6. Completeness is
// tracked in a BoltDB index (grounded on the teacher's
// WorkflowStore, persistence.go) so that Has is a single fast key
// lookup and DropAll(task_name) is a cursor prefix scan rather than a
// directory walk; the actual bytes (value, scratch files, logs) live
// on disk because the spec hands the engine arbitrarily large
// per-task scratch directories that have no business living in a
// single embedded database.
package cachestore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.etcd.io/bbolt"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var bucketEntries = []byte("entries")

// Meta is the cache entry metadata persisted at meta.json, exactly the
// fields §6 names.
type Meta struct {
	CodecTag      string          `json:"codec_tag"`
	CompressLevel int             `json:"compress_level"`
	CreatedAt     time.Time       `json:"created_at"`
	ArgsJSON      json.RawMessage `json:"args_json"`
}

// Store is the CacheStore implementation.
type Store struct {
	root string
	db   *bbolt.DB

	keyLocksMu sync.Mutex
	keyLocks   map[string]*sync.Mutex

	readLatency  metric.Float64Histogram
	writeLatency metric.Float64Histogram
	cacheHits    metric.Int64Counter
	cacheMisses  metric.Int64Counter
}

// Open opens (or creates) a cache store rooted at root. Per §6, tmp/
// is emptied and recreated on open. Store does not stage its writes
// there: writeAtomic puts its temp files in the entry directory
// itself.
func Open(root string, meter metric.Meter) (*Store, error) {
	entriesDir := filepath.Join(root, "entries")
	tmpDir := filepath.Join(root, "tmp")
	if err := os.MkdirAll(entriesDir, 0o755); err != nil {
		return nil, fmt.Errorf("cachestore: create entries dir: %w", err)
	}
	if err := os.RemoveAll(tmpDir); err != nil {
		return nil, fmt.Errorf("cachestore: clear tmp dir: %w", err)
	}
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return nil, fmt.Errorf("cachestore: create tmp dir: %w", err)
	}

	db, err := bbolt.Open(filepath.Join(root, "index.db"), 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("cachestore: open index: %w", err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketEntries)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("cachestore: create index bucket: %w", err)
	}

	readLatency, _ := meter.Float64Histogram("taskgraph_cache_read_ms")
	writeLatency, _ := meter.Float64Histogram("taskgraph_cache_write_ms")
	cacheHits, _ := meter.Int64Counter("taskgraph_cache_hits_total")
	cacheMisses, _ := meter.Int64Counter("taskgraph_cache_misses_total")

	return &Store{
		root:         root,
		db:           db,
		keyLocks:     make(map[string]*sync.Mutex),
		readLatency:  readLatency,
		writeLatency: writeLatency,
		cacheHits:    cacheHits,
		cacheMisses:  cacheMisses,
	}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Root() string { return s.root }

func indexKey(taskName, taskID string) []byte {
	return []byte(taskName + "\x00" + taskID)
}

// lockFor returns the per-key mutex serialising store/drop for
// (task_name, task_id), per §4.2's "store/drop are serialised per key
// via a per-key mutex internal to the store".
func (s *Store) lockFor(taskName, taskID string) *sync.Mutex {
	key := taskName + "\x00" + taskID
	s.keyLocksMu.Lock()
	defer s.keyLocksMu.Unlock()
	m, ok := s.keyLocks[key]
	if !ok {
		m = &sync.Mutex{}
		s.keyLocks[key] = m
	}
	return m
}

// Has reports whether a complete entry exists. Backed solely by the
// index, so it never touches the filesystem.
func (s *Store) Has(taskName, taskID string) (bool, error) {
	found := false
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketEntries).Get(indexKey(taskName, taskID))
		found = v != nil
		return nil
	})
	return found, err
}

// Load returns the entry's raw (encoded, possibly compressed) value
// bytes and its metadata. Returns *MissError if the index has no
// record, *CorruptError if the index says present but the on-disk
// files are missing or unreadable.
func (s *Store) Load(ctx context.Context, taskName, taskID string) ([]byte, Meta, error) {
	start := time.Now()
	defer func() {
		if s.readLatency != nil {
			s.readLatency.Record(ctx, float64(time.Since(start).Milliseconds()),
				metric.WithAttributes(attribute.String("task_name", taskName)))
		}
	}()

	has, err := s.Has(taskName, taskID)
	if err != nil {
		return nil, Meta{}, err
	}
	if !has {
		s.recordMiss(ctx, taskName)
		return nil, Meta{}, &MissError{TaskName: taskName, TaskID: taskID}
	}

	p := pathsFor(s.root, taskName, taskID)

	metaBytes, err := os.ReadFile(p.MetaPath)
	if err != nil {
		return nil, Meta{}, &CorruptError{TaskName: taskName, TaskID: taskID, Err: err}
	}
	var meta Meta
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return nil, Meta{}, &CorruptError{TaskName: taskName, TaskID: taskID, Err: err}
	}

	value, err := os.ReadFile(p.ValuePath)
	if err != nil {
		return nil, Meta{}, &CorruptError{TaskName: taskName, TaskID: taskID, Err: err}
	}

	s.recordHit(ctx, taskName)
	return value, meta, nil
}

func (s *Store) recordHit(ctx context.Context, taskName string) {
	if s.cacheHits != nil {
		s.cacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("task_name", taskName)))
	}
}

func (s *Store) recordMiss(ctx context.Context, taskName string) {
	if s.cacheMisses != nil {
		s.cacheMisses.Add(ctx, 1, metric.WithAttributes(attribute.String("task_name", taskName)))
	}
}

// Store atomically persists value under (task_name, task_id): the
// value and metadata files are each written to a temp file in the
// entry directory, fsynced, and renamed into place (rename is atomic
// within the same directory on every filesystem Go supports); only
// after both renames succeed does the index commit mark the entry
// complete, which is the single point at which Has/Load from any
// worker observe it. If the process dies at any point before that
// commit, the entry remains wholly absent from the index and the
// orphaned files in entries/<task_name>/<task_id>/ are simply
// overwritten by the next attempt.
func (s *Store) Store(ctx context.Context, taskName, taskID string, value []byte, meta Meta) error {
	start := time.Now()
	defer func() {
		if s.writeLatency != nil {
			s.writeLatency.Record(ctx, float64(time.Since(start).Milliseconds()),
				metric.WithAttributes(attribute.String("task_name", taskName)))
		}
	}()

	lock := s.lockFor(taskName, taskID)
	lock.Lock()
	defer lock.Unlock()

	p := pathsFor(s.root, taskName, taskID)
	if err := os.MkdirAll(p.Dir, 0o755); err != nil {
		return fmt.Errorf("cachestore: create entry dir: %w", err)
	}

	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("cachestore: marshal meta: %w", err)
	}

	if err := writeAtomic(p.Dir, p.ValuePath, value); err != nil {
		return fmt.Errorf("cachestore: write value: %w", err)
	}
	if err := writeAtomic(p.Dir, p.MetaPath, metaBytes); err != nil {
		return fmt.Errorf("cachestore: write meta: %w", err)
	}

	marker := make([]byte, 8)
	binary.BigEndian.PutUint64(marker, uint64(meta.CreatedAt.UnixNano()))
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketEntries).Put(indexKey(taskName, taskID), marker)
	})
}

// writeAtomic writes data to a temp file inside dir, fsyncs it, and
// renames it to finalPath.
func writeAtomic(dir, finalPath string, data []byte) error {
	f, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, finalPath)
}

// WritePending persists the metadata a subprocess dispatch needs to
// reconstruct its task before the real cache entry exists (§4.6):
// the task's compress level and canonical args_json, addressed by the
// same (task_name, task_id) pair the child receives on its command
// line.
func (s *Store) WritePending(taskName, taskID string, data []byte) error {
	p := pathsFor(s.root, taskName, taskID)
	if err := os.MkdirAll(p.Dir, 0o755); err != nil {
		return fmt.Errorf("cachestore: create entry dir: %w", err)
	}
	return writeAtomic(p.Dir, p.PendingPath, data)
}

// ReadPending reads back the pending metadata WritePending stored for
// (task_name, task_id).
func (s *Store) ReadPending(taskName, taskID string) ([]byte, error) {
	p := pathsFor(s.root, taskName, taskID)
	return os.ReadFile(p.PendingPath)
}

// ScratchDir returns the entry's scratch directory, removing any
// existing one and creating it (and the entry directory, stdout/stderr
// files' parent) afresh on every call — per the invariant that
// scratch_dir is empty at task body start iff the body is about to
// (re)compute: callers must only
// call ScratchDir for tasks they are about to run, never for cache
// hits.
func (s *Store) ScratchDir(taskName, taskID string) (string, error) {
	p := pathsFor(s.root, taskName, taskID)
	if err := os.RemoveAll(p.ScratchDir); err != nil {
		return "", fmt.Errorf("cachestore: clear scratch dir: %w", err)
	}
	if err := os.MkdirAll(p.ScratchDir, 0o755); err != nil {
		return "", fmt.Errorf("cachestore: create scratch dir: %w", err)
	}
	return p.ScratchDir, nil
}

// PathsFor exposes the stdout/stderr paths (and the rest of the
// layout) for redirect by the dispatcher, per §4.2's paths_for.
func (s *Store) PathsFor(taskName, taskID string) Paths {
	return pathsFor(s.root, taskName, taskID)
}

// Drop removes one entry and its scratch dir.
func (s *Store) Drop(taskName, taskID string) error {
	lock := s.lockFor(taskName, taskID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketEntries).Delete(indexKey(taskName, taskID))
	}); err != nil {
		return fmt.Errorf("cachestore: drop index entry: %w", err)
	}
	p := pathsFor(s.root, taskName, taskID)
	return os.RemoveAll(p.Dir)
}

// DropAll removes every entry under a task type.
func (s *Store) DropAll(taskName string) error {
	prefix := []byte(taskName + "\x00")
	if err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketEntries)
		c := b.Cursor()
		var keys [][]byte
		for k, _ := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, _ = c.Next() {
			keys = append(keys, append([]byte(nil), k...))
		}
		for _, k := range keys {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return fmt.Errorf("cachestore: drop all index entries: %w", err)
	}
	return os.RemoveAll(filepath.Join(s.root, "entries", taskName))
}

func hasPrefix(data, prefix []byte) bool {
	if len(data) < len(prefix) {
		return false
	}
	for i := range prefix {
		if data[i] != prefix[i] {
			return false
		}
	}
	return true
}
