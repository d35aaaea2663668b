// Package datastore keeps a keyed set of records in memory and mirrors every
// change to a single JSON file. Writes are serialized and persisted before
// Update returns; reads work on an immutable snapshot and never block on a
// writer.
//
// Several processes may share one file. Update holds an advisory lock on
// "<file>.lock" and re-reads the file before applying a change, so a write
// from another process is merged rather than overwritten. Reads pick up such
// writes once the file's size or modification time changes.
package datastore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"maps"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
)

// ErrPersist marks errors returned when the in-memory change succeeded but
// the file could not be written.
var ErrPersist = errors.New("datastore: persist failed")

// Config holds configuration options for the DataStore
type Config struct {
	FilePath    string
	BackupCount int // Number of backup files to keep
	Logger      *log.Logger
}

// DefaultConfig returns a default configuration
func DefaultConfig(filePath string) *Config {
	return &Config{
		FilePath:    filePath,
		BackupCount: 3,
		Logger:      log.New(os.Stderr, "[datastore] ", log.LstdFlags),
	}
}

// DataStore is a write-through JSON file store of T values keyed by string.
type DataStore[T any] struct {
	file         string
	config       *Config
	mu           sync.Mutex // serializes Update and Save
	lock         *flock.Flock
	snapshot     atomic.Pointer[map[string]T]
	stamp        atomic.Pointer[fileStamp]
	lastChecksum string
	dirty        bool // memory holds a change the last write failed to persist
}

// fileStamp identifies the file version the snapshot was read from or
// written as.
type fileStamp struct {
	size    int64
	modTime time.Time
}

func statFile(path string) *fileStamp {
	fi, err := os.Stat(path)
	if err != nil {
		return nil
	}
	return &fileStamp{size: fi.Size(), modTime: fi.ModTime()}
}

func (a *fileStamp) same(b *fileStamp) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.size == b.size && a.modTime.Equal(b.modTime)
}

// New creates a new DataStore with default configuration
func New[T any](filePath string) (*DataStore[T], error) {
	return NewWithConfig[T](DefaultConfig(filePath))
}

// NewWithConfig creates a DataStore and loads the file if present. A missing
// file yields an empty store; a file that does not decode is backed up,
// logged and replaced by an empty store on the next write.
func NewWithConfig[T any](config *Config) (*DataStore[T], error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if config.FilePath == "" {
		return nil, fmt.Errorf("file path cannot be empty")
	}
	if config.Logger == nil {
		config.Logger = log.New(io.Discard, "", 0)
	}

	dir := filepath.Dir(config.FilePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	ds := &DataStore[T]{
		file:   config.FilePath,
		config: config,
		lock:   flock.New(config.FilePath + ".lock"),
	}
	empty := map[string]T{}
	ds.snapshot.Store(&empty)

	if err := ds.loadFromFile(); err != nil {
		return nil, err
	}
	return ds, nil
}

// Get returns the record stored under key. The value shares reference-typed
// fields with the snapshot and must be treated as read-only.
func (ds *DataStore[T]) Get(key string) (T, bool) {
	ds.refresh()
	data := *ds.snapshot.Load()
	v, ok := data[key]
	return v, ok
}

// Keys returns all keys in sorted order.
func (ds *DataStore[T]) Keys() []string {
	ds.refresh()
	data := *ds.snapshot.Load()
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Update applies fn to a shallow copy of the data under the write lock. If fn
// returns an error nothing is published or written. Otherwise the copy becomes
// the live snapshot and the whole store is written to disk; a write failure is
// returned wrapped in ErrPersist while the new snapshot stays live.
//
// fn must not modify reference-typed fields of existing values in place;
// replace the value under its key instead.
func (ds *DataStore[T]) Update(fn func(data map[string]T) error) error {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	defer ds.lockFile()()

	// an unpersisted local change is newer than the file
	if !ds.dirty {
		ds.reloadLocked()
	}

	next := maps.Clone(*ds.snapshot.Load())
	if next == nil {
		next = map[string]T{}
	}
	if err := fn(next); err != nil {
		return err
	}
	ds.snapshot.Store(&next)

	if err := ds.saveLocked(next); err != nil {
		ds.dirty = true
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	ds.dirty = false
	return nil
}

// SaveToFile retries a write that failed during Update. With nothing pending
// it does not touch the file.
func (ds *DataStore[T]) SaveToFile() error {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if !ds.dirty {
		return nil
	}
	defer ds.lockFile()()

	if err := ds.saveLocked(*ds.snapshot.Load()); err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	ds.dirty = false
	return nil
}

// Close flushes a pending change, if any.
func (ds *DataStore[T]) Close() error {
	return ds.SaveToFile()
}

// lockFile takes the cross-process lock and returns its release. If the lock
// cannot be taken the write goes ahead unguarded.
func (ds *DataStore[T]) lockFile() func() {
	if err := ds.lock.Lock(); err != nil {
		ds.config.Logger.Printf("[WARN] Failed to lock %s: %v", ds.lock.Path(), err)
		return func() {}
	}
	return func() { _ = ds.lock.Unlock() }
}

// refresh reloads the snapshot when another process has rewritten the file.
func (ds *DataStore[T]) refresh() {
	if statFile(ds.file).same(ds.stamp.Load()) {
		return
	}
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if !ds.dirty {
		ds.reloadLocked()
	}
}

// reloadLocked replaces the snapshot with the file's contents when they
// differ from what this store last read or wrote. A missing or undecodable
// file keeps the current snapshot.
func (ds *DataStore[T]) reloadLocked() {
	ds.stamp.Store(statFile(ds.file))
	raw, err := os.ReadFile(ds.file)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			ds.config.Logger.Printf("[WARN] Failed to re-read %s: %v", ds.file, err)
		}
		return
	}

	checksum := calculateChecksum(raw)
	if checksum == ds.lastChecksum {
		return
	}
	var temp map[string]T
	if err := json.Unmarshal(raw, &temp); err != nil || temp == nil {
		ds.config.Logger.Printf("[WARN] %s changed on disk but does not decode, keeping memory: %v", ds.file, err)
		return
	}
	ds.snapshot.Store(&temp)
	ds.lastChecksum = checksum
}

// saveLocked saves data to disk with atomic write and integrity checking
func (ds *DataStore[T]) saveLocked(data map[string]T) error {
	raw, err := json.MarshalIndent(data, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	checksum := calculateChecksum(raw)
	if checksum == ds.lastChecksum {
		return nil
	}

	if ds.config.BackupCount > 0 {
		if err := ds.createBackup(); err != nil {
			ds.config.Logger.Printf("[WARN] Failed to create backup: %v", err)
		}
	}

	if err := ds.writeFileAtomic(raw); err != nil {
		return err
	}
	if err := ds.verifyFile(raw); err != nil {
		return fmt.Errorf("file verification failed: %w", err)
	}

	ds.lastChecksum = checksum
	ds.stamp.Store(statFile(ds.file))
	return nil
}

// loadFromFile loads data from disk. Only unreadable files are fatal.
func (ds *DataStore[T]) loadFromFile() error {
	raw, err := os.ReadFile(ds.file)
	if errors.Is(err, os.ErrNotExist) {
		ds.config.Logger.Printf("[INFO] %s not found, it will be created on first write", ds.file)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	var temp map[string]T
	if err := json.Unmarshal(raw, &temp); err != nil || temp == nil {
		ds.config.Logger.Printf("[WARN] %s is corrupted or empty, starting with an empty store: %v", ds.file, err)
		if ds.config.BackupCount > 0 {
			if err := ds.createBackup(); err != nil {
				ds.config.Logger.Printf("[WARN] Failed to back up corrupted file: %v", err)
			}
		}
		// remembered so the unreadable content is not re-read on every access
		ds.lastChecksum = calculateChecksum(raw)
		ds.stamp.Store(statFile(ds.file))
		return nil
	}

	ds.snapshot.Store(&temp)
	ds.lastChecksum = calculateChecksum(raw)
	ds.stamp.Store(statFile(ds.file))
	return nil
}

// writeFileAtomic performs atomic file write using temporary file and rename
func (ds *DataStore[T]) writeFileAtomic(data []byte) error {
	tmpFile := ds.file + ".tmp"

	file, err := os.OpenFile(tmpFile, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to open temp file: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(tmpFile)
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tmpFile)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpFile, ds.file); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// verifyFile verifies that the written file matches expected data
func (ds *DataStore[T]) verifyFile(expected []byte) error {
	actual, err := os.ReadFile(ds.file)
	if err != nil {
		return fmt.Errorf("failed to read file for verification: %w", err)
	}
	if calculateChecksum(actual) != calculateChecksum(expected) {
		return fmt.Errorf("file checksum mismatch")
	}
	return nil
}

// createBackup copies the current file to a timestamped sibling
func (ds *DataStore[T]) createBackup() error {
	src, err := os.Open(ds.file)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer src.Close()

	backupFile := fmt.Sprintf("%s.backup.%s", ds.file, time.Now().Format("20060102_150405.000000000"))
	dst, err := os.OpenFile(backupFile, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return err
	}

	ds.cleanupOldBackups()
	return nil
}

// cleanupOldBackups removes old backup files beyond the configured limit
func (ds *DataStore[T]) cleanupOldBackups() {
	matches, err := filepath.Glob(ds.file + ".backup.*")
	if err != nil || len(matches) <= ds.config.BackupCount {
		return
	}

	// timestamped names sort oldest first
	sort.Strings(matches)
	for _, path := range matches[:len(matches)-ds.config.BackupCount] {
		os.Remove(path)
	}
}

// calculateChecksum computes SHA-256 checksum of data
func calculateChecksum(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
