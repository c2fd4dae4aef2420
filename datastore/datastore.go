package datastore

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// ErrCorrupted marks a backing file that exists but does not hold a JSON object.
	// The store recovers from it by backing the file up and starting empty.
	ErrCorrupted = errors.New("datastore: corrupted file")

	// ErrUnavailable marks I/O failures on the backing file. It is not recoverable.
	ErrUnavailable = errors.New("datastore: storage unavailable")

	ErrClosed = errors.New("datastore: closed")
)

// Config holds configuration options for the DataStore
type Config struct {
	FilePath string
	Logger   zerolog.Logger
	Now      func() time.Time
}

// DefaultConfig returns a default configuration
func DefaultConfig(filePath string) *Config {
	return &Config{
		FilePath: filePath,
		Logger:   log.Logger.With().Str("component", "datastore").Logger(),
		Now:      time.Now,
	}
}

// DataStore is a flat JSON object kept in memory and written through to disk on
// every mutation.
type DataStore struct {
	data         map[string]any // in-memory data storage
	file         string         // file path for persistent storage
	mu           sync.RWMutex   // guards data
	ioMu         sync.Mutex     // serializes marshal+write so the newest state lands last
	config       *Config
	lastChecksum string
	lastSize     int64
	closed       bool
}

// New creates a new DataStore with default configuration
func New(filePath string) (*DataStore, error) {
	return NewWithConfig(DefaultConfig(filePath))
}

// NewWithConfig creates a new DataStore with custom configuration
func NewWithConfig(config *Config) (*DataStore, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if config.FilePath == "" {
		return nil, fmt.Errorf("file path cannot be empty")
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	dir := filepath.Dir(config.FilePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: failed to create directory: %v", ErrUnavailable, err)
	}

	store := &DataStore{
		data:   make(map[string]any),
		file:   config.FilePath,
		config: config,
	}

	if err := store.loadFromFile(); err != nil {
		return nil, err
	}
	return store, nil
}

// Get retrieves a value by key
func (ds *DataStore) Get(key string) (any, bool) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	value, exists := ds.data[key]
	return value, exists
}

// Put stores a key-value pair and persists the whole map before returning.
// On a failed write the in-memory value is kept and the error wraps ErrUnavailable.
func (ds *DataStore) Put(key string, value any) error {
	ds.mu.Lock()
	if ds.closed {
		ds.mu.Unlock()
		return ErrClosed
	}
	ds.data[key] = value
	ds.mu.Unlock()

	return ds.saveToFile()
}

// Delete removes a key-value pair and persists the change. Missing keys are a no-op.
func (ds *DataStore) Delete(key string) error {
	ds.mu.Lock()
	if ds.closed {
		ds.mu.Unlock()
		return ErrClosed
	}
	if _, exists := ds.data[key]; !exists {
		ds.mu.Unlock()
		return nil
	}
	delete(ds.data, key)
	ds.mu.Unlock()

	return ds.saveToFile()
}

// Keys returns all keys in sorted order.
func (ds *DataStore) Keys() []string {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	keys := make([]string, 0, len(ds.data))
	for k := range ds.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of stored keys.
func (ds *DataStore) Len() int {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	return len(ds.data)
}

// Path returns the backing file path.
func (ds *DataStore) Path() string {
	return ds.file
}

// Close flushes the map one last time and rejects further mutations.
func (ds *DataStore) Close() error {
	ds.mu.Lock()
	if ds.closed {
		ds.mu.Unlock()
		return nil
	}
	ds.closed = true
	ds.mu.Unlock()

	return ds.saveToFile()
}

// saveToFile saves data to disk with atomic write and integrity checking
func (ds *DataStore) saveToFile() error {
	ds.ioMu.Lock()
	defer ds.ioMu.Unlock()

	ds.mu.RLock()
	data, err := json.MarshalIndent(ds.data, "", "    ")
	ds.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal data: %v", err)
	}

	checksum := calculateChecksum(data)
	if checksum == ds.lastChecksum {
		return nil
	}

	if err := ds.writeFileAtomic(data); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := ds.verifyFile(data); err != nil {
		return fmt.Errorf("%w: file verification failed: %v", ErrUnavailable, err)
	}

	ds.lastChecksum = checksum
	ds.lastSize = int64(len(data))
	return nil
}

// loadFromFile loads data from disk. A missing file yields an empty map, an
// unreadable one fails with ErrUnavailable and an unparsable one is backed up and reset.
func (ds *DataStore) loadFromFile() error {
	raw, err := os.ReadFile(ds.file)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		ds.config.Logger.WithLevel(zerolog.FatalLevel).Err(err).Str("file", ds.file).Msg("Cannot read data file")
		return fmt.Errorf("%w: failed to read %s: %v", ErrUnavailable, ds.file, err)
	}

	temp, err := decodeObject(raw)
	if err != nil {
		return ds.recoverCorrupted(err)
	}

	ds.mu.Lock()
	ds.data = temp
	ds.mu.Unlock()
	ds.lastChecksum = calculateChecksum(raw)
	ds.lastSize = int64(len(raw))
	return nil
}

// recoverCorrupted copies the unparsable file aside and starts over with an empty map.
func (ds *DataStore) recoverCorrupted(cause error) error {
	backup := BackupName(ds.file, ds.config.Now())
	logger := ds.config.Logger

	if err := copyFile(ds.file, backup); err != nil {
		logger.Error().Err(err).Str("file", ds.file).Msg("Failed to create backup of corrupted data file")
	} else {
		logger.WithLevel(zerolog.FatalLevel).
			AnErr("cause", cause).
			Str("file", ds.file).
			Str("backup", backup).
			Msgf("%v: backup created at %s", ErrCorrupted, backup)
	}
	logger.Warn().Str("file", ds.file).Msg("Starting with a fresh data file to keep running")

	ds.mu.Lock()
	ds.data = make(map[string]any)
	ds.mu.Unlock()
	ds.lastChecksum = ""
	ds.lastSize = 0

	if err := ds.saveToFile(); err != nil {
		return err
	}
	return nil
}

// BackupName returns the path a corrupted file is copied to: <file>.corrupted_<unix>.bak
func BackupName(file string, at time.Time) string {
	return fmt.Sprintf("%s.corrupted_%d.bak", file, at.Unix())
}

// decodeObject accepts only a JSON object of string or number values. Numbers are
// kept as json.Number so integer epochs survive untouched.
func decodeObject(raw []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, fmt.Errorf("empty file")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var temp map[string]any
	if err := dec.Decode(&temp); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %v", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("invalid JSON format: trailing data")
	}
	if temp == nil {
		return nil, fmt.Errorf("invalid JSON format: top level is not an object")
	}
	for k, v := range temp {
		switch v.(type) {
		case string, json.Number:
		default:
			return nil, fmt.Errorf("invalid value for key %q: want a string or a number, got %T", k, v)
		}
	}
	return temp, nil
}

// writeFileAtomic performs atomic file write using temporary file and rename
func (ds *DataStore) writeFileAtomic(data []byte) error {
	tmpFile := ds.file + ".tmp"

	file, err := os.OpenFile(tmpFile, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to open temp file: %v", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(tmpFile)
		return fmt.Errorf("failed to write to temp file: %v", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tmpFile)
		return fmt.Errorf("failed to sync temp file: %v", err)
	}
	file.Close()

	if err := os.Rename(tmpFile, ds.file); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("failed to rename temp file: %v", err)
	}
	return nil
}

// verifyFile verifies that the written file matches expected data
func (ds *DataStore) verifyFile(expectedData []byte) error {
	actualData, err := os.ReadFile(ds.file)
	if err != nil {
		return fmt.Errorf("failed to read file for verification: %v", err)
	}
	if calculateChecksum(actualData) != calculateChecksum(expectedData) {
		return fmt.Errorf("file checksum mismatch")
	}
	return nil
}

func copyFile(srcPath, dstPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(dstPath)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

// calculateChecksum computes SHA-256 checksum of data
func calculateChecksum(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// Stats describes the store and its backing file.
type Stats struct {
	Keys     int
	FilePath string
	// Size is the length of the last file written or loaded; zero before the first save.
	Size     int64
	Checksum string
}

// Stats returns statistics about the DataStore
func (ds *DataStore) Stats() Stats {
	ds.ioMu.Lock()
	defer ds.ioMu.Unlock()
	ds.mu.RLock()
	defer ds.mu.RUnlock()

	return Stats{
		Keys:     len(ds.data),
		FilePath: ds.file,
		Size:     ds.lastSize,
		Checksum: ds.lastChecksum,
	}
}
