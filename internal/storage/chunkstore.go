package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// DateLayout is the ISO 8601 calendar date used as the recording key.
	DateLayout = "2006-01-02"
	// Extension is appended to the date key to form the file name.
	Extension = ".wav"
)

// ErrEmptyChunk is returned when a chunk has no bytes to persist.
var ErrEmptyChunk = errors.New("audio chunk is empty")

// StorageError wraps a filesystem failure for a recording path.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Recording describes one daily recording on disk.
type Recording struct {
	Date string `json:"date"`
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// ChunkStore appends raw audio chunks to one file per UTC calendar day.
//
// Files are never truncated, rotated or compacted; a busy day grows a single
// file without bound.
type ChunkStore struct {
	baseDir string
	logger  logrus.FieldLogger

	mu    sync.Mutex
	locks map[string]*sync.RWMutex
}

// NewChunkStore creates a store rooted at baseDir. The directory is created
// lazily on the first Persist.
func NewChunkStore(baseDir string, logger logrus.FieldLogger) *ChunkStore {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ChunkStore{
		baseDir: baseDir,
		logger:  logger,
		locks:   make(map[string]*sync.RWMutex),
	}
}

// BaseDir returns the directory holding the recordings.
func (s *ChunkStore) BaseDir() string {
	return s.baseDir
}

// PathFor resolves the recording path for the UTC date of at.
func (s *ChunkStore) PathFor(at time.Time) string {
	return filepath.Join(s.baseDir, at.UTC().Format(DateLayout)+Extension)
}

// Persist appends chunk to the recording for the UTC date of at, creating the
// file (and the base directory) when needed, and returns the recording path.
func (s *ChunkStore) Persist(chunk []byte, at time.Time) (string, error) {
	if len(chunk) == 0 {
		return "", ErrEmptyChunk
	}

	path := s.PathFor(at)

	if err := os.MkdirAll(s.baseDir, 0o755); err != nil {
		return "", &StorageError{Op: "mkdir", Path: s.baseDir, Err: err}
	}

	lock := s.lockFor(path)
	lock.Lock()
	defer lock.Unlock()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", &StorageError{Op: "open", Path: path, Err: err}
	}

	if _, err := f.Write(chunk); err != nil {
		f.Close()
		return "", &StorageError{Op: "write", Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return "", &StorageError{Op: "close", Path: path, Err: err}
	}

	s.logger.WithFields(logrus.Fields{
		"path":  path,
		"bytes": len(chunk),
	}).Debug("Appended audio chunk")

	return path, nil
}

// ReadRecording returns the current contents of a recording. It excludes
// concurrent appends to the same path, so the result always ends on a chunk
// boundary.
func (s *ChunkStore) ReadRecording(path string) ([]byte, error) {
	lock := s.lockFor(path)
	lock.RLock()
	defer lock.RUnlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &StorageError{Op: "read", Path: path, Err: err}
	}
	return data, nil
}

// List returns the daily recordings in the base directory ordered by date.
// A missing base directory yields an empty list.
func (s *ChunkStore) List() ([]Recording, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []Recording{}, nil
		}
		return nil, &StorageError{Op: "list", Path: s.baseDir, Err: err}
	}

	recordings := make([]Recording, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, Extension) {
			continue
		}
		date := strings.TrimSuffix(name, Extension)
		if _, err := time.Parse(DateLayout, date); err != nil {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, &StorageError{Op: "stat", Path: name, Err: err}
		}
		recordings = append(recordings, Recording{
			Date: date,
			Path: filepath.Join(s.baseDir, name),
			Size: info.Size(),
		})
	}

	sort.Slice(recordings, func(i, j int) bool {
		return recordings[i].Date < recordings[j].Date
	})
	return recordings, nil
}

// lockFor returns the lock guarding path. One lock exists per date key for
// the lifetime of the store.
func (s *ChunkStore) lockFor(path string) *sync.RWMutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[path]
	if !ok {
		lock = &sync.RWMutex{}
		s.locks[path] = lock
	}
	return lock
}
