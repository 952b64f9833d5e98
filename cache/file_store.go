package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// FileStore keeps the persistent tier in a single JSON document on disk.
// Writes are batched by a background writer and land atomically via a temp
// file rename. Close flushes pending writes.
type FileStore struct {
	mutex    sync.RWMutex
	data     map[string]json.RawMessage
	filePath string
	// version counts changes; saved is the version last written to disk.
	version uint64
	saved   uint64
	logger  logrus.FieldLogger

	writeBuffer chan struct{}
	done        chan struct{}
	wg          sync.WaitGroup
	closeOnce   sync.Once
}

// FileStoreOption customises a FileStore.
type FileStoreOption func(*FileStore)

// WithFileLogger sets where failed background flushes are reported.
func WithFileLogger(logger logrus.FieldLogger) FileStoreOption {
	return func(s *FileStore) { s.logger = logger }
}

// NewFileStore opens (or creates) dataDir/cache.json.
func NewFileStore(dataDir string, flushInterval time.Duration, opts ...FileStoreOption) (*FileStore, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	if flushInterval <= 0 {
		flushInterval = time.Minute
	}

	s := &FileStore{
		data:        make(map[string]json.RawMessage),
		filePath:    filepath.Join(dataDir, "cache.json"),
		writeBuffer: make(chan struct{}, 1),
		done:        make(chan struct{}),
		logger:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load cache file: %w", err)
	}

	s.wg.Add(1)
	go s.backgroundWriter(flushInterval)
	return s, nil
}

func (s *FileStore) load() error {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return json.Unmarshal(data, &s.data)
}

func (s *FileStore) save() error {
	s.mutex.RLock()
	if s.version == s.saved {
		s.mutex.RUnlock()
		return nil
	}
	version := s.version
	data, err := json.Marshal(s.data)
	s.mutex.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal cache: %w", err)
	}

	tempFile := s.filePath + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := os.Rename(tempFile, s.filePath); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}

	s.mutex.Lock()
	if version > s.saved {
		s.saved = version
	}
	s.mutex.Unlock()
	return nil
}

func (s *FileStore) saveLogged() {
	if err := s.save(); err != nil {
		s.logger.WithError(err).WithField("path", s.filePath).Error("failed to flush cache file")
	}
}

func (s *FileStore) backgroundWriter(interval time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-s.writeBuffer:
			s.saveLogged()
		case <-ticker.C:
			s.saveLogged()
		}
	}
}

func (s *FileStore) requestWrite() {
	select {
	case s.writeBuffer <- struct{}{}:
	default:
	}
}

func (s *FileStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (s *FileStore) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !json.Valid(value) {
		return fmt.Errorf("value for %q is not valid JSON", key)
	}
	s.mutex.Lock()
	s.data[key] = append(json.RawMessage(nil), value...)
	s.version++
	s.mutex.Unlock()
	s.requestWrite()
	return nil
}

func (s *FileStore) DeletePrefix(ctx context.Context, prefix string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mutex.Lock()
	for key := range s.data {
		if strings.HasPrefix(key, prefix) {
			delete(s.data, key)
			s.version++
		}
	}
	s.mutex.Unlock()
	s.requestWrite()
	return nil
}

// Close stops the background writer and writes any pending changes.
func (s *FileStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
		err = s.save()
	})
	return err
}
