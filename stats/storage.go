// Package stats keeps month-bucketed usage counters for the analysis
// pipeline and persists them to a small JSON file.
package stats

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const monthLayout = "2006-01"

// MonthlyStats holds the counters for one calendar month.
type MonthlyStats struct {
	ResultCacheHits    int       `json:"result_hits"`
	ResultCacheMisses  int       `json:"result_misses"`
	PayloadCacheHits   int       `json:"payload_hits"`
	PayloadCacheMisses int       `json:"payload_misses"`
	UpstreamCalls      int       `json:"upstream_calls"`
	Fallbacks          int       `json:"fallbacks"`
	BulkSucceeded      int       `json:"bulk_succeeded"`
	BulkFailed         int       `json:"bulk_failed"`
	LastUpdated        time.Time `json:"last_updated"`
}

// Delta is a set of increments applied in one call.
type Delta struct {
	ResultCacheHits    int
	ResultCacheMisses  int
	PayloadCacheHits   int
	PayloadCacheMisses int
	UpstreamCalls      int
	Fallbacks          int
	BulkSucceeded      int
	BulkFailed         int
}

func (m *MonthlyStats) add(d Delta) {
	m.ResultCacheHits += d.ResultCacheHits
	m.ResultCacheMisses += d.ResultCacheMisses
	m.PayloadCacheHits += d.PayloadCacheHits
	m.PayloadCacheMisses += d.PayloadCacheMisses
	m.UpstreamCalls += d.UpstreamCalls
	m.Fallbacks += d.Fallbacks
	m.BulkSucceeded += d.BulkSucceeded
	m.BulkFailed += d.BulkFailed
}

// Recorder is the write side used by the pipeline.
type Recorder interface {
	Record(d Delta)
}

// Discard ignores every delta.
type Discard struct{}

func (Discard) Record(Delta) {}

// Storage handles persistent storage of statistics.
type Storage struct {
	mutex       sync.RWMutex
	stats       map[string]*MonthlyStats // key: "YYYY-MM"
	filePath    string
	lastWrite   time.Time
	writeBuffer chan struct{}
	done        chan struct{}
	stopped     chan struct{}
	closeOnce   sync.Once
	now         func() time.Time
	logger      logrus.FieldLogger
}

// Option customises a Storage.
type Option func(*Storage)

// WithClock replaces time.Now, mainly for month-boundary tests.
func WithClock(now func() time.Time) Option {
	return func(s *Storage) { s.now = now }
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *Storage) { s.logger = logger }
}

// NewStorage creates a storage rooted at dataDir and starts its writer.
func NewStorage(dataDir string, opts ...Option) (*Storage, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	s := &Storage{
		stats:       make(map[string]*MonthlyStats),
		filePath:    filepath.Join(dataDir, "stats.json"),
		writeBuffer: make(chan struct{}, 1),
		done:        make(chan struct{}),
		stopped:     make(chan struct{}),
		now:         time.Now,
		logger:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load stats: %w", err)
	}

	go s.backgroundWriter()

	return s, nil
}

func (s *Storage) load() error {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	return json.Unmarshal(data, &s.stats)
}

func (s *Storage) save() error {
	s.mutex.RLock()
	data, err := json.Marshal(s.stats)
	s.mutex.RUnlock()

	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}

	tempFile := s.filePath + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write temporary file: %w", err)
	}

	if err := os.Rename(tempFile, s.filePath); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}

	return nil
}

func (s *Storage) saveLogged() {
	if err := s.save(); err != nil {
		s.logger.WithError(err).Warn("stats: persist failed")
	}
}

// backgroundWriter handles periodic and requested writes to disk.
func (s *Storage) backgroundWriter() {
	defer close(s.stopped)
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.writeBuffer:
			s.saveLogged()
		case <-ticker.C:
			s.saveLogged()
		case <-s.done:
			s.saveLogged()
			return
		}
	}
}

func (s *Storage) currentMonth() string {
	return s.now().Format(monthLayout)
}

func (s *Storage) requestWrite() {
	select {
	case s.writeBuffer <- struct{}{}:
	default:
		// write already pending
	}
}

// Record adds d to the current month's counters.
func (s *Storage) Record(d Delta) {
	now := s.now()
	month := now.Format(monthLayout)

	s.mutex.Lock()
	defer s.mutex.Unlock()

	stats, exists := s.stats[month]
	if !exists {
		stats = &MonthlyStats{}
		s.stats[month] = stats
	}
	stats.add(d)
	stats.LastUpdated = now

	if now.Sub(s.lastWrite) > time.Minute {
		s.requestWrite()
		s.lastWrite = now
	}
}

// GetCurrentStats returns statistics for the current month.
func (s *Storage) GetCurrentStats() MonthlyStats {
	month := s.currentMonth()

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if stats, exists := s.stats[month]; exists {
		return *stats
	}
	return MonthlyStats{}
}

// Cleanup removes statistics older than retainMonths, counting the current
// month as the first. Values below 1 keep only the current month.
func (s *Storage) Cleanup(retainMonths int) {
	if retainMonths < 1 {
		retainMonths = 1
	}
	now := s.now()
	// Step back from the 1st so the 31st never skips a short month.
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	keep := make(map[string]bool, retainMonths)
	for i := 0; i < retainMonths; i++ {
		keep[first.AddDate(0, -i, 0).Format(monthLayout)] = true
	}

	s.mutex.Lock()
	removed := 0
	for key := range s.stats {
		if !keep[key] {
			delete(s.stats, key)
			removed++
		}
	}
	s.mutex.Unlock()

	s.requestWrite()
	s.logger.WithFields(logrus.Fields{"retained_months": retainMonths, "removed": removed}).Debug("stats cleanup")
}

// GetMonthlyStats returns statistics for a specific "YYYY-MM" month.
func (s *Storage) GetMonthlyStats(yearMonth string) (MonthlyStats, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if stats, exists := s.stats[yearMonth]; exists {
		return *stats, true
	}
	return MonthlyStats{}, false
}

// GetAllMonths returns all months with statistics, newest first.
func (s *Storage) GetAllMonths() []string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	months := make([]string, 0, len(s.stats))
	for month := range s.stats {
		months = append(months, month)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(months)))
	return months
}

// Shutdown stops the writer after a final save. It is safe to call twice.
func (s *Storage) Shutdown() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	<-s.stopped
}
