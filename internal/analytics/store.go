package analytics

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrNotFound = errors.New("analytics record not found")

// Record holds the metrics collected for one session.
type Record struct {
	SessionID      string        `json:"session_id"`
	ProcessingTime time.Duration `json:"-"`
	ProcessingMS   int64         `json:"processing_ms"`
	DetectionCount int           `json:"detection_count"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

type Summary struct {
	Entries          int     `json:"entries"`
	TotalDetections  int     `json:"total_detections"`
	AvgProcessingMS  float64 `json:"avg_processing_ms"`
	MaxProcessingMS  int64   `json:"max_processing_ms"`
	RetentionSeconds float64 `json:"retention_seconds"`
	MaxEntries       int     `json:"max_entries"`
}

// Store is the process-wide session id -> Record map shared by all requests.
type Store struct {
	mu          sync.RWMutex
	records     map[string]*Record
	retention   time.Duration
	maxEntries  int
	onEvict     func(Record)
	subscribers map[int]chan Record
	nextSubID   int
	now         func() time.Time
}

func NewStore(retention time.Duration, maxEntries int) *Store {
	if retention <= 0 {
		retention = time.Hour
	}
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	return &Store{
		records:     make(map[string]*Record),
		retention:   retention,
		maxEntries:  maxEntries,
		subscribers: make(map[int]chan Record),
		now:         time.Now,
	}
}

func (s *Store) SetEvictHook(hook func(Record)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEvict = hook
}

func (s *Store) RecordProcessingTime(sessionID string, d time.Duration) {
	s.update(sessionID, func(r *Record) {
		r.ProcessingTime = d
		r.ProcessingMS = d.Milliseconds()
	})
}

func (s *Store) RecordDetection(sessionID string, count int) {
	s.update(sessionID, func(r *Record) {
		r.DetectionCount = count
	})
}

func (s *Store) update(sessionID string, apply func(*Record)) {
	if sessionID == "" {
		return
	}
	var evicted []Record

	s.mu.Lock()
	r, ok := s.records[sessionID]
	if !ok {
		if len(s.records) >= s.maxEntries {
			if old, found := s.oldestLocked(); found {
				delete(s.records, old.SessionID)
				evicted = append(evicted, old)
			}
		}
		r = &Record{SessionID: sessionID}
		s.records[sessionID] = r
	}
	apply(r)
	r.UpdatedAt = s.now().UTC()
	snapshot := *r
	for _, ch := range s.subscribers {
		select {
		case ch <- snapshot:
		default:
			// Slow subscriber; drop rather than block the writer.
		}
	}
	hook := s.onEvict
	s.mu.Unlock()

	if hook != nil {
		for _, r := range evicted {
			hook(r)
		}
	}
}

func (s *Store) Get(sessionID string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[sessionID]
	if !ok {
		return Record{}, ErrNotFound
	}
	return *r, nil
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *Store) Summary() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sum := Summary{
		Entries:          len(s.records),
		RetentionSeconds: s.retention.Seconds(),
		MaxEntries:       s.maxEntries,
	}
	var totalMS int64
	for _, r := range s.records {
		sum.TotalDetections += r.DetectionCount
		totalMS += r.ProcessingMS
		if r.ProcessingMS > sum.MaxProcessingMS {
			sum.MaxProcessingMS = r.ProcessingMS
		}
	}
	if len(s.records) > 0 {
		sum.AvgProcessingMS = float64(totalMS) / float64(len(s.records))
	}
	return sum
}

// Subscribe returns a channel receiving every record as it is written.
// Events are dropped when the buffer is full. cancel closes the channel.
func (s *Store) Subscribe(buffer int) (<-chan Record, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Record, buffer)

	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, id)
			s.mu.Unlock()
			close(ch)
		})
	}
}

func (s *Store) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.evictExpired()
			}
		}
	}()
}

func (s *Store) evictExpired() {
	cutoff := s.now().UTC().Add(-s.retention)
	var expired []Record

	s.mu.Lock()
	for id, r := range s.records {
		if r.UpdatedAt.After(cutoff) {
			continue
		}
		expired = append(expired, *r)
		delete(s.records, id)
	}
	hook := s.onEvict
	s.mu.Unlock()

	if hook != nil {
		for _, r := range expired {
			hook(r)
		}
	}
}

func (s *Store) oldestLocked() (Record, bool) {
	var oldest *Record
	for _, r := range s.records {
		if oldest == nil || r.UpdatedAt.Before(oldest.UpdatedAt) {
			oldest = r
		}
	}
	if oldest == nil {
		return Record{}, false
	}
	return *oldest, true
}
