package scanjournal

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"
	"github.com/vadiminshakov/ipboard/internal/domain"
)

const (
	defaultJournalDir   = "./wal/scans"
	journalSegmentLimit = 1000
	journalMaxSegments  = 50
	eventKeyPrefix      = "scan_event_"
)

// WALStore is an append-only journal of scan events, streamed by the dashboard.
type WALStore struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

// NewWALStore opens the journal under dir.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = defaultJournalDir
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "scan_",
		SegmentThreshold: journalSegmentLimit,
		MaxSegments:      journalMaxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init scan journal WAL")
	}

	return &WALStore{wal: wal}, nil
}

// Append stores the event and returns its journal index, which is also written into event.Seq.
func (s *WALStore) Append(event domain.ScanEvent) (uint64, error) {
	if s == nil || s.wal == nil {
		return 0, errors.New("scan journal is not initialized")
	}
	if event.Address == "" {
		return 0, errors.New("scan event address is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	index := s.wal.CurrentIndex() + 1
	event.Seq = index

	payload, err := json.Marshal(event)
	if err != nil {
		return 0, errors.Wrap(err, "marshal scan event")
	}

	if err := s.wal.Write(index, eventKeyPrefix+event.Address, payload); err != nil {
		return 0, errors.Wrap(err, "write scan event")
	}

	return index, nil
}

// EventsAfter returns journal events with an index greater than index, oldest first.
func (s *WALStore) EventsAfter(index uint64) ([]domain.ScanEventRecord, error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("scan journal is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.wal.CurrentIndex() <= index {
		return nil, nil
	}

	var records []domain.ScanEventRecord
	for msg := range s.wal.Iterator() {
		if !strings.HasPrefix(msg.Key, eventKeyPrefix) {
			continue
		}
		var event domain.ScanEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			return nil, errors.Wrap(err, "decode scan event")
		}
		if event.Seq <= index {
			continue
		}
		records = append(records, domain.ScanEventRecord{Index: event.Seq, Event: event})
	}

	return records, nil
}

// CurrentIndex returns the latest journal index.
func (s *WALStore) CurrentIndex() uint64 {
	if s == nil || s.wal == nil {
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.wal.CurrentIndex()
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errors.New("scan journal is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}
