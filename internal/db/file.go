package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/eventdesk/booking-bot/internal/logging"
	"github.com/eventdesk/booking-bot/internal/models"
)

// FileStore keeps the whole snapshot in memory and rewrites one JSON file on every mutation
type FileStore struct {
	path   string
	logger *logging.Logger

	mu       sync.Mutex
	requests map[string]*models.Request
	// broken holds records that could not be decoded; they are written back
	// unchanged until replaced.
	broken  map[string]json.RawMessage
	counter int64
}

type snapshot struct {
	Requests map[string]any `json:"requests"`
	Counter  int64          `json:"counter"`
}

type rawSnapshot struct {
	Requests json.RawMessage `json:"requests"`
	Counter  json.RawMessage `json:"counter"`
}

// OpenFile loads the snapshot at path. A missing or unparseable file
// starts an empty store which is written out immediately.
func OpenFile(path string, logger *logging.Logger) (*FileStore, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	s := &FileStore{
		path:     path,
		logger:   logger.With("store", DriverFile, "path", path),
		requests: make(map[string]*models.Request),
		broken:   make(map[string]json.RawMessage),
	}

	dir := filepath.Dir(path)
	if dir != "." && dir != "/" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		s.logger.Warn("data file not found, initializing empty store")
		return s, s.save()
	case err != nil:
		return nil, fmt.Errorf("failed to read data file: %w", err)
	}

	if err := s.decode(data); err != nil {
		s.logger.LogError("data file is unparseable, initializing empty store", err, "counter", s.counter)
		aside := fmt.Sprintf("%s.corrupt-%d", path, time.Now().Unix())
		if err := os.Rename(path, aside); err != nil {
			s.logger.LogError("failed to move corrupt data file aside", err)
		} else {
			s.logger.Warn("corrupt data file preserved", "backup", aside)
		}
		// A counter that could still be read is kept so ids are not reissued.
		s.requests = make(map[string]*models.Request)
		s.broken = make(map[string]json.RawMessage)
		return s, s.save()
	}

	s.logger.Info("data loaded", "requests", len(s.requests), "unreadable", len(s.broken), "counter", s.counter)
	return s, nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

// decode fills the store from data. The counter is set before the records
// are read, so it survives a malformed requests section.
func (s *FileStore) decode(data []byte) error {
	var raw rawSnapshot
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	s.counter = 0
	if !isNull(raw.Counter) {
		var n int64
		if err := json.Unmarshal(raw.Counter, &n); err != nil || n < 0 {
			s.logger.Warn("counter is not a non-negative integer, resetting to 0", "counter", string(raw.Counter))
		} else {
			s.counter = n
		}
	}

	if isNull(raw.Requests) {
		return nil
	}
	var records map[string]json.RawMessage
	if err := json.Unmarshal(raw.Requests, &records); err != nil {
		return fmt.Errorf("failed to decode requests: %w", err)
	}

	for key, rec := range records {
		if id, err := strconv.ParseInt(key, 10, 64); err == nil && id > s.counter {
			s.logger.Warn("counter is behind stored requests, advancing", "counter", s.counter, "request_id", id)
			s.counter = id
		}
		if isNull(rec) {
			continue
		}

		var req models.Request
		if err := json.Unmarshal(rec, &req); err != nil {
			s.logger.LogError("request is unreadable, keeping it as is", err, "request_id", key)
			s.broken[key] = rec
			continue
		}
		s.requests[key] = &req
	}
	return nil
}

// save writes the snapshot through a temp file and rename. Caller holds mu
// or has exclusive access.
func (s *FileStore) save() error {
	records := make(map[string]any, len(s.requests)+len(s.broken))
	for key, rec := range s.broken {
		records[key] = rec
	}
	for key, req := range s.requests {
		records[key] = req
	}

	data, err := json.MarshalIndent(snapshot{Requests: records, Counter: s.counter}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace data file: %w", err)
	}
	return nil
}

func (s *FileStore) Get(_ context.Context, id int64) (*models.Request, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[strconv.FormatInt(id, 10)]
	if !ok || req == nil {
		return nil, false, nil
	}
	return req.Clone(), true, nil
}

func (s *FileStore) Put(_ context.Context, id int64, req *models.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strconv.FormatInt(id, 10)
	prev, hadPrev := s.requests[key]
	prevRaw, hadRaw := s.broken[key]

	s.requests[key] = req.Clone()
	delete(s.broken, key)
	if err := s.save(); err != nil {
		// Memory must keep matching the file on disk.
		if hadPrev {
			s.requests[key] = prev
		} else {
			delete(s.requests, key)
		}
		if hadRaw {
			s.broken[key] = prevRaw
		}
		return err
	}
	return nil
}

func (s *FileStore) NextID(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counter++
	if err := s.save(); err != nil {
		s.counter--
		return 0, err
	}
	return s.counter, nil
}

// Close flushes the snapshot one last time
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save()
}

func (s *FileStore) CountByStatus(_ context.Context) (map[models.Status]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[models.Status]int)
	for _, req := range s.requests {
		if req != nil {
			counts[req.Status]++
		}
	}
	return counts, nil
}
