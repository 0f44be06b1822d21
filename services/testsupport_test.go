package services

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"github.com/Michael-ctrl-eng/teamplaymate-16-sub005/dto"
	"github.com/Michael-ctrl-eng/teamplaymate-16-sub005/model"
)

// fakeStore is an in-memory StateStore with a manually advanced clock, so
// tests can cross TTL boundaries without sleeping.
type fakeStore struct {
	mu   sync.Mutex
	now  time.Time
	data map[string]fakeEntry
}

type fakeEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		now:  time.Now(),
		data: make(map[string]fakeEntry),
	}
}

func (f *fakeStore) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// entry returns a live entry, reaping it when lapsed.
func (f *fakeStore) entry(key string) (fakeEntry, bool) {
	e, ok := f.data[key]
	if !ok {
		return fakeEntry{}, false
	}
	if !e.expiresAt.IsZero() && !e.expiresAt.After(f.now) {
		delete(f.data, key)
		return fakeEntry{}, false
	}
	return e, true
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entry(key)
	if !ok {
		return "", nil
	}
	return e.value, nil
}

func (f *fakeStore) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	var data []byte
	switch v := value.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		var err error
		data, err = sonic.Marshal(value)
		if err != nil {
			return err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	e := fakeEntry{value: string(data)}
	if expiration > 0 {
		e.expiresAt = f.now.Add(expiration)
	}
	f.data[key] = e
	return nil
}

func (f *fakeStore) Incr(_ context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var count int64
	if e, ok := f.entry(key); ok {
		n, err := strconv.ParseInt(e.value, 10, 64)
		if err != nil {
			return 0, err
		}
		count = n
	}
	count++

	e := f.data[key]
	e.value = strconv.FormatInt(count, 10)
	f.data[key] = e
	return count, nil
}

func (f *fakeStore) Expire(_ context.Context, key string, expiration time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	e, ok := f.entry(key)
	if !ok {
		return nil
	}
	e.expiresAt = f.now.Add(expiration)
	f.data[key] = e
	return nil
}

func (f *fakeStore) TTL(_ context.Context, key string) (time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	e, ok := f.entry(key)
	if !ok {
		// go-redis sentinel for a missing key.
		return time.Duration(-2), nil
	}
	if e.expiresAt.IsZero() {
		// go-redis sentinel for a key without expiry.
		return time.Duration(-1), nil
	}
	return e.expiresAt.Sub(f.now), nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, key := range keys {
		delete(f.data, key)
	}
	return nil
}

func (f *fakeStore) Keys(_ context.Context, pattern string) ([]string, error) {
	prefix := strings.TrimSuffix(pattern, "*")

	f.mu.Lock()
	defer f.mu.Unlock()

	var out []string
	for key := range f.data {
		if _, ok := f.entry(key); !ok {
			continue
		}
		if strings.HasPrefix(key, prefix) {
			out = append(out, key)
		}
	}
	return out, nil
}

func (f *fakeStore) Exists(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.entry(key)
	return ok, nil
}

// dropExpiry clears the TTL on a key, simulating a failed Expire call that
// left an immortal entry behind.
func (f *fakeStore) dropExpiry(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.data[key]; ok {
		e.expiresAt = time.Time{}
		f.data[key] = e
	}
}

var errStoreDown = errors.New("store unavailable")

// downStore fails every operation, for fail-open tests.
type downStore struct{}

func (downStore) Get(context.Context, string) (string, error) { return "", errStoreDown }
func (downStore) Set(context.Context, string, interface{}, time.Duration) error {
	return errStoreDown
}
func (downStore) Incr(context.Context, string) (int64, error) { return 0, errStoreDown }
func (downStore) Expire(context.Context, string, time.Duration) error {
	return errStoreDown
}
func (downStore) TTL(context.Context, string) (time.Duration, error) {
	return 0, errStoreDown
}
func (downStore) Del(context.Context, ...string) error { return errStoreDown }
func (downStore) Keys(context.Context, string) ([]string, error) {
	return nil, errStoreDown
}
func (downStore) Exists(context.Context, string) (bool, error) { return false, errStoreDown }

// slowStore hangs on every operation until the context is done, simulating
// a stalled shared store rather than an erroring one.
type slowStore struct {
	delay time.Duration
}

func (s slowStore) stall(ctx context.Context) error {
	timer := time.NewTimer(s.delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s slowStore) Get(ctx context.Context, _ string) (string, error) {
	return "", s.stall(ctx)
}

func (s slowStore) Set(ctx context.Context, _ string, _ interface{}, _ time.Duration) error {
	return s.stall(ctx)
}

func (s slowStore) Incr(ctx context.Context, _ string) (int64, error) {
	return 0, s.stall(ctx)
}

func (s slowStore) Expire(ctx context.Context, _ string, _ time.Duration) error {
	return s.stall(ctx)
}

func (s slowStore) TTL(ctx context.Context, _ string) (time.Duration, error) {
	return 0, s.stall(ctx)
}

func (s slowStore) Del(ctx context.Context, _ ...string) error {
	return s.stall(ctx)
}

func (s slowStore) Keys(ctx context.Context, _ string) ([]string, error) {
	return nil, s.stall(ctx)
}

func (s slowStore) Exists(ctx context.Context, _ string) (bool, error) {
	return false, s.stall(ctx)
}

// memoryEvents records appended events for assertions.
type memoryEvents struct {
	mu     sync.Mutex
	events []dto.SecurityEvent
}

func (m *memoryEvents) Append(event dto.SecurityEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
}

func (m *memoryEvents) byType(eventType string) []dto.SecurityEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []dto.SecurityEvent
	for _, e := range m.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (m *memoryEvents) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

// memorySink is an in-memory AuditSink.
type memorySink struct {
	mu   sync.Mutex
	rows []model.SecurityEvent
}

func (s *memorySink) Insert(_ context.Context, event model.SecurityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, event)
	return nil
}

func (s *memorySink) CountSince(_ context.Context, since time.Time, severities []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, row := range s.rows {
		if row.Timestamp.Before(since) {
			continue
		}
		for _, sev := range severities {
			if row.Severity == sev {
				count++
				break
			}
		}
	}
	return count, nil
}

func (s *memorySink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

// stubGeoLookup serves a fixed location per IP.
type stubGeoLookup struct {
	locations map[string]*GeoLocation
}

func (s *stubGeoLookup) Lookup(_ context.Context, ip string) (*GeoLocation, error) {
	if s.locations == nil {
		return nil, nil
	}
	return s.locations[ip], nil
}

// stubGeoScorer returns fixed points, for isolating the threat scorer from
// geolocation.
type stubGeoScorer struct {
	points int
}

func (s stubGeoScorer) Score(context.Context, string) int { return s.points }

func testConfig() *SecurityConfig {
	return DefaultSecurityConfig()
}
