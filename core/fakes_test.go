package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"pkt.systems/tabterm/schema"
)

type memStorage struct {
	mu     sync.Mutex
	values map[string]string
	setErr error
}

func newMemStorage() *memStorage {
	return &memStorage{values: make(map[string]string)}
}

func (s *memStorage) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.values[key]
	return value, ok
}

func (s *memStorage) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return s.setErr
	}
	s.values[key] = value
	return nil
}

func (s *memStorage) RemoveIf(key string, match func(current string) bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.values[key]
	if !ok || !match(current) {
		return false, nil
	}
	delete(s.values, key)
	return true, nil
}

func (s *memStorage) has(key string) bool {
	_, ok := s.Get(key)
	return ok
}

type fakeBrowser struct {
	tab       schema.TabInfo
	err       error
	parent    *schema.ParentTerminal
	parentErr error
	calls     atomic.Int32
	release   chan struct{}
}

func (b *fakeBrowser) CurrentTab(ctx context.Context) (schema.TabInfo, error) {
	b.calls.Add(1)
	if b.release != nil {
		select {
		case <-b.release:
		case <-ctx.Done():
			return schema.TabInfo{}, ctx.Err()
		}
	}
	if b.err != nil {
		return schema.TabInfo{}, b.err
	}
	return b.tab, nil
}

func (b *fakeBrowser) ParentTerminal(context.Context, schema.TabInfo) (*schema.ParentTerminal, error) {
	return b.parent, b.parentErr
}

type fakeDocument struct {
	mu    sync.Mutex
	title string
	sets  int
}

func (d *fakeDocument) Title() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.title
}

func (d *fakeDocument) SetTitle(title string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.title = title
	d.sets++
}

type failingFlags struct{}

func (failingFlags) TmuxIntegration(context.Context) (bool, error) {
	return false, errors.New("flag service down")
}

func terminal(id string) *schema.TerminalInfo {
	return &schema.TerminalInfo{TerminalID: schema.TerminalID(id)}
}

func newTestTracker(tb interface{ Fatalf(string, ...any) }, storage Storage, tab schema.TabInfo, doc Document) *Tracker {
	handle := NewTrackerHandle(TrackerDeps{
		Browser:  &fakeBrowser{tab: tab},
		Storage:  storage,
		Document: doc,
	})
	tracker, err := handle.Get(context.Background())
	if err != nil {
		tb.Fatalf("tracker: %v", err)
	}
	return tracker
}
