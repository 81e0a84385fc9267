package core

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"pkt.systems/tabterm/internal/persist"
	"pkt.systems/tabterm/schema"
)

func TestUpdateTerminalInfoPersistsRecordWhenActive(t *testing.T) {
	storage := newMemStorage()
	doc := &fakeDocument{title: "user@penguin:~"}
	tracker := newTestTracker(t, storage, schema.TabInfo{TabID: 10, WindowID: 1, Active: true}, doc)

	if err := tracker.UpdateTerminalInfo(terminal("term-a")); err != nil {
		t.Fatalf("update: %v", err)
	}
	record := tracker.WindowActiveTerminal()
	if record == nil {
		t.Fatalf("expected record")
	}
	if record.TabID != 10 || record.Title != "user@penguin:~" || record.TerminalInfo.TerminalID != "term-a" {
		t.Fatalf("unexpected record: %+v", record)
	}
	if got := ReadWindowActiveTerminal(storage, 1); got == nil || got.TabID != 10 {
		t.Fatalf("expected record under window key, got %+v", got)
	}

	if err := tracker.UpdateTerminalInfo(nil); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if record := tracker.WindowActiveTerminal(); record != nil {
		t.Fatalf("expected record cleared, got %+v", record)
	}
}

func TestInactiveTabNeverPersists(t *testing.T) {
	storage := newMemStorage()
	tracker := newTestTracker(t, storage, schema.TabInfo{TabID: 11, WindowID: 1}, &fakeDocument{})

	if err := tracker.UpdateTerminalInfo(terminal("term-a")); err != nil {
		t.Fatalf("update: %v", err)
	}
	if storage.has(ActiveTerminalKey(1)) {
		t.Fatalf("inactive tab must not write a record")
	}
	if tracker.Snapshot().State != schema.TrackerInactive {
		t.Fatalf("expected inactive state, got %q", tracker.Snapshot().State)
	}
}

func TestEmptyTerminalIDClearsOwnedRecord(t *testing.T) {
	storage := newMemStorage()
	tracker := newTestTracker(t, storage, schema.TabInfo{TabID: 12, WindowID: 1, Active: true}, &fakeDocument{})
	if err := tracker.UpdateTerminalInfo(terminal("term-a")); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := tracker.UpdateTerminalInfo(&schema.TerminalInfo{TmuxDriverChannel: "drv"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if storage.has(ActiveTerminalKey(1)) {
		t.Fatalf("expected record removed for empty terminal id")
	}
	if got := tracker.Snapshot().State; got != schema.TrackerActiveUnset {
		t.Fatalf("expected active-unset state, got %q", got)
	}
}

func TestClearNeverTouchesAnotherTabsRecord(t *testing.T) {
	storage := newMemStorage()
	owner := newTestTracker(t, storage, schema.TabInfo{TabID: 1, WindowID: 5, Active: true}, &fakeDocument{})
	other := newTestTracker(t, storage, schema.TabInfo{TabID: 2, WindowID: 5}, &fakeDocument{})

	if err := owner.UpdateTerminalInfo(terminal("owner-term")); err != nil {
		t.Fatalf("owner update: %v", err)
	}
	if err := other.UpdateTerminalInfo(terminal("other-term")); err != nil {
		t.Fatalf("other update: %v", err)
	}
	record := ReadWindowActiveTerminal(storage, 5)
	if record == nil || record.TabID != 1 {
		t.Fatalf("expected owner's record to survive, got %+v", record)
	}
}

func TestTabActivationSwitchesOwner(t *testing.T) {
	storage := newMemStorage()
	first := newTestTracker(t, storage, schema.TabInfo{TabID: 1, WindowID: 5, Active: true}, &fakeDocument{title: "one"})
	second := newTestTracker(t, storage, schema.TabInfo{TabID: 2, WindowID: 5}, &fakeDocument{title: "two"})
	if err := first.UpdateTerminalInfo(terminal("t1")); err != nil {
		t.Fatalf("update first: %v", err)
	}
	if err := second.UpdateTerminalInfo(terminal("t2")); err != nil {
		t.Fatalf("update second: %v", err)
	}

	event := schema.TabActivatedEvent{TabID: 2, WindowID: 5}
	// The newly active tab may see the event before the old one.
	if err := second.OnTabActivated(event); err != nil {
		t.Fatalf("second activation: %v", err)
	}
	if err := first.OnTabActivated(event); err != nil {
		t.Fatalf("first activation: %v", err)
	}
	record := ReadWindowActiveTerminal(storage, 5)
	if record == nil || record.TabID != 2 || record.Title != "two" {
		t.Fatalf("expected second tab to own the window, got %+v", record)
	}
	if first.Active() {
		t.Fatalf("expected first tab inactive")
	}
}

func TestTabActivationIsIdempotent(t *testing.T) {
	storage := newMemStorage()
	tracker := newTestTracker(t, storage, schema.TabInfo{TabID: 3, WindowID: 1}, &fakeDocument{})
	if err := tracker.UpdateTerminalInfo(terminal("t3")); err != nil {
		t.Fatalf("update: %v", err)
	}
	event := schema.TabActivatedEvent{TabID: 3, WindowID: 1}
	for i := 0; i < 2; i++ {
		if err := tracker.OnTabActivated(event); err != nil {
			t.Fatalf("activation %d: %v", i, err)
		}
		if !tracker.Active() {
			t.Fatalf("activation %d toggled state off", i)
		}
		if record := ReadWindowActiveTerminal(storage, 1); record == nil || record.TabID != 3 {
			t.Fatalf("activation %d: expected record, got %+v", i, record)
		}
	}
	other := schema.TabActivatedEvent{TabID: 4, WindowID: 1}
	for i := 0; i < 2; i++ {
		if err := tracker.OnTabActivated(other); err != nil {
			t.Fatalf("deactivation %d: %v", i, err)
		}
		if tracker.Active() {
			t.Fatalf("deactivation %d toggled state on", i)
		}
	}
	if storage.has(ActiveTerminalKey(1)) {
		t.Fatalf("expected record cleared after deactivation")
	}
}

func TestUnrelatedWindowEventsAreIgnored(t *testing.T) {
	storage := newMemStorage()
	tracker := newTestTracker(t, storage, schema.TabInfo{TabID: 3, WindowID: 1, Active: true}, &fakeDocument{})
	if err := tracker.UpdateTerminalInfo(terminal("t3")); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := tracker.OnTabActivated(schema.TabActivatedEvent{TabID: 9, WindowID: 2}); err != nil {
		t.Fatalf("activation: %v", err)
	}
	if !tracker.Active() {
		t.Fatalf("expected tab to stay active")
	}
	if record := ReadWindowActiveTerminal(storage, 1); record == nil {
		t.Fatalf("expected record untouched")
	}
}

func TestTabMoveRekeysRecord(t *testing.T) {
	storage := newMemStorage()
	tracker := newTestTracker(t, storage, schema.TabInfo{TabID: 3, WindowID: 1, Active: true}, &fakeDocument{title: "moved"})
	info := &schema.TerminalInfo{TerminalID: "t3", ContainerID: &schema.ContainerID{VMName: "termina", ContainerName: "work"}}
	if err := tracker.UpdateTerminalInfo(info); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := tracker.OnTabActivated(schema.TabActivatedEvent{TabID: 3, WindowID: 8}); err != nil {
		t.Fatalf("move: %v", err)
	}
	if storage.has(ActiveTerminalKey(1)) {
		t.Fatalf("expected old window record removed")
	}
	record := ReadWindowActiveTerminal(storage, 8)
	if record == nil {
		t.Fatalf("expected record under new window")
	}
	if record.TerminalInfo.TerminalID != "t3" || record.TerminalInfo.Container() != info.Container() {
		t.Fatalf("expected same terminal info after move, got %+v", record.TerminalInfo)
	}
	if tracker.WindowID() != 8 {
		t.Fatalf("expected tracker window 8, got %d", tracker.WindowID())
	}
}

func TestTabMoveKeepsOtherTabsRecordInOldWindow(t *testing.T) {
	storage := newMemStorage()
	mover := newTestTracker(t, storage, schema.TabInfo{TabID: 3, WindowID: 1}, &fakeDocument{})
	stayer := newTestTracker(t, storage, schema.TabInfo{TabID: 4, WindowID: 1, Active: true}, &fakeDocument{})
	if err := stayer.UpdateTerminalInfo(terminal("t4")); err != nil {
		t.Fatalf("update stayer: %v", err)
	}
	if err := mover.UpdateTerminalInfo(terminal("t3")); err != nil {
		t.Fatalf("update mover: %v", err)
	}
	if err := mover.OnTabActivated(schema.TabActivatedEvent{TabID: 3, WindowID: 2}); err != nil {
		t.Fatalf("move: %v", err)
	}
	if record := ReadWindowActiveTerminal(storage, 1); record == nil || record.TabID != 4 {
		t.Fatalf("expected stayer record intact, got %+v", record)
	}
	if record := ReadWindowActiveTerminal(storage, 2); record == nil || record.TabID != 3 {
		t.Fatalf("expected mover record in new window, got %+v", record)
	}
}

func TestUnloadClearsOnlyOwnRecord(t *testing.T) {
	storage := newMemStorage()
	tracker := newTestTracker(t, storage, schema.TabInfo{TabID: 3, WindowID: 1, Active: true}, &fakeDocument{})
	if err := storage.Set(ActiveTerminalKey(1), `{"tabId":99,"title":"other","terminalInfo":{"terminalId":"x"}}`); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := tracker.OnUnload(); err != nil {
		t.Fatalf("unload: %v", err)
	}
	if record := ReadWindowActiveTerminal(storage, 1); record == nil || record.TabID != 99 {
		t.Fatalf("expected foreign record untouched, got %+v", record)
	}

	if err := tracker.UpdateTerminalInfo(terminal("t3")); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := tracker.OnUnload(); err != nil {
		t.Fatalf("unload: %v", err)
	}
	if storage.has(ActiveTerminalKey(1)) {
		t.Fatalf("expected own record removed on unload")
	}
}

func TestUnloadKeepsRecordTakenOverThroughSharedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storage.json")
	first, err := persist.Open(path)
	if err != nil {
		t.Fatalf("open first: %v", err)
	}
	second, err := persist.Open(path)
	if err != nil {
		t.Fatalf("open second: %v", err)
	}
	owner := newTestTracker(t, first, schema.TabInfo{TabID: 1, WindowID: 7, Active: true}, &fakeDocument{})
	if err := owner.UpdateTerminalInfo(terminal("t1")); err != nil {
		t.Fatalf("owner update: %v", err)
	}
	other := newTestTracker(t, second, schema.TabInfo{TabID: 2, WindowID: 7, Active: true}, &fakeDocument{})
	if err := other.UpdateTerminalInfo(terminal("t2")); err != nil {
		t.Fatalf("other update: %v", err)
	}

	// first has not reloaded and still sees tab 1 as the owner.
	if record := ReadWindowActiveTerminal(first, 7); record == nil || record.TabID != 1 {
		t.Fatalf("expected stale view naming tab 1, got %+v", record)
	}
	if err := owner.OnUnload(); err != nil {
		t.Fatalf("unload: %v", err)
	}

	reader, err := persist.Open(path)
	if err != nil {
		t.Fatalf("open reader: %v", err)
	}
	record := ReadWindowActiveTerminal(reader, 7)
	if record == nil || record.TabID != 2 || record.TerminalInfo.TerminalID != "t2" {
		t.Fatalf("expected tab 2 record to survive tab 1 unload, got %+v", record)
	}
}

func TestMalformedRecordReadsAsNil(t *testing.T) {
	storage := newMemStorage()
	tracker := newTestTracker(t, storage, schema.TabInfo{TabID: 3, WindowID: 1}, &fakeDocument{})
	if err := storage.Set(ActiveTerminalKey(1), "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if record := tracker.WindowActiveTerminal(); record != nil {
		t.Fatalf("expected nil for malformed record, got %+v", record)
	}
	if err := tracker.OnUnload(); err != nil {
		t.Fatalf("unload: %v", err)
	}
	if !storage.has(ActiveTerminalKey(1)) {
		t.Fatalf("malformed record is not owned and must stay")
	}
}

func TestRecordWriteErrorPropagates(t *testing.T) {
	storage := newMemStorage()
	storage.setErr = errors.New("disk full")
	tracker := newTestTracker(t, storage, schema.TabInfo{TabID: 3, WindowID: 1, Active: true}, &fakeDocument{})
	if err := tracker.UpdateTerminalInfo(terminal("t3")); err == nil {
		t.Fatalf("expected write error")
	}
}

func TestTrackerHandleSharesConstruction(t *testing.T) {
	browser := &fakeBrowser{tab: schema.TabInfo{TabID: 1, WindowID: 1}, release: make(chan struct{})}
	handle := NewTrackerHandle(TrackerDeps{Browser: browser, Storage: newMemStorage()})

	results := make(chan *Tracker, 3)
	for i := 0; i < 3; i++ {
		go func() {
			tracker, err := handle.Get(context.Background())
			if err != nil {
				results <- nil
				return
			}
			results <- tracker
		}()
	}
	if handle.Ready() != nil {
		t.Fatalf("expected tracker not ready before discovery")
	}
	close(browser.release)
	var first *Tracker
	for i := 0; i < 3; i++ {
		got := <-results
		if got == nil {
			t.Fatalf("expected tracker")
		}
		if first == nil {
			first = got
		}
		if got != first {
			t.Fatalf("expected the same tracker instance")
		}
	}
	if calls := browser.calls.Load(); calls != 1 {
		t.Fatalf("expected single discovery, got %d", calls)
	}
	if handle.Ready() != first {
		t.Fatalf("expected Ready to return the tracker")
	}
}

func TestTrackerHandleFailureIsPermanent(t *testing.T) {
	browser := &fakeBrowser{err: errors.New("no tab")}
	handle := NewTrackerHandle(TrackerDeps{Browser: browser, Storage: newMemStorage()})
	for i := 0; i < 2; i++ {
		if _, err := handle.Get(context.Background()); !errors.Is(err, schema.ErrTabUnknown) {
			t.Fatalf("attempt %d: expected ErrTabUnknown, got %v", i, err)
		}
	}
	if calls := browser.calls.Load(); calls != 1 {
		t.Fatalf("expected no retry, got %d discoveries", calls)
	}
}

func TestTrackerHandleRejectsUnknownWindow(t *testing.T) {
	browser := &fakeBrowser{tab: schema.TabInfo{TabID: 1, WindowID: schema.NoWindow}}
	handle := NewTrackerHandle(TrackerDeps{Browser: browser, Storage: newMemStorage()})
	if _, err := handle.Get(context.Background()); !errors.Is(err, schema.ErrWindowUnknown) {
		t.Fatalf("expected ErrWindowUnknown, got %v", err)
	}
}

func TestTrackerHandleCanceledWaitDoesNotCancelConstruction(t *testing.T) {
	browser := &fakeBrowser{tab: schema.TabInfo{TabID: 1, WindowID: 1}, release: make(chan struct{})}
	handle := NewTrackerHandle(TrackerDeps{Browser: browser, Storage: newMemStorage()})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := handle.Get(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled wait, got %v", err)
	}
	close(browser.release)
	tracker, err := handle.Get(context.Background())
	if err != nil || tracker == nil {
		t.Fatalf("expected construction to finish, got %v", err)
	}
}

func TestParentTerminalResolvedOnce(t *testing.T) {
	parent := &schema.ParentTerminal{TabID: 1, Info: schema.TerminalInfo{TerminalID: "p"}, Title: "parent"}
	browser := &fakeBrowser{tab: schema.TabInfo{TabID: 2, WindowID: 1}, parent: parent}
	handle := NewTrackerHandle(TrackerDeps{Browser: browser, Storage: newMemStorage()})
	tracker, err := handle.Get(context.Background())
	if err != nil {
		t.Fatalf("tracker: %v", err)
	}
	parent.Info.TerminalID = "mutated"
	if got := tracker.ParentTerminal(); got == nil || got.TerminalID != "p" {
		t.Fatalf("expected parent snapshot, got %+v", got)
	}
}

func TestParentLookupFailureIsNotFatal(t *testing.T) {
	browser := &fakeBrowser{tab: schema.TabInfo{TabID: 2, WindowID: 1}, parentErr: errors.New("opener gone")}
	handle := NewTrackerHandle(TrackerDeps{Browser: browser, Storage: newMemStorage()})
	tracker, err := handle.Get(context.Background())
	if err != nil {
		t.Fatalf("tracker: %v", err)
	}
	if tracker.ParentTerminal() != nil {
		t.Fatalf("expected no parent")
	}
}
