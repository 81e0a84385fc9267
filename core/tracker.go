package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/tabterm/internal/logx"
	"pkt.systems/tabterm/schema"
)

// ActiveTerminalKeyPrefix prefixes every per-window record key.
const ActiveTerminalKeyPrefix = "activeTerminal-"

// ActiveTerminalKey returns the storage key of a window's record.
func ActiveTerminalKey(windowID schema.WindowID) string {
	return ActiveTerminalKeyPrefix + strconv.Itoa(int(windowID))
}

// ReadWindowActiveTerminal decodes the record stored for a window. Absent
// and malformed records both read as nil.
func ReadWindowActiveTerminal(storage Storage, windowID schema.WindowID) *schema.ActiveTerminalRecord {
	if storage == nil {
		return nil
	}
	raw, ok := storage.Get(ActiveTerminalKey(windowID))
	if !ok {
		return nil
	}
	return decodeRecord(raw)
}

func decodeRecord(raw string) *schema.ActiveTerminalRecord {
	if raw == "" {
		return nil
	}
	var record schema.ActiveTerminalRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil
	}
	return &record
}

// Tracker tracks whether the page's tab hosts the active terminal of its
// window and keeps the window record in Storage current.
type Tracker struct {
	mu       sync.Mutex
	tabID    schema.TabID
	windowID schema.WindowID
	active   bool
	info     *schema.TerminalInfo
	parent   *schema.ParentTerminal
	storage  Storage
	doc      Document
	base     pslog.Logger
	log      pslog.Logger
}

func newTracker(ctx context.Context, deps TrackerDeps) (*Tracker, error) {
	if deps.Browser == nil {
		return nil, errors.New("browser dependency is required")
	}
	if deps.Storage == nil {
		return nil, errors.New("storage dependency is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(ctx)
	}
	tab, err := deps.Browser.CurrentTab(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", schema.ErrTabUnknown, err)
	}
	if err := schema.ValidateTabInfo(tab); err != nil {
		return nil, err
	}
	log := logx.WithTab(logger, tab.TabID, tab.WindowID)
	parent, err := deps.Browser.ParentTerminal(ctx, tab)
	if err != nil {
		log.Warn("tracker parent lookup failed", "err", err)
		parent = nil
	}
	if parent != nil {
		parent = &schema.ParentTerminal{TabID: parent.TabID, Info: *parent.Info.Clone(), Title: parent.Title}
		log.Debug("tracker parent found", "parent_tab", int(parent.TabID), "parent_terminal", parent.Info.TerminalID)
	}
	log.Info("tracker ready", "active", tab.Active)
	return &Tracker{
		tabID:    tab.TabID,
		windowID: tab.WindowID,
		active:   tab.Active,
		parent:   parent,
		storage:  deps.Storage,
		doc:      deps.Document,
		base:     logger,
		log:      log,
	}, nil
}

// TabID returns the tab owning the tracker.
func (t *Tracker) TabID() schema.TabID {
	return t.tabID
}

// WindowID returns the window the tab currently lives in.
func (t *Tracker) WindowID() schema.WindowID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.windowID
}

// Active reports whether the tab is the focused tab of its window.
func (t *Tracker) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// ParentTerminal returns the terminal info of the tab that spawned this one.
func (t *Tracker) ParentTerminal() *schema.TerminalInfo {
	if t.parent == nil {
		return nil
	}
	return t.parent.Info.Clone()
}

// Parent returns the parent terminal including its title snapshot.
func (t *Tracker) Parent() *schema.ParentTerminal {
	if t.parent == nil {
		return nil
	}
	return &schema.ParentTerminal{TabID: t.parent.TabID, Info: *t.parent.Info.Clone(), Title: t.parent.Title}
}

// TerminalInfo returns the current terminal info, or nil.
func (t *Tracker) TerminalInfo() *schema.TerminalInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.info.Clone()
}

// UpdateTerminalInfo replaces the terminal info and re-evaluates the record.
func (t *Tracker) UpdateTerminalInfo(info *schema.TerminalInfo) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.info = info.Clone()
	logx.WithTerminal(t.log, t.info).Debug("tracker terminal info updated")
	return t.maybeUpdateLocked()
}

// MaybeUpdateWindowActiveTerminal writes the window record when the tab is
// active and has a terminal, and clears a record this tab owns otherwise.
func (t *Tracker) MaybeUpdateWindowActiveTerminal() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.maybeUpdateLocked()
}

// WindowActiveTerminal returns the record stored for the tab's window.
func (t *Tracker) WindowActiveTerminal() *schema.ActiveTerminalRecord {
	t.mu.Lock()
	windowID := t.windowID
	t.mu.Unlock()
	return ReadWindowActiveTerminal(t.storage, windowID)
}

// OnTabActivated handles a browser tab activation.
func (t *Tracker) OnTabActivated(event schema.TabActivatedEvent) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if event.TabID == t.tabID {
		if event.WindowID != t.windowID {
			previous := t.windowID
			if err := t.clearOwnedLocked(previous); err != nil {
				return err
			}
			t.windowID = event.WindowID
			t.log = logx.WithTab(t.base, t.tabID, event.WindowID)
			t.log.Info("tracker tab moved", "from_window", int(previous))
		}
		if !t.active {
			t.log.Debug("tracker tab activated")
		}
		t.active = true
		return t.maybeUpdateLocked()
	}
	if event.WindowID != t.windowID {
		return nil
	}
	if t.active {
		t.log.Debug("tracker tab deactivated", "activated_tab", int(event.TabID))
	}
	t.active = false
	return t.clearOwnedLocked(t.windowID)
}

// OnUnload clears the window record if this tab owns it.
func (t *Tracker) OnUnload() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.log.Debug("tracker unload")
	return t.clearOwnedLocked(t.windowID)
}

// Snapshot returns a transport-friendly view of the tracker.
func (t *Tracker) Snapshot() schema.TrackerSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	state := schema.TrackerInactive
	if t.active {
		state = schema.TrackerActiveUnset
		if t.info.HasTerminal() {
			state = schema.TrackerActivePersisted
		}
	}
	var parent *schema.TerminalInfo
	if t.parent != nil {
		parent = t.parent.Info.Clone()
	}
	return schema.TrackerSnapshot{
		TabID:          t.tabID,
		WindowID:       t.windowID,
		Active:         t.active,
		State:          state,
		TerminalInfo:   t.info.Clone(),
		ParentTerminal: parent,
	}
}

func (t *Tracker) maybeUpdateLocked() error {
	if !t.active || !t.info.HasTerminal() {
		return t.clearOwnedLocked(t.windowID)
	}
	title := ""
	if t.doc != nil {
		title = t.doc.Title()
	}
	record := schema.ActiveTerminalRecord{
		TabID:        t.tabID,
		Title:        title,
		TerminalInfo: *t.info.Clone(),
	}
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	if err := t.storage.Set(ActiveTerminalKey(t.windowID), string(data)); err != nil {
		t.log.Warn("tracker record write failed", "err", err)
		return err
	}
	t.log.Trace("tracker record written", "terminal", t.info.TerminalID, "title", title)
	return nil
}

// clearOwnedLocked removes the window record only when it names this tab.
func (t *Tracker) clearOwnedLocked(windowID schema.WindowID) error {
	removed, err := t.storage.RemoveIf(ActiveTerminalKey(windowID), func(current string) bool {
		record := decodeRecord(current)
		return record != nil && record.TabID == t.tabID
	})
	if err != nil {
		t.log.Warn("tracker record clear failed", "window", int(windowID), "err", err)
		return err
	}
	if removed {
		t.log.Debug("tracker record cleared", "window", int(windowID))
	}
	return nil
}
