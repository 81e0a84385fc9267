package core

import (
	"context"

	"pkt.systems/pslog"
	"pkt.systems/tabterm/schema"
)

// Browser is the slice of the browser tab/window API a page needs.
type Browser interface {
	// CurrentTab reports the tab and window hosting the page.
	CurrentTab(ctx context.Context) (schema.TabInfo, error)
	// ParentTerminal reports the terminal tab that spawned tab, or nil.
	ParentTerminal(ctx context.Context, tab schema.TabInfo) (*schema.ParentTerminal, error)
}

// Storage is a synchronous key-value store shared by all pages.
type Storage interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	// RemoveIf deletes key only when match accepts its current value, read
	// under the same lock as the delete. It reports whether key was removed.
	RemoveIf(key string, match func(current string) bool) (bool, error)
}

// Document exposes the page's document title.
type Document interface {
	Title() string
	SetTitle(title string)
}

// FeatureFlags probes optional features.
type FeatureFlags interface {
	TmuxIntegration(ctx context.Context) (bool, error)
}

// StaticFlags is a FeatureFlags backed by fixed values.
type StaticFlags struct {
	Tmux bool
}

// TmuxIntegration implements FeatureFlags.
func (f StaticFlags) TmuxIntegration(context.Context) (bool, error) {
	return f.Tmux, nil
}

// TrackerDeps captures the collaborators of a page tracker.
type TrackerDeps struct {
	Browser  Browser
	Storage  Storage
	Document Document
	Logger   pslog.Logger
}
