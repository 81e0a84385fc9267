package core

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/tabterm/internal/logx"
	"pkt.systems/tabterm/schema"
)

const titleCacheKeyPrefix = "cachedInitialTitle-"

// TitleCacheKey returns the storage key of a container's cached title.
func TitleCacheKey(id schema.ContainerID) string {
	return titleCacheKeyPrefix + id.CanonicalJSON()
}

// SyntheticTitle is shown for a non-default container with no cached title.
func SyntheticTitle(id schema.ContainerID) string {
	return "<>@" + id.DisplayName() + ":~"
}

// TitleCache stores the first title observed for each container.
type TitleCache struct {
	storage Storage
}

// NewTitleCache constructs a cache over storage.
func NewTitleCache(storage Storage) *TitleCache {
	return &TitleCache{storage: storage}
}

// Lookup returns the cached title for a container.
func (c *TitleCache) Lookup(id schema.ContainerID) (string, bool) {
	if c == nil || c.storage == nil {
		return "", false
	}
	title, ok := c.storage.Get(TitleCacheKey(id))
	if !ok {
		return "", false
	}
	return title, true
}

// Store records the title for a container.
func (c *TitleCache) Store(id schema.ContainerID, title string) error {
	if c == nil || c.storage == nil {
		return errors.New("title cache has no storage")
	}
	return c.storage.Set(TitleCacheKey(id), title)
}

// TitleHandlerDeps captures the collaborators of a title handler.
type TitleHandlerDeps struct {
	Trackers *TrackerHandle
	Flags    FeatureFlags
	Cache    *TitleCache
	Document Document
	Resolver Resolver
	Logger   pslog.Logger
}

// TitleHandler picks a page's initial title and feeds title mutations into
// the cache and the tracker.
type TitleHandler struct {
	tracker *Tracker
	cache   *TitleCache
	launch  schema.LaunchInfo
	log     pslog.Logger

	mu       sync.Mutex
	observed bool
}

// SetUpTitleHandler waits for the page tracker and the tmux feature flag,
// resolves the launch for rawURL and applies the initial document title.
func SetUpTitleHandler(ctx context.Context, rawURL string, deps TitleHandlerDeps) (*TitleHandler, error) {
	if deps.Trackers == nil {
		return nil, errors.New("tracker handle is required")
	}
	if deps.Document == nil {
		return nil, errors.New("document dependency is required")
	}
	tracker, err := deps.Trackers.Get(ctx)
	if err != nil {
		return nil, err
	}
	tmuxEnabled := false
	if deps.Flags != nil {
		tmuxEnabled, err = deps.Flags.TmuxIntegration(ctx)
		if err != nil {
			return nil, fmt.Errorf("feature flag probe: %w", err)
		}
	}
	if deps.Resolver == (Resolver{}) {
		deps.Resolver = NewResolver(schema.ServiceConfig{})
	}
	launch, err := deps.Resolver.Resolve(rawURL, tracker.ParentTerminal(), tmuxEnabled)
	if err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(ctx)
	}
	log := logx.WithTab(logger, tracker.TabID(), tracker.WindowID()).With("launch", string(launch.Kind()))
	h := &TitleHandler{
		tracker: tracker,
		cache:   deps.Cache,
		launch:  launch,
		log:     logx.WithContainer(log, launch.ContainerID()),
	}
	h.applyInitialTitle(deps.Document, tracker.Parent())
	return h, nil
}

// Launch returns the launch resolved during setup.
func (h *TitleHandler) Launch() schema.LaunchInfo {
	return h.launch
}

// Tracker returns the page tracker.
func (h *TitleHandler) Tracker() *Tracker {
	return h.tracker
}

func (h *TitleHandler) applyInitialTitle(doc Document, parent *schema.ParentTerminal) {
	if parent != nil {
		doc.SetTitle(parent.Title)
		h.log.Debug("title copied from parent", "parent_tab", int(parent.TabID))
		return
	}
	if h.launch.Vsh == nil {
		return
	}
	container := h.launch.Vsh.ContainerID
	if title, ok := h.cache.Lookup(container); ok {
		doc.SetTitle(title)
		h.log.Debug("title from cache")
		return
	}
	if !container.IsDefault() {
		doc.SetTitle(SyntheticTitle(container))
		h.log.Debug("title synthesized")
	}
}

// OnTitleMutation handles a document title change. The first change of the
// session is cached for the container unless the launch carried a cwd.
func (h *TitleHandler) OnTitleMutation(title string) error {
	h.mu.Lock()
	first := !h.observed
	h.observed = true
	h.mu.Unlock()

	if first && h.launch.Vsh != nil && !h.launch.Vsh.HasCwd {
		if err := h.cache.Store(h.launch.Vsh.ContainerID, title); err != nil {
			h.log.Warn("title cache store failed", "err", err)
		} else {
			h.log.Debug("title cached", "title", title)
		}
	}
	return h.tracker.MaybeUpdateWindowActiveTerminal()
}
