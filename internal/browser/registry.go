package browser

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"pkt.systems/pslog"
	"pkt.systems/tabterm/core"
	"pkt.systems/tabterm/internal/eventbus"
	"pkt.systems/tabterm/internal/logx"
	"pkt.systems/tabterm/schema"
)

// Config captures the collaborators shared by every page.
type Config struct {
	Storage core.Storage
	Bus     *eventbus.Bus
	Flags   core.FeatureFlags
	Service schema.ServiceConfig
	Logger  pslog.Logger
}

// Registry mirrors the extension's open terminal pages. It answers the
// tracker's browser queries and runs each page's event queue.
type Registry struct {
	storage  core.Storage
	bus      *eventbus.Bus
	flags    core.FeatureFlags
	resolver core.Resolver
	cache    *core.TitleCache
	log      pslog.Logger

	mu    sync.RWMutex
	pages map[schema.PageID]*Page
	byTab map[schema.TabID]*Page
}

// NewRegistry constructs a page registry.
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.Storage == nil {
		return nil, errors.New("storage is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	bus := cfg.Bus
	if bus == nil {
		bus = eventbus.New(logger)
	}
	flags := cfg.Flags
	if flags == nil {
		flags = core.StaticFlags{Tmux: cfg.Service.TmuxIntegration}
	}
	return &Registry{
		storage:  cfg.Storage,
		bus:      bus,
		flags:    flags,
		resolver: core.NewResolver(cfg.Service),
		cache:    core.NewTitleCache(cfg.Storage),
		log:      logger,
		pages:    make(map[schema.PageID]*Page),
		byTab:    make(map[schema.TabID]*Page),
	}, nil
}

// OpenPage registers a page, waits for its tracker and title handler and
// starts its event queue. A tab that already has a page (a reload without
// unload) has the old page closed first.
func (r *Registry) OpenPage(ctx context.Context, req schema.OpenPageRequest) (schema.OpenPageResponse, error) {
	if err := schema.ValidateTabInfo(req.Tab); err != nil {
		return schema.OpenPageResponse{}, err
	}
	if strings.TrimSpace(req.URL) == "" {
		return schema.OpenPageResponse{}, fmt.Errorf("%w: url is required", schema.ErrInvalidRequest)
	}
	id := schema.PageID(uuid.NewString())
	log := logx.WithTab(r.log.With("page", id), req.Tab.TabID, req.Tab.WindowID)
	page := newPage(id, req, r, log)

	r.mu.Lock()
	previous := r.byTab[req.Tab.TabID]
	r.mu.Unlock()
	if previous != nil {
		log.Info("page replaces stale page", "stale_page", previous.id)
		previous.stop()
	}

	events, cancel := r.bus.Subscribe(id)
	handler, err := core.SetUpTitleHandler(ctx, req.URL, core.TitleHandlerDeps{
		Trackers: page.trackers,
		Flags:    r.flags,
		Cache:    r.cache,
		Document: page,
		Resolver: r.resolver,
		Logger:   log,
	})
	if err != nil {
		cancel()
		log.Warn("page open failed", "err", err)
		return schema.OpenPageResponse{}, err
	}
	page.handler = handler

	r.mu.Lock()
	r.pages[id] = page
	r.byTab[req.Tab.TabID] = page
	count := len(r.pages)
	r.mu.Unlock()

	go page.run(events, cancel)
	log.Info("page opened", "launch", string(handler.Launch().Kind()), "pages", count)
	return schema.OpenPageResponse{
		Page:   page.Snapshot(),
		Launch: handler.Launch(),
		Title:  page.Title(),
	}, nil
}

// Page returns a registered page.
func (r *Registry) Page(id schema.PageID) (*Page, error) {
	if err := schema.ValidatePageID(id); err != nil {
		return nil, err
	}
	r.mu.RLock()
	page := r.pages[id]
	r.mu.RUnlock()
	if page == nil {
		return nil, fmt.Errorf("%w: %s", schema.ErrPageNotFound, id)
	}
	return page, nil
}

// Pages lists registered pages ordered by tab id.
func (r *Registry) Pages() []schema.PageSnapshot {
	r.mu.RLock()
	pages := make([]*Page, 0, len(r.pages))
	for _, page := range r.pages {
		pages = append(pages, page)
	}
	r.mu.RUnlock()
	out := make([]schema.PageSnapshot, 0, len(pages))
	for _, page := range pages {
		out = append(out, page.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Tab.TabID == out[j].Tab.TabID {
			return out[i].ID < out[j].ID
		}
		return out[i].Tab.TabID < out[j].Tab.TabID
	})
	return out
}

// UpdateTerminal queues new terminal info on the page and waits for the
// tracker to apply it.
func (r *Registry) UpdateTerminal(ctx context.Context, req schema.UpdateTerminalRequest) error {
	return r.request(ctx, req.PageID, schema.PageEvent{Type: schema.PageEventTerminalInfo, TerminalInfo: req.TerminalInfo})
}

// SetTitle queues a document title mutation on the page.
func (r *Registry) SetTitle(ctx context.Context, req schema.SetTitleRequest) error {
	return r.request(ctx, req.PageID, schema.PageEvent{Type: schema.PageEventTitle, Title: req.Title})
}

// ClosePage unloads the page and removes it from the registry.
func (r *Registry) ClosePage(ctx context.Context, req schema.ClosePageRequest) error {
	return r.request(ctx, req.PageID, schema.PageEvent{Type: schema.PageEventUnload})
}

// TabActivated broadcasts a browser tab activation to every page.
func (r *Registry) TabActivated(event schema.TabActivatedEvent) (int, error) {
	if err := schema.ValidateTabInfo(schema.TabInfo{TabID: event.TabID, WindowID: event.WindowID}); err != nil {
		return 0, err
	}
	delivered := r.bus.OnTabActivated(event)
	logx.WithTab(r.log, event.TabID, event.WindowID).Debug("tab activated", "pages", delivered)
	return delivered, nil
}

// WindowActiveTerminal returns the record stored for a window.
func (r *Registry) WindowActiveTerminal(req schema.WindowActiveTerminalRequest) (schema.WindowActiveTerminalResponse, error) {
	if req.WindowID < 0 {
		return schema.WindowActiveTerminalResponse{}, fmt.Errorf("%w: window id %d", schema.ErrInvalidRequest, req.WindowID)
	}
	record := core.ReadWindowActiveTerminal(r.storage, req.WindowID)
	if record == nil {
		return schema.WindowActiveTerminalResponse{}, fmt.Errorf("%w: window %d", schema.ErrNoRecord, req.WindowID)
	}
	return schema.WindowActiveTerminalResponse{Record: record}, nil
}

// ResolveLaunch resolves a launch URL without registering a page. The tmux
// flag defaults to the registry's feature flags.
func (r *Registry) ResolveLaunch(ctx context.Context, req schema.ResolveLaunchRequest) (schema.ResolveLaunchResponse, error) {
	if strings.TrimSpace(req.URL) == "" {
		return schema.ResolveLaunchResponse{}, fmt.Errorf("%w: url is required", schema.ErrInvalidRequest)
	}
	var tmux bool
	if req.TmuxIntegration != nil {
		tmux = *req.TmuxIntegration
	} else {
		enabled, err := r.flags.TmuxIntegration(ctx)
		if err != nil {
			return schema.ResolveLaunchResponse{}, fmt.Errorf("feature flag probe: %w", err)
		}
		tmux = enabled
	}
	launch, err := r.resolver.Resolve(req.URL, req.Parent, tmux)
	if err != nil {
		return schema.ResolveLaunchResponse{}, err
	}
	return schema.ResolveLaunchResponse{Launch: launch}, nil
}

// Close stops every page without unloading them; their window records stay
// so a restarted daemon keeps answering window queries.
func (r *Registry) Close() {
	r.mu.RLock()
	pages := make([]*Page, 0, len(r.pages))
	for _, page := range r.pages {
		pages = append(pages, page)
	}
	r.mu.RUnlock()
	for _, page := range pages {
		page.stop()
	}
	for _, page := range pages {
		<-page.done
	}
}

func (r *Registry) request(ctx context.Context, id schema.PageID, event schema.PageEvent) error {
	if _, err := r.Page(id); err != nil {
		return err
	}
	if err := r.bus.Request(ctx, id, event); err != nil {
		if errors.Is(err, eventbus.ErrNoSubscriber) {
			return fmt.Errorf("%w: %s", schema.ErrPageNotFound, id)
		}
		return err
	}
	return nil
}

// parentOf returns the terminal of the page open in the opener tab.
func (r *Registry) parentOf(opener schema.TabID) *schema.ParentTerminal {
	if opener < 0 {
		return nil
	}
	r.mu.RLock()
	page := r.byTab[opener]
	r.mu.RUnlock()
	if page == nil {
		return nil
	}
	tracker := page.trackers.Ready()
	if tracker == nil {
		return nil
	}
	info := tracker.TerminalInfo()
	if info == nil {
		return nil
	}
	return &schema.ParentTerminal{TabID: opener, Info: *info, Title: page.Title()}
}

func (r *Registry) remove(page *Page) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pages[page.id] == page {
		delete(r.pages, page.id)
	}
	if r.byTab[page.tab.TabID] == page {
		delete(r.byTab, page.tab.TabID)
	}
}
