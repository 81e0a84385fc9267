package browser

import (
	"context"
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/tabterm/core"
	"pkt.systems/tabterm/internal/eventbus"
	"pkt.systems/tabterm/schema"
)

const titleWatchDepth = 16

// Page is one terminal page loaded in a browser tab. It is the tracker's
// Browser and Document.
type Page struct {
	id       schema.PageID
	tab      schema.TabInfo
	url      string
	opener   schema.TabID
	registry *Registry
	trackers *core.TrackerHandle
	handler  *core.TitleHandler
	log      pslog.Logger

	mu       sync.Mutex
	title    string
	watchers map[chan string]struct{}

	quit     chan struct{}
	quitOnce sync.Once
	done     chan struct{}
}

func newPage(id schema.PageID, req schema.OpenPageRequest, registry *Registry, log pslog.Logger) *Page {
	p := &Page{
		id:       id,
		tab:      req.Tab,
		url:      req.URL,
		opener:   req.OpenerTabID,
		registry: registry,
		log:      log,
		watchers: make(map[chan string]struct{}),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	p.trackers = core.NewTrackerHandle(core.TrackerDeps{
		Browser:  p,
		Storage:  registry.storage,
		Document: p,
		Logger:   log,
	})
	return p
}

// ID returns the page id.
func (p *Page) ID() schema.PageID {
	return p.id
}

// Done is closed once the page's event queue has stopped.
func (p *Page) Done() <-chan struct{} {
	return p.done
}

// Tracker returns the page tracker, or nil before it is constructed.
func (p *Page) Tracker() *core.Tracker {
	return p.trackers.Ready()
}

// CurrentTab implements core.Browser with the tab reported at open.
func (p *Page) CurrentTab(context.Context) (schema.TabInfo, error) {
	return p.tab, nil
}

// ParentTerminal implements core.Browser by looking up the opener tab's page.
func (p *Page) ParentTerminal(context.Context, schema.TabInfo) (*schema.ParentTerminal, error) {
	return p.registry.parentOf(p.opener), nil
}

// Title implements core.Document.
func (p *Page) Title() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.title
}

// SetTitle implements core.Document. Title changes made by the daemon are
// pushed to title watchers.
func (p *Page) SetTitle(title string) {
	p.mu.Lock()
	p.title = title
	watchers := make([]chan string, 0, len(p.watchers))
	for ch := range p.watchers {
		watchers = append(watchers, ch)
	}
	p.mu.Unlock()
	for _, ch := range watchers {
		select {
		case ch <- title:
		default:
			p.log.Trace("page title push dropped")
		}
	}
}

// WatchTitle returns a channel of titles set by the daemon.
func (p *Page) WatchTitle() (<-chan string, func()) {
	ch := make(chan string, titleWatchDepth)
	p.mu.Lock()
	p.watchers[ch] = struct{}{}
	p.mu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.watchers, ch)
			p.mu.Unlock()
		})
	}
}

// Snapshot returns a read-only view of the page.
func (p *Page) Snapshot() schema.PageSnapshot {
	snapshot := schema.PageSnapshot{
		ID:          p.id,
		Tab:         p.tab,
		URL:         p.url,
		OpenerTabID: p.opener,
		Title:       p.Title(),
	}
	if tracker := p.trackers.Ready(); tracker != nil {
		snapshot.Tab.WindowID = tracker.WindowID()
		snapshot.Tab.Active = tracker.Active()
	}
	if p.handler != nil {
		snapshot.Launch = p.handler.Launch()
	}
	return snapshot
}

func (p *Page) stop() {
	p.quitOnce.Do(func() { close(p.quit) })
}

// run processes the page's events one at a time until unload or stop.
func (p *Page) run(events <-chan eventbus.Event, cancel func()) {
	defer close(p.done)
	defer p.registry.remove(p)
	defer cancel()
	for {
		select {
		case <-p.quit:
			p.log.Debug("page stopped")
			return
		case event := <-events:
			err := p.handle(event.PageEvent)
			if err != nil {
				p.log.Warn("page event failed", "event", string(event.Type), "err", err)
			}
			event.Done(err)
			if event.Type == schema.PageEventUnload {
				p.log.Info("page closed")
				return
			}
		}
	}
}

func (p *Page) handle(event schema.PageEvent) error {
	tracker := p.handler.Tracker()
	switch event.Type {
	case schema.PageEventTerminalInfo:
		return tracker.UpdateTerminalInfo(event.TerminalInfo)
	case schema.PageEventTitle:
		p.mu.Lock()
		p.title = event.Title
		p.mu.Unlock()
		return p.handler.OnTitleMutation(event.Title)
	case schema.PageEventTabActivated:
		if event.TabActivated == nil {
			return nil
		}
		return tracker.OnTabActivated(*event.TabActivated)
	case schema.PageEventUnload:
		return tracker.OnUnload()
	default:
		p.log.Debug("page event ignored", "event", string(event.Type))
		return nil
	}
}
