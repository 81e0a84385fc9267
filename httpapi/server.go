package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"pkt.systems/tabterm/core"
	"pkt.systems/tabterm/internal/browser"
	"pkt.systems/tabterm/internal/logx"
	"pkt.systems/tabterm/schema"
)

const maxBodyBytes = 1 << 20

// Registry is the page registry the API drives.
type Registry interface {
	OpenPage(ctx context.Context, req schema.OpenPageRequest) (schema.OpenPageResponse, error)
	Page(id schema.PageID) (*browser.Page, error)
	Pages() []schema.PageSnapshot
	UpdateTerminal(ctx context.Context, req schema.UpdateTerminalRequest) error
	SetTitle(ctx context.Context, req schema.SetTitleRequest) error
	ClosePage(ctx context.Context, req schema.ClosePageRequest) error
	TabActivated(event schema.TabActivatedEvent) (int, error)
	WindowActiveTerminal(req schema.WindowActiveTerminalRequest) (schema.WindowActiveTerminalResponse, error)
	ResolveLaunch(ctx context.Context, req schema.ResolveLaunchRequest) (schema.ResolveLaunchResponse, error)
}

// Server serves the extension bridge API.
type Server struct {
	cfg   Config
	pages Registry
}

// NewServer constructs an HTTP server.
func NewServer(cfg Config, pages Registry) *Server {
	return &Server{cfg: cfg, pages: pages}
}

// Handler returns an http.Handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	base := normalizeBasePath(s.cfg.BasePath)
	route := func(method, pattern string, handler http.HandlerFunc) {
		mux.HandleFunc(method+" "+base+pattern, handler)
	}
	route("GET", "/healthz", s.handleHealth)
	route("GET", "/api/pages", s.handleListPages)
	route("POST", "/api/pages", s.handleOpenPage)
	route("GET", "/api/pages/{id}", s.handleGetPage)
	route("GET", "/api/pages/{id}/events", s.handleEvents)
	route("POST", "/api/pages/{id}/terminal", s.handleTerminal)
	route("POST", "/api/pages/{id}/title", s.handleTitle)
	route("POST", "/api/pages/{id}/unload", s.handleUnload)
	route("POST", "/api/tabs/activated", s.handleTabActivated)
	route("GET", "/api/windows/{id}/active", s.handleWindowActive)
	route("POST", "/api/launch/resolve", s.handleResolve)
	route("POST", "/api/launch/tmux-url", s.handleTmuxURL)
	return withRequestLogging(base, s.withMutationGuard(mux))
}

type openPageRequest struct {
	TabID       *int   `json:"tab_id"`
	WindowID    *int   `json:"window_id"`
	Active      bool   `json:"active"`
	URL         string `json:"url"`
	OpenerTabID *int   `json:"opener_tab_id,omitempty"`
}

type openPageResponse struct {
	PageID schema.PageID     `json:"page_id"`
	Launch schema.LaunchInfo `json:"launch"`
	Title  string            `json:"title"`
}

type terminalRequest struct {
	TerminalInfo *schema.TerminalInfo `json:"terminal_info"`
}

type titleRequest struct {
	Title string `json:"title"`
}

type tabActivatedRequest struct {
	TabID    *int `json:"tab_id"`
	WindowID *int `json:"window_id"`
}

type resolveRequest struct {
	URL    string               `json:"url"`
	Parent *schema.TerminalInfo `json:"parent,omitempty"`
	Tmux   *bool                `json:"tmux,omitempty"`
}

type tmuxURLRequest struct {
	Base string             `json:"base,omitempty"`
	Tmux *schema.TmuxLaunch `json:"tmux"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleListPages(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"pages": s.pages.Pages()})
}

func (s *Server) handleOpenPage(w http.ResponseWriter, r *http.Request) {
	log := logx.Ctx(r.Context()).With("remote", clientIP(r))
	var payload openPageRequest
	if err := decodeJSON(r.Body, &payload); err != nil {
		log.Warn("http open page decode failed", "err", err)
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if payload.TabID == nil || payload.WindowID == nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: tab_id and window_id are required", schema.ErrInvalidRequest))
		return
	}
	opener := schema.NoTab
	if payload.OpenerTabID != nil {
		opener = schema.TabID(*payload.OpenerTabID)
	}
	resp, err := s.pages.OpenPage(r.Context(), schema.OpenPageRequest{
		Tab: schema.TabInfo{
			TabID:    schema.TabID(*payload.TabID),
			WindowID: schema.WindowID(*payload.WindowID),
			Active:   payload.Active,
		},
		URL:         payload.URL,
		OpenerTabID: opener,
	})
	if err != nil {
		log.Warn("http open page failed", "tab", *payload.TabID, "err", err)
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, openPageResponse{PageID: resp.Page.ID, Launch: resp.Launch, Title: resp.Title})
}

func (s *Server) handleGetPage(w http.ResponseWriter, r *http.Request) {
	page, err := s.pages.Page(schema.PageID(r.PathValue("id")))
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, page.Snapshot())
}

func (s *Server) handleTerminal(w http.ResponseWriter, r *http.Request) {
	id := schema.PageID(r.PathValue("id"))
	var payload terminalRequest
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	err := s.pages.UpdateTerminal(r.Context(), schema.UpdateTerminalRequest{PageID: id, TerminalInfo: payload.TerminalInfo})
	if err != nil {
		logx.Ctx(r.Context()).Warn("http terminal update failed", "page", id, "err", err)
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleTitle(w http.ResponseWriter, r *http.Request) {
	id := schema.PageID(r.PathValue("id"))
	var payload titleRequest
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.pages.SetTitle(r.Context(), schema.SetTitleRequest{PageID: id, Title: payload.Title}); err != nil {
		logx.Ctx(r.Context()).Warn("http title update failed", "page", id, "err", err)
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleUnload(w http.ResponseWriter, r *http.Request) {
	id := schema.PageID(r.PathValue("id"))
	if err := s.pages.ClosePage(r.Context(), schema.ClosePageRequest{PageID: id}); err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleTabActivated(w http.ResponseWriter, r *http.Request) {
	var payload tabActivatedRequest
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if payload.TabID == nil || payload.WindowID == nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: tab_id and window_id are required", schema.ErrInvalidRequest))
		return
	}
	delivered, err := s.pages.TabActivated(schema.TabActivatedEvent{
		TabID:    schema.TabID(*payload.TabID),
		WindowID: schema.WindowID(*payload.WindowID),
	})
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"delivered": delivered})
}

func (s *Server) handleWindowActive(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("id")
	windowID, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: window id %q", schema.ErrInvalidRequest, raw))
		return
	}
	resp, err := s.pages.WindowActiveTerminal(schema.WindowActiveTerminalRequest{WindowID: schema.WindowID(windowID)})
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, resp.Record)
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var payload resolveRequest
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := s.pages.ResolveLaunch(r.Context(), schema.ResolveLaunchRequest{
		URL:             payload.URL,
		Parent:          payload.Parent,
		TmuxIntegration: payload.Tmux,
	})
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, resp.Launch)
}

func (s *Server) handleTmuxURL(w http.ResponseWriter, r *http.Request) {
	var payload tmuxURLRequest
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if payload.Tmux == nil || payload.Tmux.DriverChannelName == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: tmux.driverChannelName is required", schema.ErrInvalidRequest))
		return
	}
	target, err := core.ComposeTmuxURL(payload.Base, *payload.Tmux)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"url": target})
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, schema.ErrInvalidRequest),
		errors.Is(err, schema.ErrInvalidTmuxParam),
		errors.Is(err, schema.ErrInvalidLaunchURL):
		return http.StatusBadRequest
	case errors.Is(err, schema.ErrPageNotFound),
		errors.Is(err, schema.ErrNoRecord):
		return http.StatusNotFound
	case errors.Is(err, schema.ErrTabUnknown),
		errors.Is(err, schema.ErrWindowUnknown):
		return http.StatusConflict
	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(body io.Reader, target any) error {
	decoder := json.NewDecoder(io.LimitReader(body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("%w: %v", schema.ErrInvalidRequest, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	data, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}
