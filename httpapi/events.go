package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"pkt.systems/pslog"
	"pkt.systems/tabterm/internal/logx"
	"pkt.systems/tabterm/schema"
)

const (
	wsWriteTimeout = 5 * time.Second
	wsPongTimeout  = 60 * time.Second
	wsPingInterval = 25 * time.Second
)

// serverMessage is pushed from the daemon to a page.
type serverMessage struct {
	Type  string `json:"type"`
	Title string `json:"title,omitempty"`
	Event string `json:"event,omitempty"`
	Error string `json:"error,omitempty"`
}

type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) send(msg serverMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteJSON(msg)
}

func (c *wsConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout))
}

func (s *Server) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			return s.cfg.originAllowed(r.Header.Get("Origin"))
		},
	}
}

// handleEvents carries a page's event stream. Page messages are queued on
// the page in arrival order; titles set by the daemon are pushed back. A
// connection that drops without an unload message unloads the page.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := schema.PageID(r.PathValue("id"))
	page, err := s.pages.Page(id)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	upgrader := s.upgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client.
		logx.Ctx(r.Context()).Warn("http events upgrade failed", "page", id, "err", err)
		return
	}
	defer func() {
		_ = conn.Close()
	}()
	snapshot := page.Snapshot()
	log := logx.WithPageTab(r.Context(), id, snapshot.Tab)
	ctx, cancel := context.WithCancel(logx.ContextWithPageLogger(r.Context(), log, id, snapshot.Tab.TabID))
	defer cancel()
	ws := &wsConn{conn: conn}
	log.Debug("http events connected")

	titles, stopTitles := page.WatchTitle()
	defer stopTitles()
	go s.pushTitles(ctx, ws, titles, page.Done(), log)

	conn.SetReadLimit(maxBodyBytes)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	})

	unloaded := false
	for {
		var event schema.PageEvent
		if err := conn.ReadJSON(&event); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("http events read ended", "err", err)
			}
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
		if err := s.dispatch(ctx, id, event); err != nil {
			log.Warn("http events dispatch failed", "event", string(event.Type), "err", err)
			if sendErr := ws.send(serverMessage{Type: "error", Event: string(event.Type), Error: err.Error()}); sendErr != nil {
				break
			}
			if errors.Is(err, schema.ErrPageNotFound) {
				unloaded = true
				break
			}
			continue
		}
		if event.Type == schema.PageEventUnload {
			unloaded = true
			_ = ws.send(serverMessage{Type: "closed"})
			break
		}
	}
	if !unloaded {
		unloadCtx, stop := context.WithTimeout(context.WithoutCancel(ctx), wsWriteTimeout)
		err := s.pages.ClosePage(unloadCtx, schema.ClosePageRequest{PageID: id})
		stop()
		if err != nil && !errors.Is(err, schema.ErrPageNotFound) {
			log.Warn("http events implicit unload failed", "err", err)
		} else {
			log.Debug("http events implicit unload")
		}
	}
	log.Debug("http events disconnected")
}

func (s *Server) dispatch(ctx context.Context, id schema.PageID, event schema.PageEvent) error {
	switch event.Type {
	case schema.PageEventTerminalInfo:
		return s.pages.UpdateTerminal(ctx, schema.UpdateTerminalRequest{PageID: id, TerminalInfo: event.TerminalInfo})
	case schema.PageEventTitle:
		return s.pages.SetTitle(ctx, schema.SetTitleRequest{PageID: id, Title: event.Title})
	case schema.PageEventUnload:
		return s.pages.ClosePage(ctx, schema.ClosePageRequest{PageID: id})
	default:
		return fmt.Errorf("%w: unsupported page event %q", schema.ErrInvalidRequest, event.Type)
	}
}

func (s *Server) pushTitles(ctx context.Context, ws *wsConn, titles <-chan string, pageDone <-chan struct{}, log pslog.Logger) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-pageDone:
			return
		case title := <-titles:
			if err := ws.send(serverMessage{Type: string(schema.PageEventTitle), Title: title}); err != nil {
				log.Debug("http events title push failed", "err", err)
				return
			}
		case <-ticker.C:
			if err := ws.ping(); err != nil {
				return
			}
		}
	}
}
