package logx

import (
	"context"

	"pkt.systems/pslog"
	"pkt.systems/tabterm/schema"
)

type contextKey int

const (
	pageKey contextKey = iota
	tabKey
)

// Ctx returns the logger bound to the provided context.
func Ctx(ctx context.Context) pslog.Logger {
	return pslog.Ctx(ctx)
}

// WithPage annotates the logger with the page id if present.
func WithPage(ctx context.Context, pageID schema.PageID) pslog.Logger {
	log := pslog.Ctx(ctx)
	if pageID != "" {
		if current, ok := ctx.Value(pageKey).(schema.PageID); ok && current == pageID {
			return log
		}
		log = log.With("page", pageID)
	}
	return log
}

// WithPageTab annotates the logger with page, tab and window identifiers.
func WithPageTab(ctx context.Context, pageID schema.PageID, tab schema.TabInfo) pslog.Logger {
	log := WithPage(ctx, pageID)
	if tab.TabID < 0 {
		return log
	}
	if current, ok := ctx.Value(tabKey).(schema.TabID); ok && current == tab.TabID {
		return log
	}
	return WithTab(log, tab.TabID, tab.WindowID)
}

// WithTab annotates the logger with tab and window identifiers.
func WithTab(log pslog.Logger, tabID schema.TabID, windowID schema.WindowID) pslog.Logger {
	if tabID >= 0 {
		log = log.With("tab", int(tabID))
	}
	if windowID >= 0 {
		log = log.With("window", int(windowID))
	}
	return log
}

// WithContainer annotates the logger with container metadata when available.
func WithContainer(log pslog.Logger, id schema.ContainerID) pslog.Logger {
	if id.VMName != "" {
		log = log.With("vm", id.VMName)
	}
	if id.ContainerName != "" {
		log = log.With("container", id.ContainerName)
	}
	return log
}

// WithTerminal annotates the logger with a terminal id when available.
func WithTerminal(log pslog.Logger, info *schema.TerminalInfo) pslog.Logger {
	if info.HasTerminal() {
		log = log.With("terminal", info.TerminalID)
	}
	return log
}

// ContextWithPage stores the page marker on the context for log de-duplication.
func ContextWithPage(ctx context.Context, pageID schema.PageID) context.Context {
	if ctx == nil || pageID == "" {
		return ctx
	}
	return context.WithValue(ctx, pageKey, pageID)
}

// ContextWithTab stores the tab marker on the context for log de-duplication.
func ContextWithTab(ctx context.Context, tabID schema.TabID) context.Context {
	if ctx == nil || tabID < 0 {
		return ctx
	}
	return context.WithValue(ctx, tabKey, tabID)
}

// ContextWithPageLogger attaches the logger and page/tab markers to the context.
func ContextWithPageLogger(ctx context.Context, log pslog.Logger, pageID schema.PageID, tabID schema.TabID) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	return ContextWithTab(ContextWithPage(ctx, pageID), tabID)
}
