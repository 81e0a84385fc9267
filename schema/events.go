package schema

// TabActivatedEvent mirrors the browser's tab activation notification.
type TabActivatedEvent struct {
	TabID    TabID    `json:"tabId"`
	WindowID WindowID `json:"windowId"`
}

// PageEventType identifies a page-level notification.
type PageEventType string

const (
	// PageEventTerminalInfo carries new terminal info for the page.
	PageEventTerminalInfo PageEventType = "terminal_info"
	// PageEventTitle carries a document title mutation.
	PageEventTitle PageEventType = "title"
	// PageEventUnload signals page teardown.
	PageEventUnload PageEventType = "unload"
	// PageEventTabActivated carries a browser tab activation.
	PageEventTabActivated PageEventType = "tab_activated"
)

// PageEvent is a single notification processed on a page's event queue.
type PageEvent struct {
	Type         PageEventType      `json:"type"`
	TerminalInfo *TerminalInfo      `json:"terminalInfo,omitempty"`
	Title        string             `json:"title,omitempty"`
	TabActivated *TabActivatedEvent `json:"tabActivated,omitempty"`
}
