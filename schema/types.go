package schema

// TabID identifies a browser tab.
type TabID int

// WindowID identifies a browser window.
type WindowID int

// TerminalID identifies a running terminal session.
type TerminalID string

// PageID identifies an extension page registered with the daemon.
type PageID string

// NoTab marks an unknown or absent tab.
const NoTab TabID = -1

// NoWindow marks an unknown or absent window.
const NoWindow WindowID = -1

// TabInfo is what the browser reports about the tab hosting a page.
type TabInfo struct {
	TabID    TabID    `json:"tabId"`
	WindowID WindowID `json:"windowId"`
	// Active reports whether the tab is the focused tab of its window.
	Active bool `json:"active"`
}

// Valid reports whether both identifiers were discovered.
func (t TabInfo) Valid() bool {
	return t.TabID >= 0 && t.WindowID >= 0
}

// ParentTerminal describes the terminal tab that spawned a new one.
type ParentTerminal struct {
	TabID TabID
	Info  TerminalInfo
	// Title is the parent's document title at the time of lookup.
	Title string
}
