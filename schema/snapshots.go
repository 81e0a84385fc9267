package schema

// ActiveTerminalRecord is persisted per window and names the tab whose
// terminal is in focus there.
type ActiveTerminalRecord struct {
	TabID        TabID        `json:"tabId"`
	Title        string       `json:"title"`
	TerminalInfo TerminalInfo `json:"terminalInfo"`
}

// TrackerState describes where a tab sits in the tracker state machine.
type TrackerState string

const (
	// TrackerInactive means the tab is not focused.
	TrackerInactive TrackerState = "inactive"
	// TrackerActiveUnset means the tab is focused without terminal info.
	TrackerActiveUnset TrackerState = "active"
	// TrackerActivePersisted means the tab is focused and owns the record.
	TrackerActivePersisted TrackerState = "persisted"
)

// TrackerSnapshot is a read-only view of a tracker for transports.
type TrackerSnapshot struct {
	TabID          TabID         `json:"tabId"`
	WindowID       WindowID      `json:"windowId"`
	Active         bool          `json:"active"`
	State          TrackerState  `json:"state"`
	TerminalInfo   *TerminalInfo `json:"terminalInfo,omitempty"`
	ParentTerminal *TerminalInfo `json:"parentTerminal,omitempty"`
}

// PageSnapshot is a read-only view of a registered page.
type PageSnapshot struct {
	ID          PageID     `json:"id"`
	Tab         TabInfo    `json:"tab"`
	URL         string     `json:"url"`
	OpenerTabID TabID      `json:"openerTabId"`
	Title       string     `json:"title"`
	Launch      LaunchInfo `json:"launch"`
}
