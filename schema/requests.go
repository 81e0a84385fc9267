package schema

// Page lifecycle.

// OpenPageRequest registers a terminal page loaded in a tab.
type OpenPageRequest struct {
	Tab         TabInfo
	URL         string
	OpenerTabID TabID
}

// OpenPageResponse reports the launch decided for the page.
type OpenPageResponse struct {
	Page   PageSnapshot
	Launch LaunchInfo
	Title  string
}

// ClosePageRequest tears a page down.
type ClosePageRequest struct {
	PageID PageID
}

// UpdateTerminalRequest reports new terminal info for a page.
type UpdateTerminalRequest struct {
	PageID       PageID
	TerminalInfo *TerminalInfo
}

// SetTitleRequest reports a document title mutation.
type SetTitleRequest struct {
	PageID PageID
	Title  string
}

// Window queries.

// WindowActiveTerminalRequest asks for a window's active terminal.
type WindowActiveTerminalRequest struct {
	WindowID WindowID
}

// WindowActiveTerminalResponse carries the record when present.
type WindowActiveTerminalResponse struct {
	Record *ActiveTerminalRecord
}

// Launch resolution.

// ResolveLaunchRequest computes launch info without registering a page.
type ResolveLaunchRequest struct {
	URL             string
	Parent          *TerminalInfo
	TmuxIntegration *bool
}

// ResolveLaunchResponse reports the resolved launch.
type ResolveLaunchResponse struct {
	Launch LaunchInfo
}
