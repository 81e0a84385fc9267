package schema

import "errors"

var (
	// ErrInvalidRequest indicates a malformed request payload.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrTabUnknown indicates the owning tab could not be discovered.
	ErrTabUnknown = errors.New("tab could not be determined")
	// ErrWindowUnknown indicates the owning window could not be discovered.
	ErrWindowUnknown = errors.New("window could not be determined")
	// ErrInvalidTmuxParam indicates a launch URL carried malformed tmux JSON.
	ErrInvalidTmuxParam = errors.New("invalid tmux launch parameter")
	// ErrInvalidLaunchURL indicates a launch URL could not be parsed.
	ErrInvalidLaunchURL = errors.New("invalid launch url")
	// ErrPageNotFound indicates a page id is not registered.
	ErrPageNotFound = errors.New("page not found")
	// ErrNoRecord indicates a window has no active terminal record.
	ErrNoRecord = errors.New("no active terminal")
)
