package schema

import "fmt"

// ValidateTabInfo ensures the browser reported both tab and window.
func ValidateTabInfo(info TabInfo) error {
	if info.TabID < 0 {
		return fmt.Errorf("%w: tab id %d", ErrTabUnknown, info.TabID)
	}
	if info.WindowID < 0 {
		return fmt.Errorf("%w: window id %d", ErrWindowUnknown, info.WindowID)
	}
	return nil
}

// ValidatePageID ensures a page id is non-empty and printable ASCII.
func ValidatePageID(id PageID) error {
	raw := string(id)
	if raw == "" {
		return ErrInvalidRequest
	}
	for _, r := range raw {
		if r <= ' ' || r > '~' {
			return ErrInvalidRequest
		}
	}
	return nil
}
