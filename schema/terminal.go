package schema

import "encoding/json"

// TerminalInfo describes a running terminal session. Only the fields the
// tracker and resolver read are typed; everything else the terminal reports
// is carried through untouched in Extra.
type TerminalInfo struct {
	TerminalID        TerminalID
	TmuxDriverChannel string
	ContainerID       *ContainerID
	Extra             map[string]json.RawMessage
}

var terminalInfoKnownFields = map[string]struct{}{
	"terminalId":        {},
	"tmuxDriverChannel": {},
	"containerId":       {},
}

// HasTerminal reports whether the info names a terminal.
func (t *TerminalInfo) HasTerminal() bool {
	return t != nil && t.TerminalID != ""
}

// Container returns the container id, or the zero value when unset.
func (t *TerminalInfo) Container() ContainerID {
	if t == nil || t.ContainerID == nil {
		return ContainerID{}
	}
	return *t.ContainerID
}

// Clone returns a deep copy.
func (t *TerminalInfo) Clone() *TerminalInfo {
	if t == nil {
		return nil
	}
	out := &TerminalInfo{
		TerminalID:        t.TerminalID,
		TmuxDriverChannel: t.TmuxDriverChannel,
	}
	if t.ContainerID != nil {
		id := *t.ContainerID
		out.ContainerID = &id
	}
	if len(t.Extra) > 0 {
		out.Extra = make(map[string]json.RawMessage, len(t.Extra))
		for key, value := range t.Extra {
			out.Extra[key] = append(json.RawMessage(nil), value...)
		}
	}
	return out
}

// MarshalJSON writes the typed fields plus any extra fields.
func (t TerminalInfo) MarshalJSON() ([]byte, error) {
	fields := make(map[string]any, len(t.Extra)+3)
	for key, value := range t.Extra {
		if _, known := terminalInfoKnownFields[key]; known {
			continue
		}
		fields[key] = value
	}
	fields["terminalId"] = t.TerminalID
	if t.TmuxDriverChannel != "" {
		fields["tmuxDriverChannel"] = t.TmuxDriverChannel
	}
	if t.ContainerID != nil {
		fields["containerId"] = t.ContainerID
	}
	// encoding/json sorts map keys, so output is stable.
	return json.Marshal(fields)
}

// UnmarshalJSON reads the typed fields and keeps the rest in Extra.
func (t *TerminalInfo) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var out TerminalInfo
	if value, ok := raw["terminalId"]; ok {
		if err := json.Unmarshal(value, &out.TerminalID); err != nil {
			return err
		}
	}
	if value, ok := raw["tmuxDriverChannel"]; ok {
		if err := json.Unmarshal(value, &out.TmuxDriverChannel); err != nil {
			return err
		}
	}
	if value, ok := raw["containerId"]; ok && string(value) != "null" {
		var id ContainerID
		if err := json.Unmarshal(value, &id); err != nil {
			return err
		}
		out.ContainerID = &id
	}
	for key, value := range raw {
		if _, known := terminalInfoKnownFields[key]; known {
			continue
		}
		if out.Extra == nil {
			out.Extra = make(map[string]json.RawMessage)
		}
		out.Extra[key] = value
	}
	*t = out
	return nil
}
