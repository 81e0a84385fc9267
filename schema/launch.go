package schema

// LaunchKind names the populated LaunchInfo variant.
type LaunchKind string

const (
	LaunchCrosh LaunchKind = "crosh"
	LaunchSSH   LaunchKind = "ssh"
	LaunchTmux  LaunchKind = "tmux"
	LaunchVsh   LaunchKind = "vsh"
)

// CroshLaunch launches the crosh shell.
type CroshLaunch struct{}

// SSHLaunch launches the ssh connection dialog.
type SSHLaunch struct{}

// TmuxLaunch attaches to a tmux session through named channels.
type TmuxLaunch struct {
	WindowChannelName string `json:"windowChannelName,omitempty"`
	DriverChannelName string `json:"driverChannelName"`
}

// VshLaunch connects to a VM/container shell.
type VshLaunch struct {
	Args        []string    `json:"args"`
	ContainerID ContainerID `json:"containerId"`
	HasCwd      bool        `json:"hasCwd"`
}

// LaunchInfo is a tagged union; exactly one field is set.
type LaunchInfo struct {
	Crosh *CroshLaunch `json:"crosh,omitempty"`
	SSH   *SSHLaunch   `json:"ssh,omitempty"`
	Tmux  *TmuxLaunch  `json:"tmux,omitempty"`
	Vsh   *VshLaunch   `json:"vsh,omitempty"`
}

// Kind returns the populated variant, or "" for the zero value.
func (l LaunchInfo) Kind() LaunchKind {
	switch {
	case l.Crosh != nil:
		return LaunchCrosh
	case l.SSH != nil:
		return LaunchSSH
	case l.Tmux != nil:
		return LaunchTmux
	case l.Vsh != nil:
		return LaunchVsh
	default:
		return ""
	}
}

// HasCwd reports whether a vsh launch carries a working directory.
func (l LaunchInfo) HasCwd() bool {
	return l.Vsh != nil && l.Vsh.HasCwd
}

// ContainerID returns the vsh container, or the zero value for other kinds.
func (l LaunchInfo) ContainerID() ContainerID {
	if l.Vsh == nil {
		return ContainerID{}
	}
	return l.Vsh.ContainerID
}
