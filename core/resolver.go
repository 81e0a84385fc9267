package core

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"pkt.systems/tabterm/schema"
)

const (
	tmuxParam           = "tmux"
	argsParam           = "args[]"
	vmNameFlag          = "--vm_name="
	targetContainerFlag = "--target_container="
	cwdFlag             = "--cwd="
	cwdTerminalIDPrefix = "terminal_id:"
)

// Resolver decides how a new terminal tab launches.
type Resolver struct {
	croshHost string
	sshPath   string
}

// NewResolver constructs a resolver for the configured crosh host and ssh path.
func NewResolver(cfg schema.ServiceConfig) Resolver {
	cfg = schema.NormalizeServiceConfig(cfg)
	return Resolver{croshHost: cfg.CroshHost, sshPath: cfg.SSHPath}
}

// ResolveLaunch resolves with the default crosh host and ssh path.
func ResolveLaunch(rawURL string, parent *schema.TerminalInfo, tmuxEnabled bool) (schema.LaunchInfo, error) {
	return NewResolver(schema.ServiceConfig{}).Resolve(rawURL, parent, tmuxEnabled)
}

// Resolve computes the launch for rawURL. It has no side effects; the same
// inputs always produce the same LaunchInfo.
func (r Resolver) Resolve(rawURL string, parent *schema.TerminalInfo, tmuxEnabled bool) (schema.LaunchInfo, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return schema.LaunchInfo{}, fmt.Errorf("%w: %v", schema.ErrInvalidLaunchURL, err)
	}
	if u.Hostname() == r.croshHost {
		return schema.LaunchInfo{Crosh: &schema.CroshLaunch{}}, nil
	}
	if u.Path == r.sshPath {
		return schema.LaunchInfo{SSH: &schema.SSHLaunch{}}, nil
	}
	query := u.Query()
	if tmuxEnabled {
		if query.Has(tmuxParam) {
			var tmux schema.TmuxLaunch
			if err := json.Unmarshal([]byte(query.Get(tmuxParam)), &tmux); err != nil {
				return schema.LaunchInfo{}, fmt.Errorf("%w: %v", schema.ErrInvalidTmuxParam, err)
			}
			return schema.LaunchInfo{Tmux: &tmux}, nil
		}
		if len(query) == 0 && parent != nil && parent.TmuxDriverChannel != "" {
			return schema.LaunchInfo{Tmux: &schema.TmuxLaunch{DriverChannelName: parent.TmuxDriverChannel}}, nil
		}
	}
	return schema.LaunchInfo{Vsh: resolveVsh(query[argsParam], parent)}, nil
}

func resolveVsh(rawArgs []string, parent *schema.TerminalInfo) *schema.VshLaunch {
	args := make([]string, 0, len(rawArgs)+3)
	var container schema.ContainerID
	hasCwd := false
	for _, arg := range rawArgs {
		switch {
		case strings.HasPrefix(arg, vmNameFlag):
			if value := strings.TrimPrefix(arg, vmNameFlag); value != "" {
				container.VMName = value
			}
		case strings.HasPrefix(arg, targetContainerFlag):
			if value := strings.TrimPrefix(arg, targetContainerFlag); value != "" {
				container.ContainerName = value
			}
		default:
			if strings.HasPrefix(arg, cwdFlag) {
				hasCwd = true
			}
			args = append(args, arg)
		}
	}
	if container.IsZero() {
		if parent != nil {
			container = parent.Container().Canonical()
		} else {
			container = schema.DefaultContainerID()
		}
	}
	if container.VMName != "" {
		args = append(args, vmNameFlag+container.VMName)
	}
	if container.ContainerName != "" {
		args = append(args, targetContainerFlag+container.ContainerName)
	}
	if !hasCwd && parent != nil && container.Equal(parent.Container()) {
		args = append(args, cwdFlag+cwdTerminalIDPrefix+string(parent.TerminalID))
		hasCwd = true
	}
	return &schema.VshLaunch{Args: args, ContainerID: container, HasCwd: hasCwd}
}

// ComposeTmuxURL builds the terminal page URL that attaches to a tmux
// session. base may be empty for a path-only URL or an origin such as
// "chrome-untrusted://terminal".
func ComposeTmuxURL(base string, tmux schema.TmuxLaunch) (string, error) {
	data, err := json.Marshal(tmux)
	if err != nil {
		return "", err
	}
	query := url.Values{}
	query.Set(tmuxParam, string(data))
	target := strings.TrimRight(strings.TrimSpace(base), "/") + schema.TerminalPath
	return target + "?" + query.Encode(), nil
}
