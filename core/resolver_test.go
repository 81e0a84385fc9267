package core

import (
	"errors"
	"net/url"
	"reflect"
	"strings"
	"testing"

	"pkt.systems/tabterm/schema"
)

func launchURL(args ...string) string {
	query := url.Values{}
	for _, arg := range args {
		query.Add(argsParam, arg)
	}
	if len(query) == 0 {
		return "chrome-untrusted://terminal/html/terminal.html"
	}
	return "chrome-untrusted://terminal/html/terminal.html?" + query.Encode()
}

func workParent() *schema.TerminalInfo {
	return &schema.TerminalInfo{
		TerminalID:  "parent-1",
		ContainerID: &schema.ContainerID{VMName: "termina", ContainerName: "work"},
	}
}

func TestResolveCroshHost(t *testing.T) {
	launch, err := ResolveLaunch("chrome-untrusted://crosh/", workParent(), true)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if launch.Kind() != schema.LaunchCrosh {
		t.Fatalf("expected crosh, got %q", launch.Kind())
	}
}

func TestResolveSSHPath(t *testing.T) {
	launch, err := ResolveLaunch("chrome-untrusted://terminal/html/terminal_ssh.html?tmux=%7B%7D", nil, true)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if launch.Kind() != schema.LaunchSSH {
		t.Fatalf("expected ssh, got %q", launch.Kind())
	}
}

func TestResolveCustomHostAndPath(t *testing.T) {
	resolver := NewResolver(schema.ServiceConfig{CroshHost: "shell", SSHPath: "connect.html"})
	launch, err := resolver.Resolve("chrome-untrusted://shell/", nil, false)
	if err != nil || launch.Kind() != schema.LaunchCrosh {
		t.Fatalf("expected crosh for custom host, got %q err=%v", launch.Kind(), err)
	}
	launch, err = resolver.Resolve("chrome-untrusted://terminal/connect.html", nil, false)
	if err != nil || launch.Kind() != schema.LaunchSSH {
		t.Fatalf("expected ssh for custom path, got %q err=%v", launch.Kind(), err)
	}
}

func TestResolveTmuxParam(t *testing.T) {
	raw, err := ComposeTmuxURL("chrome-untrusted://terminal", schema.TmuxLaunch{WindowChannelName: "win", DriverChannelName: "drv"})
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	launch, err := ResolveLaunch(raw, nil, true)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if launch.Tmux == nil || launch.Tmux.WindowChannelName != "win" || launch.Tmux.DriverChannelName != "drv" {
		t.Fatalf("unexpected tmux launch: %+v", launch)
	}
}

func TestResolveTmuxParamIgnoredWhenDisabled(t *testing.T) {
	raw, err := ComposeTmuxURL("", schema.TmuxLaunch{DriverChannelName: "drv"})
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	launch, err := ResolveLaunch(raw, nil, false)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if launch.Kind() != schema.LaunchVsh {
		t.Fatalf("expected vsh with tmux disabled, got %q", launch.Kind())
	}
}

func TestResolveMalformedTmuxParam(t *testing.T) {
	_, err := ResolveLaunch("chrome-untrusted://terminal/html/terminal.html?tmux=%7Bnot-json", nil, true)
	if !errors.Is(err, schema.ErrInvalidTmuxParam) {
		t.Fatalf("expected ErrInvalidTmuxParam, got %v", err)
	}
}

func TestResolveInheritsParentDriverChannel(t *testing.T) {
	parent := workParent()
	parent.TmuxDriverChannel = "parent-driver"
	launch, err := ResolveLaunch(launchURL(), parent, true)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if launch.Tmux == nil || launch.Tmux.DriverChannelName != "parent-driver" || launch.Tmux.WindowChannelName != "" {
		t.Fatalf("expected inherited driver channel, got %+v", launch)
	}

	launch, err = ResolveLaunch(launchURL("--foo"), parent, true)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if launch.Kind() != schema.LaunchVsh {
		t.Fatalf("expected vsh when the URL has a query, got %q", launch.Kind())
	}
}

func TestResolveDefaultContainerWithoutParent(t *testing.T) {
	launch, err := ResolveLaunch(launchURL("--foo"), nil, false)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := []string{"--foo", "--vm_name=termina", "--target_container=penguin"}
	if !reflect.DeepEqual(launch.Vsh.Args, want) {
		t.Fatalf("args mismatch: got %v want %v", launch.Vsh.Args, want)
	}
	if launch.Vsh.ContainerID != schema.DefaultContainerID() || launch.Vsh.HasCwd {
		t.Fatalf("unexpected vsh launch: %+v", launch.Vsh)
	}
}

func TestResolveInheritsParentContainerAndCwd(t *testing.T) {
	launch, err := ResolveLaunch(launchURL(), workParent(), false)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	vsh := launch.Vsh
	if vsh == nil {
		t.Fatalf("expected vsh launch, got %+v", launch)
	}
	if vsh.ContainerID != (schema.ContainerID{VMName: "termina", ContainerName: "work"}) {
		t.Fatalf("expected inherited container, got %+v", vsh.ContainerID)
	}
	want := []string{"--vm_name=termina", "--target_container=work", "--cwd=terminal_id:parent-1"}
	if !reflect.DeepEqual(vsh.Args, want) {
		t.Fatalf("args mismatch: got %v want %v", vsh.Args, want)
	}
	if !vsh.HasCwd {
		t.Fatalf("expected hasCwd")
	}
}

func TestResolveDifferentContainerSkipsCwd(t *testing.T) {
	launch, err := ResolveLaunch(launchURL("--target_container=other"), workParent(), false)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	vsh := launch.Vsh
	if vsh.ContainerID != (schema.ContainerID{ContainerName: "other"}) {
		t.Fatalf("expected container with only a name, got %+v", vsh.ContainerID)
	}
	if vsh.HasCwd {
		t.Fatalf("expected no cwd for a different container")
	}
	for _, arg := range vsh.Args {
		if strings.HasPrefix(arg, cwdFlag) {
			t.Fatalf("unexpected cwd arg %q", arg)
		}
	}
	if !reflect.DeepEqual(vsh.Args, []string{"--target_container=other"}) {
		t.Fatalf("unexpected args %v", vsh.Args)
	}
}

func TestResolveParentWithoutContainerComparesRawID(t *testing.T) {
	parent := &schema.TerminalInfo{TerminalID: "p"}
	launch, err := ResolveLaunch(launchURL(), parent, false)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if launch.Vsh.ContainerID != schema.DefaultContainerID() {
		t.Fatalf("expected canonical default container, got %+v", launch.Vsh.ContainerID)
	}
	if launch.Vsh.HasCwd {
		t.Fatalf("canonical container differs from the raw parent id; expected no cwd")
	}
}

func TestResolveExplicitCwdWins(t *testing.T) {
	launch, err := ResolveLaunch(launchURL("--cwd=/tmp"), workParent(), false)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := []string{"--cwd=/tmp", "--vm_name=termina", "--target_container=work"}
	if !reflect.DeepEqual(launch.Vsh.Args, want) {
		t.Fatalf("args mismatch: got %v want %v", launch.Vsh.Args, want)
	}
	if !launch.Vsh.HasCwd {
		t.Fatalf("expected hasCwd for explicit cwd")
	}
}

func TestResolveIgnoresEmptyContainerFlags(t *testing.T) {
	launch, err := ResolveLaunch(launchURL("--vm_name=", "--target_container="), nil, false)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if launch.Vsh.ContainerID != schema.DefaultContainerID() {
		t.Fatalf("expected default container, got %+v", launch.Vsh.ContainerID)
	}
	want := []string{"--vm_name=termina", "--target_container=penguin"}
	if !reflect.DeepEqual(launch.Vsh.Args, want) {
		t.Fatalf("args mismatch: got %v want %v", launch.Vsh.Args, want)
	}
}

func TestResolveIsDeterministic(t *testing.T) {
	raw := launchURL("--target_container=work", "--foo")
	first, err := ResolveLaunch(raw, workParent(), true)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	for i := 0; i < 5; i++ {
		next, err := ResolveLaunch(raw, workParent(), true)
		if err != nil {
			t.Fatalf("resolve %d: %v", i, err)
		}
		if !reflect.DeepEqual(first, next) {
			t.Fatalf("resolve %d differs: %+v vs %+v", i, first, next)
		}
	}
}

func TestResolveInvalidURL(t *testing.T) {
	if _, err := ResolveLaunch("://bad url", nil, false); !errors.Is(err, schema.ErrInvalidLaunchURL) {
		t.Fatalf("expected ErrInvalidLaunchURL, got %v", err)
	}
}

func TestComposeTmuxURL(t *testing.T) {
	raw, err := ComposeTmuxURL("chrome-untrusted://terminal/", schema.TmuxLaunch{DriverChannelName: "d"})
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if u.Path != schema.TerminalPath {
		t.Fatalf("expected terminal path, got %q", u.Path)
	}
	if got := u.Query().Get(tmuxParam); got != `{"driverChannelName":"d"}` {
		t.Fatalf("unexpected tmux param %q", got)
	}
	path, err := ComposeTmuxURL("", schema.TmuxLaunch{DriverChannelName: "d"})
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if !strings.HasPrefix(path, "/html/terminal.html?tmux=") {
		t.Fatalf("unexpected path-only URL %q", path)
	}
}
