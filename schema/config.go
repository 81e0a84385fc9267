package schema

import "strings"

const (
	// DefaultCroshHost is the launch URL host that selects crosh.
	DefaultCroshHost = "crosh"
	// DefaultSSHPath is the launch URL path that selects the ssh dialog.
	DefaultSSHPath = "/html/terminal_ssh.html"
	// TerminalPath is the page path terminal tabs are opened on.
	TerminalPath = "/html/terminal.html"
)

// ServiceConfig defines launch routing and feature defaults.
type ServiceConfig struct {
	CroshHost       string
	SSHPath         string
	TmuxIntegration bool
}

// NormalizeServiceConfig applies defaults.
func NormalizeServiceConfig(cfg ServiceConfig) ServiceConfig {
	cfg.CroshHost = strings.TrimSpace(cfg.CroshHost)
	if cfg.CroshHost == "" {
		cfg.CroshHost = DefaultCroshHost
	}
	cfg.SSHPath = strings.TrimSpace(cfg.SSHPath)
	if cfg.SSHPath == "" {
		cfg.SSHPath = DefaultSSHPath
	}
	if !strings.HasPrefix(cfg.SSHPath, "/") {
		cfg.SSHPath = "/" + cfg.SSHPath
	}
	return cfg
}
