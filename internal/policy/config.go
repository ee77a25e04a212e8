package policy

import "strings"

// Mode defines the policy engine operating mode
type Mode string

const (
	// ModeOff disables policy evaluation entirely
	ModeOff Mode = "off"
	// ModeDryRun evaluates policies but doesn't enforce them (log only)
	ModeDryRun Mode = "dry-run"
	// ModeEnforce evaluates and enforces policies
	ModeEnforce Mode = "enforce"
)

// Config holds policy engine configuration
type Config struct {
	Enabled bool
	Mode    Mode
	// Path is a directory of .rego files. Empty means the built-in tool policy.
	Path string
	// FailClosed denies when policies cannot be loaded or evaluated.
	FailClosed  bool
	Environment string
}

// ParseMode normalizes a configured mode, falling back to off.
func ParseMode(s string) Mode {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeOff, ModeDryRun, ModeEnforce:
		return m
	default:
		return ModeOff
	}
}
