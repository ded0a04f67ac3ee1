package authz

import (
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Mode is the global enforcement mode of the gate.
type Mode string

const (
	ModeDisabled Mode = "disabled"
	ModeShadow   Mode = "shadow"
	ModeEnforce  Mode = "enforce"
)

// ParseMode accepts only the three known modes, case-insensitively.
func ParseMode(s string) (Mode, bool) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeDisabled, ModeShadow, ModeEnforce:
		return m, true
	default:
		return "", false
	}
}

// modeOr resolves s, or returns fallback when s is empty or unknown.
func modeOr(s string, fallback Mode) Mode {
	if m, ok := ParseMode(s); ok {
		return m
	}
	return fallback
}

type FlagProvider interface {
	Mode() Mode
}

type staticFlagProvider struct {
	mode Mode
}

func (s staticFlagProvider) Mode() Mode {
	return s.mode
}

// FileFlagProvider re-reads the mode from a YAML file on every call. A missing file keeps the last
// mode read; an unreadable document, a missing key or an unknown value yields the fallback.
type FileFlagProvider struct {
	path     string
	fallback Mode

	mu       sync.Mutex
	lastMode Mode
}

// NewFileFlagProvider returns a provider backed by path. An unknown fallback becomes ModeEnforce.
func NewFileFlagProvider(path string, fallback Mode) FlagProvider {
	return &FileFlagProvider{
		path:     path,
		fallback: modeOr(string(fallback), ModeEnforce),
	}
}

func (p *FileFlagProvider) Mode() Mode {
	p.mu.Lock()
	defer p.mu.Unlock()

	data, err := os.ReadFile(p.path)
	if err != nil {
		if p.lastMode == "" {
			return p.fallback
		}
		return p.lastMode
	}

	var doc struct {
		Mode string `yaml:"mode"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		p.lastMode = p.fallback
		return p.lastMode
	}
	p.lastMode = modeOr(doc.Mode, p.fallback)
	return p.lastMode
}
