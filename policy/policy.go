// Package policy filters system calls by name before the trap dispatcher
// performs them. A nil *Policy admits every call.
package policy

import (
	"context"
	"strings"
)

// Modes recognised by the dispatcher.
const (
	ModeAsk  = "ask"  // consult Ask for every call
	ModeAuto = "auto" // admit calls that pass the lists (default)
	ModeDeny = "deny" // reject every call
)

// AskFunc decides a single call when Mode==ask. call is the lower case call
// name (prints, exec, ...) and pid the calling process.
type AskFunc func(ctx context.Context, call string, pid int, p *Policy) bool

// Policy is the runtime form of a syscall filter.
//
//   - Mode selects ask / auto / deny.
//   - AllowList and BlockList match call names regardless of Mode.
//   - Ask is only used when Mode==ask; without it the call is admitted.
type Policy struct {
	Mode      string
	AllowList []string
	BlockList []string
	Ask       AskFunc
}

// Config is the serialisable part of a Policy.
type Config struct {
	Mode      string   `json:"mode,omitempty" yaml:"mode,omitempty"`
	AllowList []string `json:"allow,omitempty" yaml:"allow,omitempty"`
	BlockList []string `json:"block,omitempty" yaml:"block,omitempty"`
}

// ToConfig converts a runtime Policy into a persistable Config.
func ToConfig(p *Policy) *Config {
	if p == nil {
		return nil
	}
	return &Config{
		Mode:      p.Mode,
		AllowList: append([]string(nil), p.AllowList...),
		BlockList: append([]string(nil), p.BlockList...),
	}
}

// FromConfig builds a Policy without AskFunc. An empty config yields nil.
func FromConfig(c *Config) *Policy {
	if c == nil || (c.Mode == "" && len(c.AllowList) == 0 && len(c.BlockList) == 0) {
		return nil
	}
	return &Policy{
		Mode:      c.Mode,
		AllowList: append([]string(nil), c.AllowList...),
		BlockList: append([]string(nil), c.BlockList...),
	}
}

// IsListed evaluates AllowList and BlockList; names compare case-insensitively
// and BlockList wins.
func (p *Policy) IsListed(call string) bool {
	if p == nil {
		return true
	}
	normalized := strings.ToLower(call)
	for _, b := range p.BlockList {
		if normalized == strings.ToLower(b) {
			return false
		}
	}
	if len(p.AllowList) == 0 {
		return true
	}
	for _, a := range p.AllowList {
		if normalized == strings.ToLower(a) {
			return true
		}
	}
	return false
}

// Admit reports whether pid may perform call.
func (p *Policy) Admit(ctx context.Context, call string, pid int) bool {
	if p == nil {
		return true
	}
	if !p.IsListed(call) {
		return false
	}
	switch strings.ToLower(p.Mode) {
	case ModeDeny:
		return false
	case ModeAsk:
		if p.Ask == nil {
			return true
		}
		return p.Ask(ctx, strings.ToLower(call), pid, p)
	}
	return true
}

type ctxKeyT struct{}

var ctxKey ctxKeyT

// WithPolicy embeds policy in ctx.
func WithPolicy(ctx context.Context, p *Policy) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxKey, p)
}

// FromContext returns the policy embedded in ctx, or nil.
func FromContext(ctx context.Context) *Policy {
	if ctx == nil {
		return nil
	}
	if v, ok := ctx.Value(ctxKey).(*Policy); ok {
		return v
	}
	return nil
}
