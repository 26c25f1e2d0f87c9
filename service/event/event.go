// Package event publishes kernel lifecycle events to a messaging queue.
package event

import "time"

// Type identifies a lifecycle transition.
type Type string

const (
	TypeSpawned    = Type("spawned")
	TypeLoaded     = Type("loaded")
	TypeLoadFailed = Type("load_failed")
	TypeExited     = Type("exited")
	TypeZombie     = Type("zombie")
	TypeReaped     = Type("reaped")
	TypeHalted     = Type("halted")
)

// Context describes the process an event is about.
type Context struct {
	PID      int    `json:"pid" yaml:"pid"`
	ParentID int    `json:"parentID" yaml:"parentID"`
	Name     string `json:"name,omitempty" yaml:"name,omitempty"`
	Tick     int64  `json:"tick" yaml:"tick"`
}

type Event struct {
	ID        string                 `json:"id"`
	Session   string                 `json:"session,omitempty"`
	Type      Type                   `json:"type"`
	Context   *Context               `json:"context"`
	CreatedAt time.Time              `json:"createdAt"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

func NewEvent(eventType Type, context *Context) *Event {
	return &Event{
		Type:     eventType,
		Context:  context,
		Metadata: make(map[string]interface{}),
	}
}

// WithMetadata sets key on the event and returns it.
func (e *Event) WithMetadata(key string, value interface{}) *Event {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}
