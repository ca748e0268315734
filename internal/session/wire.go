package session

import "github.com/bastiangx/pickserve/pkg/autocomplete"

// Request operations.
const (
	OpBind    = "bind"
	OpInput   = "input"
	OpKey     = "key"
	OpHover   = "hover"
	OpClick   = "click"
	OpOutside = "outside"
	OpUpdate  = "update"
	OpDestroy = "destroy"
	OpLists   = "lists"
	OpStats   = "stats"
)

// Frame types.
const (
	FrameAck       = "ack"
	FrameShow      = "show"
	FrameHide      = "hide"
	FrameHighlight = "highlight"
	FrameValue     = "value"
	FrameChange    = "change"
	FrameSelect    = "select"
	FrameFocus     = "focus"
	FrameKey       = "key"
	FrameRemove    = "remove"
	FrameLists     = "lists"
	FrameStats     = "stats"
	FrameError     = "error"
)

// Request is one client message.
type Request struct {
	ID    string `msgpack:"id,omitempty" json:"id,omitempty"`
	Op    string `msgpack:"op" json:"op"`
	Field string `msgpack:"f,omitempty" json:"field,omitempty"`

	// bind and update
	List    string                   `msgpack:"list,omitempty" json:"list,omitempty"`
	Items   []autocomplete.Candidate `msgpack:"items,omitempty" json:"items,omitempty"`
	Options *BindOptions             `msgpack:"opts,omitempty" json:"options,omitempty"`

	// input
	Value string `msgpack:"v,omitempty" json:"value,omitempty"`
	// key
	Key string `msgpack:"k,omitempty" json:"key,omitempty"`
	// hover and click
	Index int `msgpack:"i,omitempty" json:"index,omitempty"`
}

// BindOptions overrides the session defaults for one binding. Unset fields
// keep the defaults.
type BindOptions struct {
	MinQueryLength *int   `msgpack:"min,omitempty" json:"minQueryLength,omitempty"`
	MaxResults     *int   `msgpack:"max,omitempty" json:"maxResults,omitempty"`
	MatchMode      string `msgpack:"mode,omitempty" json:"matchMode,omitempty"`
	// NoFill disables the list's fill rule on select.
	NoFill bool `msgpack:"nofill,omitempty" json:"noFill,omitempty"`
}

// Frame is one server message. Index is always sent since row 0 and -1
// are both meaningful.
type Frame struct {
	Type  string `msgpack:"t" json:"type"`
	ID    string `msgpack:"id,omitempty" json:"id,omitempty"`
	Field string `msgpack:"f,omitempty" json:"field,omitempty"`

	Items     []autocomplete.Candidate `msgpack:"items,omitempty" json:"items,omitempty"`
	Index     int                      `msgpack:"i" json:"index"`
	Value     string                   `msgpack:"v,omitempty" json:"value,omitempty"`
	Key       string                   `msgpack:"k,omitempty" json:"key,omitempty"`
	Prevented bool                     `msgpack:"p,omitempty" json:"prevented,omitempty"`
	Synthetic bool                     `msgpack:"syn,omitempty" json:"synthetic,omitempty"`
	Candidate *autocomplete.Candidate  `msgpack:"c,omitempty" json:"candidate,omitempty"`
	Lists     []ListInfo               `msgpack:"lists,omitempty" json:"lists,omitempty"`
	Stats     *Stats                   `msgpack:"stats,omitempty" json:"stats,omitempty"`
	Error     string                   `msgpack:"e,omitempty" json:"error,omitempty"`
}

// ListInfo describes one catalog list.
type ListInfo struct {
	Name  string `msgpack:"name" json:"name"`
	Count int    `msgpack:"count" json:"count"`
}

// Emitter delivers frames to the client. It is called from the goroutine
// handling requests and from background lookups, so it must be safe for
// concurrent use.
type Emitter func(Frame)
