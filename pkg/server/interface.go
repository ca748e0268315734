/*
Package server implements msgpack IPC for form autocomplete.

The server drives one session over stdin/stdout: the client (an editor
plugin, a webview host, a test harness) mirrors its form fields into the
session and renders whatever dropdown frames come back.

# IPC

Requests and frames are msgpack maps written back to back on the streams, with
no extra framing. On start the server writes a ready frame:

	{"t": "ready", "v": "0.3.0", "i": 0}

A client binds a field to a catalog list, then forwards what the user does:

	{"id": "1", "op": "bind", "f": "supplier", "list": "suppliers"}
	{"op": "input", "f": "supplier", "v": "pharma"}
	{"op": "key", "f": "supplier", "k": "ArrowDown"}
	{"op": "key", "f": "supplier", "k": "Enter"}

and receives frames telling it what to render:

	{"t": "show", "f": "supplier", "items": [{"id": "S1", "label": "Nile Pharma"}], "i": -1}
	{"t": "highlight", "f": "supplier", "i": 0}
	{"t": "value", "f": "supplier", "v": "Nile Pharma", "i": 0}
	{"t": "key", "f": "supplier", "k": "Enter", "p": true, "i": 0}

A key frame answers every key request; "p" tells the client to skip the
default action of the key, such as submitting the form on Enter.

Selecting a candidate from a list with a fill rule also writes the sibling
fields the rule names, like the supplier address or the unit of an item row.

# Server operations

Besides the session operations (bind, input, key, hover, click, outside,
update, destroy, lists, stats) the server answers:

	{"id": "h", "op": "health"}
	{"id": "c", "op": "config", "opts": {"min": 2, "max": 8, "mode": "startsWith"}}

config persists new engine defaults to the config file; bindings created
afterwards use them.

The server counts requests and re-reads the config file every reload_every
requests so edits made while it runs are picked up.
*/
package server

import "github.com/bastiangx/pickserve/internal/session"

// Request and Frame are the session wire types.
type (
	Request = session.Request
	Frame   = session.Frame
)

// Server level operations.
const (
	OpHealth = "health"
	OpConfig = "config"
)

// Server level frames.
const (
	FrameReady  = "ready"
	FrameHealth = "ok"
)
