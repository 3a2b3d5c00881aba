// Package command implements the builder/state-machine half of the command framework: building
// a command's wire arguments incrementally, tracking its lifecycle from construction through
// disposal, and the typed-command dispatch table described in SPEC_FULL.md §4.4.
package command

import (
	"strings"

	uuid "github.com/satori/go.uuid"

	"github.com/tacheron/imapc/imaperr"
	"github.com/tacheron/imapc/protocol"
)

// State is a command's position in its lifecycle.
type State int

const (
	Created State = iota
	Queued
	Running
	Completed
	Failed
	Disposed
)

func (s State) String() string {
	switch s {
	case Created:
		return "Created"
	case Queued:
		return "Queued"
	case Running:
		return "Running"
	case Completed:
		return "Completed"
	case Failed:
		return "Failed"
	case Disposed:
		return "Disposed"
	default:
		return "Unknown"
	}
}

// Engine is the subset of the pipeline factory a Command needs to queue and send itself,
// expressed here to avoid command importing pipeline.
type Engine interface {
	Attach(c *Command)
	Send(c *Command, wait bool) *imaperr.Error
}

// uidAllowed is the set of command classes the UID prefix may be applied to.
var uidAllowed = map[string]bool{
	"COPY":   true,
	"FETCH":  true,
	"STORE":  true,
	"SEARCH": true,
}

// Command is one IMAP command: a name, an argument builder, UID-prefix flag, lifecycle state,
// and (once it concludes) the assembled reply.
type Command struct {
	Name    string
	UID     bool
	TraceID uuid.UUID

	state       State
	autoDispose bool
	builder     *Builder
	engine      Engine
	tag         uint32
	reply       *protocol.Record
}

// New constructs a Command for the given command name, case-insensitively — "fetch" and "FETCH"
// produce the same upper-case atom, matching the wire form and the case-insensitive lookup in
// uidAllowed. An empty name is rejected outright; any other name is accepted — known extension
// and core commands get their usual UID eligibility, anything else falls back to being sent
// verbatim ("Generic"), since this is a static table rather than reflection-based dynamic
// construction. AutoDispose defaults to true; BulkHelper and other callers that manage their own
// disposal lifetime turn it off with SetAutoDispose(false).
func New(name string) (*Command, *imaperr.Error) {
	if name == "" {
		return nil, imaperr.New(imaperr.NotImplemented, "command.New", "empty command name", nil)
	}
	traceID, _ := uuid.NewV4()
	return &Command{
		Name:        strings.ToUpper(name),
		TraceID:     traceID,
		state:       Created,
		autoDispose: true,
		builder:     NewBuilder(),
	}, nil
}

// AutoDispose reports whether Factory.Dispose may reclaim this command when force is false.
func (c *Command) AutoDispose() bool { return c.autoDispose }

// SetAutoDispose controls whether Factory.Dispose may reclaim this command absent force=true.
// BulkHelper clears this on every ring slot so an unrelated Dispose call (e.g. from
// Factory.Capabilities) cannot reclaim a slot still in use.
func (c *Command) SetAutoDispose(v bool) { c.autoDispose = v }

// State returns the command's current lifecycle state.
func (c *Command) State() State { return c.state }

// Reply returns the last reply assembled by Completed, or nil before one arrives.
func (c *Command) Reply() *protocol.Record { return c.reply }

// Tag returns the tag assigned at Execute, or 0 before that.
func (c *Command) Tag() uint32 { return c.tag }

// Builder exposes the argument builder for typed constructors and callers building bespoke
// commands.
func (c *Command) Builder() *Builder { return c.builder }

// BindEngine attaches the pipeline factory that will queue and send this command. Called by
// the factory at creation time.
func (c *Command) BindEngine(e Engine) { c.engine = e }

// SetUID sets or clears the UID prefix. Only valid for {COPY, FETCH, STORE, SEARCH}.
func (c *Command) SetUID(v bool) *imaperr.Error {
	if v && !uidAllowed[c.Name] {
		return imaperr.New(imaperr.InvalidArgument, "Command.SetUID", "UID prefix not valid for "+c.Name, nil)
	}
	c.UID = v
	return nil
}

// Build finalises the builder (closing any open lists) and returns the wire fragments with the
// command name (and UID prefix, if set) prepended.
func (c *Command) Build() ([]protocol.Part, *imaperr.Error) {
	if err := c.builder.closeAll(); err != nil {
		return nil, err
	}
	prefix := c.Name
	if c.UID {
		prefix = "UID " + c.Name
	}
	parts := c.builder.parts
	if len(parts) == 0 {
		return []protocol.Part{{Text: prefix}}, nil
	}
	out := make([]protocol.Part, len(parts))
	copy(out, parts)
	if out[0].Bytes == nil {
		if out[0].Text == "" {
			out[0].Text = prefix
		} else {
			out[0].Text = prefix + " " + out[0].Text
		}
		return out, nil
	}
	return append([]protocol.Part{{Text: prefix}}, out...), nil
}

// Queue attaches the command to its bound engine's ordered set. Idempotent once already Queued.
func (c *Command) Queue() *imaperr.Error {
	switch c.state {
	case Queued:
		return nil
	case Created:
		if c.engine == nil {
			return imaperr.New(imaperr.CommandState, "Command.Queue", "no engine bound", nil)
		}
		c.engine.Attach(c)
		c.state = Queued
		return nil
	default:
		return imaperr.New(imaperr.CommandBusy, "Command.Queue", "cannot queue from state "+c.state.String(), nil)
	}
}

// Execute sends the built payload through the bound engine. On success the command transitions
// to Running and its tag is set. If wait is true, Execute blocks until the engine observes this
// command's tagged reply (the engine is responsible for that blocking, via Send).
func (c *Command) Execute(wait bool) *imaperr.Error {
	if c.state != Queued {
		return imaperr.New(imaperr.CommandState, "Command.Execute", "cannot execute from state "+c.state.String(), nil)
	}
	// Running is set before Send so that a waiting engine pumps replies until this command
	// leaves Running; a command whose line never went out (no tag yet) returns to Queued.
	c.state = Running
	if err := c.engine.Send(c, wait); err != nil {
		if c.tag == 0 {
			c.state = Queued
		}
		return err
	}
	return nil
}

// SetTag is the hook the pipeline engine uses to record the tag it assigned at send time.
func (c *Command) SetTag(tag uint32) { c.tag = tag }

// Completed is called by the engine with the matched tagged reply; it transitions the command
// to Completed or Failed according to the reply's status.
func (c *Command) Completed(reply *protocol.Record) *imaperr.Error {
	if c.state != Running {
		return imaperr.New(imaperr.CommandState, "Command.Completed", "not running", nil)
	}
	c.reply = reply
	if reply.Succeeded() {
		c.state = Completed
	} else {
		c.state = Failed
	}
	return nil
}

// Reset returns a concluded command to Created, discarding its built arguments, tag and reply.
// Forbidden while Queued or Running, and after Dispose.
func (c *Command) Reset() *imaperr.Error {
	if c.state == Queued || c.state == Running {
		return imaperr.New(imaperr.CommandBusy, "Command.Reset", "cannot reset from state "+c.state.String(), nil)
	}
	if c.state == Disposed {
		return imaperr.New(imaperr.DisposedObject, "Command.Reset", "command is disposed", nil)
	}
	c.state = Created
	c.builder = NewBuilder()
	c.tag = 0
	c.reply = nil
	return nil
}

// Dispose moves the command to the terminal Disposed state; any state may transition to
// Disposed. Factory.Dispose calls it after removing the command from its attached set.
func (c *Command) Dispose() {
	c.state = Disposed
}
