// Package pipeline implements the factory that drives commands through a Protocol: tag
// assignment on send, dispatch of tagged replies back to the command that owns them regardless
// of reply order, and the dispose-cascade lifecycle described in SPEC_FULL.md §4.5.
package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/tacheron/imapc/command"
	"github.com/tacheron/imapc/imaperr"
	"github.com/tacheron/imapc/protocol"
	"github.com/tacheron/imapc/token"
)

// Factory is the single point through which commands are queued, executed and disposed on one
// Protocol/Transport pair. It implements command.Engine.
type Factory struct {
	proto   *protocol.Protocol
	metrics *Metrics

	attached []*command.Command
	running  map[uint32]*command.Command
	started  map[uint32]time.Time
	finished map[uint32]time.Time

	capabilities []string
	delimiter    string
	delimiterSet bool

	// TraceEnabled, when true, makes Dispose emit a CommandTrace via OnTrace for each disposed
	// command.
	TraceEnabled bool
	OnTrace      func(*CommandTrace)
}

// New wraps a Protocol in a Factory. metrics may be nil, in which case counters are skipped.
func New(proto *protocol.Protocol, metrics *Metrics) *Factory {
	f := &Factory{
		proto:    proto,
		metrics:  metrics,
		running:  make(map[uint32]*command.Command),
		started:  make(map[uint32]time.Time),
		finished: make(map[uint32]time.Time),
	}
	proto.OnUntagged = f.handleUntagged
	return f
}

// handleUntagged is wired as the Protocol's literal-continuation untagged sink: an Info
// fragment observed while a literal is pending is dropped here. It is not added to the reply
// record of the command that issued the literal (or of any other command).
func (f *Factory) handleUntagged(frag *protocol.Fragment) {}

// Create builds a new command of the given class and binds it to this factory.
func (f *Factory) Create(name string) (*command.Command, *imaperr.Error) {
	c, err := command.New(name)
	if err != nil {
		return nil, err
	}
	c.BindEngine(f)
	return c, nil
}

// Attach implements command.Engine: it appends c to the ordered attached set.
func (f *Factory) Attach(c *command.Command) {
	f.attached = append(f.attached, c)
	f.metrics.incQueued()
}

// hasLiteral reports whether any part of a built command carries a literal byte blob.
func hasLiteral(parts []protocol.Part) bool {
	for _, p := range parts {
		if p.Bytes != nil {
			return true
		}
	}
	return false
}

func joinText(parts []protocol.Part) string {
	var sb strings.Builder
	for i, p := range parts {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(p.Text)
	}
	return sb.String()
}

func approxSize(parts []protocol.Part) int {
	n := 0
	for _, p := range parts {
		n += len(p.Text) + len(p.Bytes)
	}
	return n
}

// Send implements command.Engine: it builds c's wire form, drains in-flight commands first if a
// literal is involved (literal send mutual exclusion, §5), assigns c's tag, and optionally
// blocks until c's reply is dispatched.
func (f *Factory) Send(c *command.Command, wait bool) *imaperr.Error {
	parts, err := c.Build()
	if err != nil {
		return err
	}

	var tag uint32
	if hasLiteral(parts) {
		if err := f.ExecuteRunning(); err != nil {
			return err
		}
		tag, err = f.proto.SendFragments(parts)
	} else {
		tag, err = f.proto.Send(joinText(parts))
	}
	if err != nil {
		return err
	}

	c.SetTag(tag)
	f.running[tag] = c
	f.started[tag] = time.Now()
	f.metrics.incExecuted()
	f.metrics.addBytesSent(approxSize(parts))

	if wait {
		return f.waitFor(c)
	}
	return nil
}

// waitFor pumps replies until c leaves the Running state.
func (f *Factory) waitFor(c *command.Command) *imaperr.Error {
	for c.State() == command.Running {
		if err := f.pumpOne(); err != nil {
			return err
		}
	}
	return nil
}

// pumpOne reads exactly one assembled reply and dispatches it to the command whose tag it
// matches, regardless of issue order.
func (f *Factory) pumpOne() *imaperr.Error {
	rec, err := f.proto.ReceiveReply()
	if err != nil {
		return err
	}
	f.metrics.addBytesReceived(len(rec.Message))

	cmd, ok := f.running[rec.Tag]
	if !ok {
		return imaperr.New(imaperr.UnexpectedTag, "Factory.pumpOne", fmt.Sprintf("reply for unknown tag %d", rec.Tag), nil)
	}
	delete(f.running, rec.Tag)
	f.finished[rec.Tag] = time.Now()

	if err := cmd.Completed(rec); err != nil {
		return err
	}
	if rec.Succeeded() {
		f.metrics.incCompleted()
	} else {
		f.metrics.incFailed()
	}
	return nil
}

// ExecuteAll executes every Queued command in attach order without waiting for replies,
// implementing request pipelining.
func (f *Factory) ExecuteAll() *imaperr.Error {
	for _, c := range f.attached {
		if c.State() == command.Queued {
			if err := c.Execute(false); err != nil {
				return err
			}
		}
	}
	return nil
}

// ExecuteRunning pumps replies until no command is Running.
func (f *Factory) ExecuteRunning() *imaperr.Error {
	for len(f.running) > 0 {
		if err := f.pumpOne(); err != nil {
			return err
		}
	}
	return nil
}

// Dispose disposes attached commands in order. If until is non-nil, disposal stops after that
// command; otherwise every attached command is considered. Unless force is set: disposing a
// command still Queued or Running is an error, and a command with AutoDispose()==false is left
// attached rather than disposed (it is skipped, not removed) — this is what lets BulkHelper keep
// its ring of commands alive across unrelated Dispose calls (e.g. from Capabilities or Login).
func (f *Factory) Dispose(until *command.Command, force bool) *imaperr.Error {
	i := 0
	var remaining []*command.Command
	for ; i < len(f.attached); i++ {
		c := f.attached[i]
		if !force && !c.AutoDispose() {
			remaining = append(remaining, c)
		} else {
			if !force && (c.State() == command.Queued || c.State() == command.Running) {
				return imaperr.New(imaperr.CommandBusy, "Factory.Dispose", "command still in flight", nil)
			}
			f.emitTrace(c)
			c.Dispose()
			f.metrics.incDisposed()
		}
		if c == until {
			i++
			break
		}
	}
	f.attached = append(remaining, f.attached[i:]...)
	return nil
}

func (f *Factory) emitTrace(c *command.Command) {
	if !f.TraceEnabled || f.OnTrace == nil {
		return
	}
	tag := c.Tag()
	started, ok := f.started[tag]
	if !ok {
		return
	}
	finished, ok := f.finished[tag]
	if !ok {
		finished = time.Now()
	}
	delete(f.started, tag)
	delete(f.finished, tag)
	f.OnTrace(newCommandTrace(c, started, finished.Sub(started)))
}

// Capabilities returns the server's advertised capability list, issuing and caching a
// CAPABILITY command on first access.
func (f *Factory) Capabilities() ([]string, *imaperr.Error) {
	if f.capabilities != nil {
		return f.capabilities, nil
	}
	c, err := f.Create("CAPABILITY")
	if err != nil {
		return nil, err
	}
	if err := c.Queue(); err != nil {
		return nil, err
	}
	if err := c.Execute(true); err != nil {
		return nil, err
	}
	if !c.Reply().Succeeded() {
		return nil, imaperr.New(imaperr.UnexpectedData, "Factory.Capabilities", "CAPABILITY command failed", nil)
	}
	var caps []string
	for _, info := range c.Reply().Info {
		for _, tok := range token.Parse(info.Message) {
			if strings.EqualFold(tok.Text(), "CAPABILITY") {
				continue
			}
			caps = append(caps, tok.Text())
		}
	}
	f.capabilities = caps
	if err := f.Dispose(c, false); err != nil {
		return nil, err
	}
	return caps, nil
}

// HierarchyDelimiter returns the server's mailbox hierarchy separator, issuing and caching a
// LIST "" "" command on first access.
func (f *Factory) HierarchyDelimiter() (string, *imaperr.Error) {
	if f.delimiterSet {
		return f.delimiter, nil
	}
	c, err := command.NewList("", "")
	if err != nil {
		return "", err
	}
	c.BindEngine(f)
	if err := c.Queue(); err != nil {
		return "", err
	}
	if err := c.Execute(true); err != nil {
		return "", err
	}
	if !c.Reply().Succeeded() {
		return "", imaperr.New(imaperr.UnexpectedData, "Factory.HierarchyDelimiter", "LIST command failed", nil)
	}
	delim := ""
	for _, info := range c.Reply().Info {
		toks := token.Parse(info.Message)
		if len(toks) >= 2 {
			if q, ok := toks[1].QuotedText(); ok {
				delim = q
				break
			}
		}
	}
	f.delimiter = delim
	f.delimiterSet = true
	if err := f.Dispose(c, false); err != nil {
		return "", err
	}
	return delim, nil
}
