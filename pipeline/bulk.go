package pipeline

import (
	"github.com/tacheron/imapc/command"
	"github.com/tacheron/imapc/imaperr"
)

// BulkHelper is a fixed-size ring of preconstructed commands of one class, reused across many
// logical operations instead of disposing and recreating a command each time. Every ring slot
// has AutoDispose cleared, so an unrelated Factory.Dispose(nil, false) call elsewhere (e.g.
// Capabilities or Connection.Login tidying up its own ephemeral commands) skips these slots
// instead of reclaiming them out from under the ring.
type BulkHelper struct {
	factory  *Factory
	commands []*command.Command
	idx      int
}

// NewBulkHelper builds a ring of n commands of the given class, each bound to f.
func (f *Factory) NewBulkHelper(name string, n int) (*BulkHelper, *imaperr.Error) {
	if n <= 0 {
		return nil, imaperr.New(imaperr.InvalidArgument, "Factory.NewBulkHelper", "ring size must be positive", nil)
	}
	cmds := make([]*command.Command, n)
	for i := range cmds {
		c, err := f.Create(name)
		if err != nil {
			return nil, err
		}
		c.SetAutoDispose(false)
		cmds[i] = c
	}
	return &BulkHelper{factory: f, commands: cmds}, nil
}

// Next advances the ring: it fires off the current slot's command (if the caller already built
// and queued it) without waiting, then waits for the next slot's command to vacate if it is
// still running from a previous lap, resets it, and returns it ready for the caller to build.
func (h *BulkHelper) Next() (*command.Command, *imaperr.Error) {
	cur := h.commands[h.idx]
	if cur.State() == command.Queued {
		if err := cur.Execute(false); err != nil {
			return nil, err
		}
	}
	h.idx = (h.idx + 1) % len(h.commands)
	next := h.commands[h.idx]
	if next.State() == command.Running {
		if err := h.factory.waitFor(next); err != nil {
			return nil, err
		}
	}
	if next.State() == command.Completed || next.State() == command.Failed {
		if err := next.Reset(); err != nil {
			return nil, err
		}
	}
	return next, nil
}

// Drain executes any still-queued ring slot and waits for every running one, used once the
// caller has no more input to feed through the ring.
func (h *BulkHelper) Drain() *imaperr.Error {
	for _, c := range h.commands {
		if c.State() == command.Queued {
			if err := c.Execute(false); err != nil {
				return err
			}
		}
	}
	for _, c := range h.commands {
		if c.State() == command.Running {
			if err := h.factory.waitFor(c); err != nil {
				return err
			}
		}
	}
	return nil
}
