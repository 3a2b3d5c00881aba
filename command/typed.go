package command

import (
	"strconv"

	"github.com/tacheron/imapc/imaperr"
)

// firstErr returns the first non-nil error among a set of builder calls already made, used by
// the typed constructors below to fail fast without repeating `if err != nil` after every step.
func firstErr(errs ...*imaperr.Error) *imaperr.Error {
	for _, e := range errs {
		if e != nil {
			return e
		}
	}
	return nil
}

// NewLogin builds a LOGIN command.
func NewLogin(user, pass string) (*Command, *imaperr.Error) {
	c, err := New("LOGIN")
	if err != nil {
		return nil, err
	}
	return c, firstErr(c.builder.AddQuoted(user, false), c.builder.AddQuoted(pass, false))
}

// NewLogout builds a LOGOUT command.
func NewLogout() (*Command, *imaperr.Error) { return New("LOGOUT") }

// NewCapability builds a CAPABILITY command.
func NewCapability() (*Command, *imaperr.Error) { return New("CAPABILITY") }

// NewNoop builds a NOOP command.
func NewNoop() (*Command, *imaperr.Error) { return New("NOOP") }

// NewSelect builds a SELECT command.
func NewSelect(mailbox string) (*Command, *imaperr.Error) {
	c, err := New("SELECT")
	if err != nil {
		return nil, err
	}
	return c, c.builder.AddMailbox(mailbox)
}

// NewExamine builds an EXAMINE command.
func NewExamine(mailbox string) (*Command, *imaperr.Error) {
	c, err := New("EXAMINE")
	if err != nil {
		return nil, err
	}
	return c, c.builder.AddMailbox(mailbox)
}

// NewList builds a LIST command.
func NewList(reference, pattern string) (*Command, *imaperr.Error) {
	c, err := New("LIST")
	if err != nil {
		return nil, err
	}
	return c, firstErr(c.builder.AddMailbox(reference), c.builder.AddMailbox(pattern))
}

// NewLsub builds an LSUB command.
func NewLsub(reference, pattern string) (*Command, *imaperr.Error) {
	c, err := New("LSUB")
	if err != nil {
		return nil, err
	}
	return c, firstErr(c.builder.AddMailbox(reference), c.builder.AddMailbox(pattern))
}

// NewStatus builds a STATUS command.
func NewStatus(mailbox string, items []string) (*Command, *imaperr.Error) {
	c, err := New("STATUS")
	if err != nil {
		return nil, err
	}
	return c, firstErr(c.builder.AddMailbox(mailbox), c.builder.AddList(items))
}

// NewAppend builds an APPEND command; flags may be nil.
func NewAppend(mailbox string, flags []string, body []byte) (*Command, *imaperr.Error) {
	c, err := New("APPEND")
	if err != nil {
		return nil, err
	}
	if err := c.builder.AddMailbox(mailbox); err != nil {
		return nil, err
	}
	if len(flags) > 0 {
		if err := c.builder.AddList(flags); err != nil {
			return nil, err
		}
	}
	return c, c.builder.AddLiteral(body)
}

// NewCheck builds a CHECK command.
func NewCheck() (*Command, *imaperr.Error) { return New("CHECK") }

// NewClose builds a CLOSE command.
func NewClose() (*Command, *imaperr.Error) { return New("CLOSE") }

// NewExpunge builds an EXPUNGE command.
func NewExpunge() (*Command, *imaperr.Error) { return New("EXPUNGE") }

// NewSearch builds a SEARCH command from a pre-formatted criteria string.
func NewSearch(criteria string) (*Command, *imaperr.Error) {
	c, err := New("SEARCH")
	if err != nil {
		return nil, err
	}
	return c, c.builder.AddRaw(criteria)
}

// NewFetch builds a FETCH command; items is the pre-formatted data-item list, e.g.
// "(FLAGS BODY[])".
func NewFetch(ids []uint32, items string) (*Command, *imaperr.Error) {
	c, err := New("FETCH")
	if err != nil {
		return nil, err
	}
	return c, firstErr(c.builder.AddSequence(ids), c.builder.AddRaw(items))
}

// NewStore builds a STORE command, e.g. itemName "+FLAGS.SILENT".
func NewStore(ids []uint32, itemName string, flags []string) (*Command, *imaperr.Error) {
	c, err := New("STORE")
	if err != nil {
		return nil, err
	}
	return c, firstErr(c.builder.AddSequence(ids), c.builder.AddRaw(itemName), c.builder.AddList(flags))
}

// NewCopy builds a COPY command.
func NewCopy(ids []uint32, mailbox string) (*Command, *imaperr.Error) {
	c, err := New("COPY")
	if err != nil {
		return nil, err
	}
	return c, firstErr(c.builder.AddSequence(ids), c.builder.AddMailbox(mailbox))
}

// NewCreate builds a CREATE command.
func NewCreate(mailbox string) (*Command, *imaperr.Error) {
	c, err := New("CREATE")
	if err != nil {
		return nil, err
	}
	return c, c.builder.AddMailbox(mailbox)
}

// NewDelete builds a DELETE command.
func NewDelete(mailbox string) (*Command, *imaperr.Error) {
	c, err := New("DELETE")
	if err != nil {
		return nil, err
	}
	return c, c.builder.AddMailbox(mailbox)
}

// NewRename builds a RENAME command.
func NewRename(from, to string) (*Command, *imaperr.Error) {
	c, err := New("RENAME")
	if err != nil {
		return nil, err
	}
	return c, firstErr(c.builder.AddMailbox(from), c.builder.AddMailbox(to))
}

// NewSubscribe builds a SUBSCRIBE command.
func NewSubscribe(mailbox string) (*Command, *imaperr.Error) {
	c, err := New("SUBSCRIBE")
	if err != nil {
		return nil, err
	}
	return c, c.builder.AddMailbox(mailbox)
}

// NewUnsubscribe builds an UNSUBSCRIBE command.
func NewUnsubscribe(mailbox string) (*Command, *imaperr.Error) {
	c, err := New("UNSUBSCRIBE")
	if err != nil {
		return nil, err
	}
	return c, c.builder.AddMailbox(mailbox)
}

// NewStartTLS builds a STARTTLS command. In normal operation protocol.StartTLS issues this
// line itself; this constructor exists for callers driving the handshake through the pipeline
// instead.
func NewStartTLS() (*Command, *imaperr.Error) { return New("STARTTLS") }

// NewNamespace builds a NAMESPACE command.
func NewNamespace() (*Command, *imaperr.Error) { return New("NAMESPACE") }

// NewGetQuota builds a GETQUOTA command (QUOTA extension).
func NewGetQuota(root string) (*Command, *imaperr.Error) {
	c, err := New("GETQUOTA")
	if err != nil {
		return nil, err
	}
	return c, c.builder.AddQuoted(root, false)
}

// NewGetQuotaRoot builds a GETQUOTAROOT command (QUOTA extension).
func NewGetQuotaRoot(mailbox string) (*Command, *imaperr.Error) {
	c, err := New("GETQUOTAROOT")
	if err != nil {
		return nil, err
	}
	return c, c.builder.AddMailbox(mailbox)
}

// NewSetQuota builds a SETQUOTA command (QUOTA extension).
func NewSetQuota(root, resource string, limit uint32) (*Command, *imaperr.Error) {
	c, err := New("SETQUOTA")
	if err != nil {
		return nil, err
	}
	if err := c.builder.AddQuoted(root, false); err != nil {
		return nil, err
	}
	if err := c.builder.BeginList(); err != nil {
		return nil, err
	}
	if err := c.builder.AddAtom(resource); err != nil {
		return nil, err
	}
	if err := c.builder.AddRaw(strconv.FormatUint(uint64(limit), 10)); err != nil {
		return nil, err
	}
	return c, c.builder.EndList(0)
}

// NewGetACL builds a GETACL command (ACL extension).
func NewGetACL(mailbox string) (*Command, *imaperr.Error) {
	c, err := New("GETACL")
	if err != nil {
		return nil, err
	}
	return c, c.builder.AddMailbox(mailbox)
}

// NewSetACL builds a SETACL command (ACL extension).
func NewSetACL(mailbox, identifier, rights string) (*Command, *imaperr.Error) {
	c, err := New("SETACL")
	if err != nil {
		return nil, err
	}
	return c, firstErr(c.builder.AddMailbox(mailbox), c.builder.AddQuoted(identifier, false), c.builder.AddQuoted(rights, false))
}

// NewDeleteACL builds a DELETEACL command (ACL extension).
func NewDeleteACL(mailbox, identifier string) (*Command, *imaperr.Error) {
	c, err := New("DELETEACL")
	if err != nil {
		return nil, err
	}
	return c, firstErr(c.builder.AddMailbox(mailbox), c.builder.AddQuoted(identifier, false))
}

// NewListRights builds a LISTRIGHTS command (ACL extension).
func NewListRights(mailbox, identifier string) (*Command, *imaperr.Error) {
	c, err := New("LISTRIGHTS")
	if err != nil {
		return nil, err
	}
	return c, firstErr(c.builder.AddMailbox(mailbox), c.builder.AddQuoted(identifier, false))
}

// NewMyRights builds a MYRIGHTS command (ACL extension).
func NewMyRights(mailbox string) (*Command, *imaperr.Error) {
	c, err := New("MYRIGHTS")
	if err != nil {
		return nil, err
	}
	return c, c.builder.AddMailbox(mailbox)
}
