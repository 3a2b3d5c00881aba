// Package protocol implements the half of the IMAP state machine that sits above transport
// framing: the initial server greeting, the STARTTLS handover, fragmented sends with literal
// continuation, and assembling a full tagged reply out of the untagged Info lines that precede
// it. See SPEC_FULL.md §4.2.
package protocol

import (
	"crypto/tls"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/crypto/ocsp"

	"github.com/tacheron/imapc/imaperr"
	"github.com/tacheron/imapc/lalog"
	"github.com/tacheron/imapc/token"
	"github.com/tacheron/imapc/transport"
)

// TLSMode controls how (and whether) the protocol layer negotiates transport security.
type TLSMode int

const (
	// Disabled never attempts TLS; STARTTLS is not even sent.
	Disabled TLSMode = iota
	// Automatic attempts STARTTLS best-effort; a refusal or certificate error is logged and the
	// connection continues in cleartext.
	Automatic
	// Required mandates STARTTLS; a refusal or certificate error is a fatal CannotConnect.
	Required
	// ImplicitIMAPS performs the TLS handshake immediately at connect, before the greeting.
	ImplicitIMAPS
)

// State classifies an assembled reply or reply fragment.
type State int

const (
	// Info is an untagged ("*") or greeting ("0") informational line.
	Info State = iota
	// Continue is a "+" literal continuation request.
	Continue
	// Ready is a tagged OK reply.
	Ready
	// Failure is a tagged NO reply.
	Failure
	// Error is a tagged BAD reply.
	Error
	// Closed means the connection was torn down after a BYE.
	Closed
	// Exception is a tagged reply whose status word was not OK/NO/BAD.
	Exception
)

// Fragment is one classified line as returned by the transport layer, before reply assembly.
type Fragment struct {
	Tag     transport.Tag
	Status  string
	Message string
	Literals [][]byte
	State   State
}

// InfoLine is one untagged line gathered while assembling a Record.
type InfoLine struct {
	Status   string
	Message  string
	Literals [][]byte
}

// Record is a fully assembled server reply: the untagged Info lines observed before the
// concluding tagged status.
type Record struct {
	Tag     uint32
	Status  string
	Message string
	Info    []InfoLine
	State   State

	tokensOnce   bool
	tokensParsed []*token.Token
}

// Succeeded reports whether the reply's final status was OK.
func (r *Record) Succeeded() bool { return r.State == Ready }

// Tokens lazily tokenises Message, caching the result on first access (the "lazy parser cached
// inside a value record" idiom from §9, reimplemented as an explicit once-init field).
func (r *Record) Tokens() []*token.Token {
	if !r.tokensOnce {
		r.tokensParsed = token.Parse(r.Message)
		r.tokensOnce = true
	}
	return r.tokensParsed
}

// Part is one element of a fragmented send: either plain text, or (when Bytes is non-nil) a
// literal byte blob that requires a server continuation before it may be sent.
type Part struct {
	Text  string
	Bytes []byte
}

const greetingPollWindow = 200 * time.Millisecond

// Protocol drives one Transport through the greeting, STARTTLS, send and receive-assembly
// state machine. It owns tag assignment.
type Protocol struct {
	tr       *transport.Transport
	logger   *lalog.Logger
	tagCtr   uint32
	byeSeen  bool
	greeting *Fragment

	// ExistsReporting enables the "* <n> EXISTS" monitor hook described in §4.2.3.
	ExistsReporting bool
	OnExists        func(count uint32)
	OnClosed        func()
	// OnUntagged receives any Info fragment observed while awaiting a literal continuation,
	// resolving the §9 Open Question on literal-continuation untagged routing: such lines are
	// routed to the caller (the pipeline) instead of being discarded.
	OnUntagged func(*Fragment)
}

// New wraps an already-dialled Transport.
func New(tr *transport.Transport) *Protocol {
	return &Protocol{
		tr:     tr,
		logger: &lalog.Logger{ComponentName: "protocol"},
	}
}

func (p *Protocol) nextTag() uint32 {
	return atomic.AddUint32(&p.tagCtr, 1)
}

// Greet performs the §4.2.1 greeting handshake: it polls briefly for the server's unsolicited
// greeting line, and failing that sends a NOOP probe and waits for its tagged OK.
func (p *Protocol) Greet() (*Fragment, *imaperr.Error) {
	if p.tr.Poll(greetingPollWindow) {
		frag, err := p.ReceiveFragment()
		if err == nil && frag.State == Info {
			p.greeting = frag
			return frag, nil
		}
	}
	tag := p.nextTag()
	if err := p.tr.Send(tag, "NOOP"); err != nil {
		return nil, imaperr.New(imaperr.CannotConnect, "Protocol.Greet", "Invalid or missing greeting", err)
	}
	for {
		frag, err := p.ReceiveFragment()
		if err != nil {
			return nil, imaperr.New(imaperr.CannotConnect, "Protocol.Greet", "Invalid or missing greeting", err)
		}
		if frag.State == Info && p.greeting == nil {
			p.greeting = frag
		}
		if frag.Tag.Kind == transport.TagValue && frag.Tag.Value == tag {
			if frag.State != Ready {
				return nil, imaperr.New(imaperr.CannotConnect, "Protocol.Greet", "Invalid or missing greeting", nil)
			}
			if p.greeting == nil {
				p.greeting = frag
			}
			return p.greeting, nil
		}
	}
}

// StartTLS runs the STARTTLS negotiation and, on success, upgrades the underlying transport.
// Certificate and OCSP revocation errors are fatal in Required mode and logged-and-accepted in
// Automatic mode; Disabled skips negotiation entirely.
func (p *Protocol) StartTLS(mode TLSMode, host string, insecureSkipVerify bool) *imaperr.Error {
	if mode == Disabled {
		return nil
	}
	tag := p.nextTag()
	if err := p.tr.Send(tag, "STARTTLS"); err != nil {
		return err
	}
	rec, err := p.awaitTagged(tag)
	if err != nil {
		return err
	}
	if !rec.Succeeded() {
		if mode == Required {
			return imaperr.New(imaperr.CannotConnect, "Protocol.StartTLS", "server refused STARTTLS", nil)
		}
		p.logger.Info(host, nil, "server refused STARTTLS, continuing in cleartext")
		return nil
	}

	tlsConn := tls.Client(p.tr.Conn(), &tls.Config{ServerName: host, InsecureSkipVerify: insecureSkipVerify})
	if hsErr := tlsConn.Handshake(); hsErr != nil {
		if mode == Required {
			return imaperr.New(imaperr.CannotConnect, "Protocol.StartTLS", "TLS handshake failed", hsErr)
		}
		p.logger.Warning(host, hsErr, "TLS handshake failed, continuing in cleartext")
		return nil
	}
	p.tr.Upgrade(tlsConn)
	return p.checkOCSP(mode, host, tlsConn)
}

// checkOCSP performs a best-effort revocation check against a stapled OCSP response. A staple
// is opportunistic, not mandatory: its absence is not an error. A Revoked status is fatal in
// Required mode, logged in Automatic mode.
func (p *Protocol) checkOCSP(mode TLSMode, host string, conn *tls.Conn) *imaperr.Error {
	staple := conn.ConnectionState().OCSPResponse
	if len(staple) == 0 {
		return nil
	}
	resp, err := ocsp.ParseResponse(staple, nil)
	if err != nil {
		p.logger.MaybeMinorError(err)
		return nil
	}
	if resp.Status != ocsp.Revoked {
		return nil
	}
	if mode == Required {
		return imaperr.New(imaperr.CannotConnect, "Protocol.StartTLS", "server certificate is OCSP-revoked", nil)
	}
	p.logger.Warning(host, nil, "server certificate is OCSP-revoked, continuing per Automatic policy")
	return nil
}

// Send issues a simple, non-literal command line and returns its assigned tag.
func (p *Protocol) Send(text string) (uint32, *imaperr.Error) {
	tag := p.nextTag()
	if err := p.tr.Send(tag, text); err != nil {
		return 0, err
	}
	return tag, nil
}

// SendFragments issues a fragmented send: parts alternate plain text and literal byte blobs.
// Before each literal, the server's "+" continuation is awaited; any Info fragments observed
// in that window are routed to OnUntagged rather than discarded.
func (p *Protocol) SendFragments(parts []Part) (uint32, *imaperr.Error) {
	tag := p.nextTag()
	var cur strings.Builder
	firstSegment := true

	flush := func() *imaperr.Error {
		text := cur.String()
		cur.Reset()
		if firstSegment {
			firstSegment = false
			return p.tr.Send(tag, text)
		}
		return p.tr.Send(0, text)
	}

	for _, part := range parts {
		if part.Bytes == nil {
			if cur.Len() > 0 {
				cur.WriteString(" ")
			}
			cur.WriteString(part.Text)
			continue
		}
		if cur.Len() > 0 {
			cur.WriteString(" ")
		}
		cur.WriteString(fmt.Sprintf("{%d}", len(part.Bytes)))
		if err := flush(); err != nil {
			return 0, err
		}
		if err := p.awaitContinuation(tag); err != nil {
			return 0, err
		}
		if err := p.tr.SendBytes(part.Bytes); err != nil {
			return 0, err
		}
	}
	if err := flush(); err != nil {
		return 0, err
	}
	return tag, nil
}

// awaitContinuation reads fragments until the server's "+" continuation for the in-flight
// literal, routing stray untagged lines to OnUntagged and failing if the server instead returns
// our own tag (meaning it rejected the literal).
func (p *Protocol) awaitContinuation(tag uint32) *imaperr.Error {
	for {
		frag, err := p.ReceiveFragment()
		if err != nil {
			return err
		}
		switch {
		case frag.State == Continue:
			return nil
		case frag.State == Info:
			if p.OnUntagged != nil {
				p.OnUntagged(frag)
			}
		case frag.Tag.Kind == transport.TagValue && frag.Tag.Value == tag:
			return imaperr.New(imaperr.SendFailed, "Protocol.SendFragments", "server refused literal continuation", nil)
		default:
			if p.OnUntagged != nil {
				p.OnUntagged(frag)
			}
		}
	}
}

// ReceiveFragment reads and classifies the next reply line.
func (p *Protocol) ReceiveFragment() (*Fragment, *imaperr.Error) {
	tag, status, message, literals, err := p.tr.Receive()
	if err != nil {
		return nil, err
	}
	frag := &Fragment{Tag: tag, Status: status, Message: message, Literals: literals}
	switch tag.Kind {
	case transport.TagUntagged:
		frag.State = Info
		if strings.EqualFold(status, "BYE") {
			p.byeSeen = true
		}
	case transport.TagContinuation:
		frag.State = Continue
	default:
		switch strings.ToUpper(status) {
		case "OK":
			frag.State = Ready
		case "NO":
			frag.State = Failure
		case "BAD":
			frag.State = Error
		default:
			frag.State = Exception
		}
	}
	return frag, nil
}

// ReceiveReply assembles one full reply: the untagged Info lines preceding the concluding
// tagged status. While scanning Info lines it looks for "* <n> EXISTS" and fires OnExists
// exactly once per reply when ExistsReporting is enabled. A BYE observed earlier in the reply
// closes the transport once the concluding status is Ready.
func (p *Protocol) ReceiveReply() (*Record, *imaperr.Error) {
	rec := &Record{}
	reportedExists := false
	for {
		frag, err := p.ReceiveFragment()
		if err != nil {
			return nil, err
		}
		if frag.State == Info {
			rec.Info = append(rec.Info, InfoLine{Status: frag.Status, Message: frag.Message, Literals: frag.Literals})
			if p.ExistsReporting && !reportedExists {
				if n, ok := parseExists(frag.Status, frag.Message); ok {
					reportedExists = true
					if p.OnExists != nil {
						p.OnExists(n)
					}
				}
			}
			continue
		}
		rec.Tag = frag.Tag.Value
		rec.Status = frag.Status
		rec.Message = frag.Message
		rec.State = frag.State
		if p.byeSeen && frag.State == Ready {
			p.byeSeen = false
			_ = p.tr.Close()
			if p.OnClosed != nil {
				p.OnClosed()
			}
			rec.State = Closed
		}
		return rec, nil
	}
}

// awaitTagged loops ReceiveReply-style until the fragment bearing the given tag concludes,
// used for the one-off STARTTLS exchange issued before any pipeline exists.
func (p *Protocol) awaitTagged(tag uint32) (*Record, *imaperr.Error) {
	rec := &Record{}
	for {
		frag, err := p.ReceiveFragment()
		if err != nil {
			return nil, err
		}
		if frag.State == Info {
			rec.Info = append(rec.Info, InfoLine{Status: frag.Status, Message: frag.Message, Literals: frag.Literals})
			continue
		}
		if frag.Tag.Kind == transport.TagValue && frag.Tag.Value == tag {
			rec.Tag = tag
			rec.Status = frag.Status
			rec.Message = frag.Message
			rec.State = frag.State
			return rec, nil
		}
	}
}

// parseExists recognises the "* <n> EXISTS" untagged form: status is the numeric token and
// message's first word is the literal "EXISTS".
func parseExists(status, message string) (uint32, bool) {
	n, err := parseUint32(status)
	if err != nil {
		return 0, false
	}
	fields := strings.Fields(message)
	if len(fields) == 0 || !strings.EqualFold(fields[0], "EXISTS") {
		return 0, false
	}
	return n, true
}

func parseUint32(s string) (uint32, error) {
	toks := token.Parse(s)
	if len(toks) != 1 {
		return 0, fmt.Errorf("not a single numeric token: %q", s)
	}
	n, ok := toks[0].Number()
	if !ok {
		return 0, fmt.Errorf("not numeric: %q", s)
	}
	return n, nil
}
