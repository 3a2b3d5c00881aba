// Package transport implements the framed, length-prefixed byte channel described in §4.1: it
// reads tagged/untagged reply lines off a TCP or TLS stream, transparently consuming "{n}"
// literal byte blocks wherever they occur, and writes command lines and literal payloads. It
// owns the one socket a Connection holds and serialises all access to it with a mutex; it is
// single-producer/single-consumer, not thread-hostile.
package transport

import (
	"bufio"
	"errors"
	"io"
	"net"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/proxy"

	"github.com/tacheron/imapc/imaperr"
	"github.com/tacheron/imapc/lalog"
)

// TagKind classifies the first whitespace-separated token of a received line.
type TagKind int

const (
	// TagValue is an ordinary hexadecimal command tag.
	TagValue TagKind = iota
	// TagUntagged is "*" (or the reserved "0"), an untagged informational line.
	TagUntagged
	// TagContinuation is "+", a literal continuation request.
	TagContinuation
)

// Tag is the parsed first token of a received reply line.
type Tag struct {
	Kind  TagKind
	Value uint32 // meaningful only when Kind == TagValue
}

// traceBufferBytes bounds how many of the most recently sent/received bytes are retained for
// diagnostics, mirroring the lineage's use of lalog.ByteLogWriter to keep recent daemon output.
const traceBufferBytes = 4096

// literalMarker matches a trailing "{n}" literal-size marker at the end of a line segment.
var literalMarker = regexp.MustCompile(`\{(\d+)\}\s*$`)

// DialOptions configures how Dial reaches an IMAP server.
type DialOptions struct {
	Host     string
	Port     int
	Timeout  time.Duration
	ProxyURL string // optional SOCKS5 proxy, e.g. "127.0.0.1:1080"
}

// Transport owns one socket and the buffered reader layered over it.
type Transport struct {
	mutex    sync.Mutex
	conn     net.Conn
	reader   *bufio.Reader
	timeout  time.Duration
	writeLog *lalog.ByteLogWriter
	readLog  *lalog.ByteLogWriter
	logger   *lalog.Logger
	closed   bool
	timedOut bool
}

// Dial opens a TCP connection (optionally via a SOCKS5 proxy) and wraps it in a Transport. The
// caller is responsible for any subsequent TLS handshake via Upgrade.
func Dial(opts DialOptions) (*Transport, *imaperr.Error) {
	addr := net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port))
	var conn net.Conn
	var err error
	if opts.ProxyURL != "" {
		var dialer proxy.Dialer
		dialer, err = proxy.SOCKS5("tcp", opts.ProxyURL, nil, &net.Dialer{Timeout: opts.Timeout})
		if err == nil {
			conn, err = dialer.Dial("tcp", addr)
		}
	} else {
		conn, err = net.DialTimeout("tcp", addr, opts.Timeout)
	}
	if err != nil {
		return nil, imaperr.New(imaperr.CannotConnect, "Transport.Dial", "failed to reach "+addr, err)
	}
	return newTransport(conn, opts.Timeout), nil
}

// NewFromConn wraps an already-established connection in a Transport, skipping Dial. It exists
// for protocol- and pipeline-layer tests that drive a Transport over a net.Pipe.
func NewFromConn(conn net.Conn, timeout time.Duration) *Transport {
	return newTransport(conn, timeout)
}

func newTransport(conn net.Conn, timeout time.Duration) *Transport {
	logger := &lalog.Logger{
		ComponentName: "transport",
		ComponentID:   []lalog.LoggerIDField{{Key: "Remote", Value: conn.RemoteAddr()}},
	}
	writeLog := lalog.NewByteLogWriter(conn, traceBufferBytes)
	readLog := lalog.NewByteLogWriter(lalog.DiscardCloser, traceBufferBytes)
	t := &Transport{
		conn:     conn,
		timeout:  timeout,
		writeLog: writeLog,
		readLog:  readLog,
		logger:   logger,
	}
	t.reader = bufio.NewReader(io.TeeReader(conn, readLog))
	return t
}

// Conn returns the raw underlying connection, for a caller (the protocol layer) that needs to
// perform a TLS handshake directly on the socket.
func (t *Transport) Conn() net.Conn {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.conn
}

// Upgrade replaces the underlying connection, used after a successful STARTTLS or implicit-TLS
// handshake. Any buffered-but-unread bytes are discarded, matching the fact that a TLS record
// layer cannot share a plaintext read buffer.
func (t *Transport) Upgrade(conn net.Conn) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.conn = conn
	t.writeLog = lalog.NewByteLogWriter(conn, traceBufferBytes)
	t.readLog = lalog.NewByteLogWriter(lalog.DiscardCloser, traceBufferBytes)
	t.reader = bufio.NewReader(io.TeeReader(conn, t.readLog))
}

func (t *Transport) deadline() time.Time {
	if t.timeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(t.timeout)
}

// Send writes "<tag-hex> <text>\r\n", or a raw "<text>\r\n" when tag is 0.
func (t *Transport) Send(tag uint32, text string) *imaperr.Error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	var line string
	if tag == 0 {
		line = text + "\r\n"
	} else {
		line = strconv.FormatUint(uint64(tag), 16) + " " + text + "\r\n"
	}
	return t.writeLocked([]byte(line))
}

// SendBytes writes a literal payload verbatim, with no added terminator.
func (t *Transport) SendBytes(payload []byte) *imaperr.Error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.writeLocked(payload)
}

func (t *Transport) writeLocked(b []byte) *imaperr.Error {
	if t.closed {
		return imaperr.New(imaperr.DisposedObject, "Transport.Send", "transport is closed", nil)
	}
	_ = t.conn.SetWriteDeadline(t.deadline())
	if _, err := t.writeLog.Write(b); err != nil {
		t.timedOut = isTimeout(err)
		t.logger.MaybeMinorError(err)
		_ = t.closeLocked()
		return imaperr.New(imaperr.SendFailed, "Transport.Send",
			"write failed, last bytes sent: "+lalog.ByteArrayLogString(t.writeLog.Retrieve(true)), err)
	}
	return nil
}

// Poll returns true iff at least one byte is available to read within d.
func (t *Transport) Poll(d time.Duration) bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.closed {
		return false
	}
	if t.reader.Buffered() > 0 {
		return true
	}
	_ = t.conn.SetReadDeadline(time.Now().Add(d))
	defer t.conn.SetReadDeadline(t.deadline())
	_, err := t.reader.Peek(1)
	return err == nil
}

// Receive reads the next reply fragment: one CRLF-terminated line, transparently consuming any
// "{n}" literal markers within it. The returned message never contains a literal marker; the
// literal blobs are returned in order in literals.
func (t *Transport) Receive() (tag Tag, status, message string, literals [][]byte, rerr *imaperr.Error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.closed {
		rerr = imaperr.New(imaperr.DisposedObject, "Transport.Receive", "transport is closed", nil)
		return
	}
	_ = t.conn.SetReadDeadline(t.deadline())

	firstSegment, err := t.readSegment()
	if err != nil {
		rerr = t.receiveError(err)
		return
	}
	fields := strings.SplitN(firstSegment, " ", 3)
	if len(fields) < 2 {
		rerr = imaperr.New(imaperr.UnexpectedTag, "Transport.Receive", "malformed reply line: "+firstSegment, nil)
		return
	}
	tag, perr := parseTag(fields[0])
	if perr != nil {
		rerr = imaperr.New(imaperr.UnexpectedTag, "Transport.Receive", "malformed tag: "+fields[0], nil)
		return
	}
	status = fields[1]
	rest := ""
	if len(fields) == 3 {
		rest = fields[2]
	}

	var b strings.Builder
	for {
		m := literalMarker.FindStringSubmatch(rest)
		if m == nil {
			b.WriteString(rest)
			break
		}
		b.WriteString(rest[:len(rest)-len(m[0])])
		n, _ := strconv.ParseUint(m[1], 10, 32)
		blob := make([]byte, n)
		if _, err := io.ReadFull(t.reader, blob); err != nil {
			rerr = t.receiveError(err)
			return
		}
		literals = append(literals, blob)
		rest, err = t.readSegment()
		if err != nil {
			rerr = t.receiveError(err)
			return
		}
	}
	message = b.String()
	return
}

// readSegment reads bytes up to and including the next CRLF and returns the content without
// the terminator.
func (t *Transport) readSegment() (string, error) {
	line, err := t.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (t *Transport) receiveError(err error) *imaperr.Error {
	t.timedOut = isTimeout(err)
	t.logger.MaybeMinorError(err)
	_ = t.closeLocked()
	return imaperr.New(imaperr.ReceiveFailed, "Transport.Receive",
		"read failed, last bytes received: "+lalog.ByteArrayLogString(t.readLog.Retrieve(true)), err)
}

func parseTag(s string) (Tag, error) {
	switch s {
	case "*":
		return Tag{Kind: TagUntagged}, nil
	case "+":
		return Tag{Kind: TagContinuation}, nil
	default:
		// Accept any hex casing on receive, per the tag-representation Open Question.
		v, err := strconv.ParseUint(strings.ToLower(s), 16, 32)
		if err != nil {
			return Tag{}, err
		}
		if v == 0 {
			return Tag{Kind: TagUntagged}, nil
		}
		return Tag{Kind: TagValue, Value: uint32(v)}, nil
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}

// IsClosed reports whether the transport has been closed, either explicitly or as a result of
// an unrecoverable I/O error.
func (t *Transport) IsClosed() bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.closed
}

// IsTimeout reports whether the most recent I/O failure was a deadline expiry.
func (t *Transport) IsTimeout() bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.timedOut
}

// Close shuts the underlying connection down. It is idempotent.
func (t *Transport) Close() *imaperr.Error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if err := t.closeLocked(); err != nil {
		return imaperr.New(imaperr.CloseFailed, "Transport.Close", "failed to close connection", err)
	}
	return nil
}

func (t *Transport) closeLocked() error {
	if t.closed {
		return nil
	}
	t.closed = true
	return t.conn.Close()
}
