// Package imapc is a client library for IMAP4rev1 (RFC 3501) with the UIDPLUS, NAMESPACE,
// QUOTA and ACL extensions. Connection is the facade that owns the socket and wires together
// transport, protocol, the command pipeline and the typed command constructors; application code
// builds commands via the command package, queues and executes them via the embedded Factory,
// and reads results off the typed Command accessors.
package imapc

import (
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	"golang.org/x/net/idna"

	"github.com/tacheron/imapc/command"
	"github.com/tacheron/imapc/credentials"
	"github.com/tacheron/imapc/discovery"
	"github.com/tacheron/imapc/imaperr"
	"github.com/tacheron/imapc/lalog"
	"github.com/tacheron/imapc/pipeline"
	"github.com/tacheron/imapc/protocol"
	"github.com/tacheron/imapc/transport"
)

// MonitorLevel classifies a Callback.Monitor message, mirroring the lineage's own log-level
// conventions (Info for routine activity, Warning for recoverable trouble).
type MonitorLevel int

const (
	MonitorInfo MonitorLevel = iota
	MonitorWarning
)

// Callback is the single object a Connection reports to. Every method returns a bool; true
// suppresses the library's own default handling (console logging via lalog, or returning the
// error to the caller), matching §6.
type Callback interface {
	Monitor(level MonitorLevel, source, message string) bool
	Progress(percent int) bool
	Message(existsCount uint32) bool
	Closed() bool
	Request(tag uint32, commandText string) bool
	Result(reply *protocol.Record) bool
	Error(err *imaperr.Error) bool
}

// NopCallback implements Callback with every method returning false, i.e. "do the library's
// default thing". Embed it to implement only the methods a caller actually cares about.
type NopCallback struct{}

func (NopCallback) Monitor(MonitorLevel, string, string) bool { return false }
func (NopCallback) Progress(int) bool                         { return false }
func (NopCallback) Message(uint32) bool                       { return false }
func (NopCallback) Closed() bool                               { return false }
func (NopCallback) Request(uint32, string) bool                { return false }
func (NopCallback) Result(*protocol.Record) bool               { return false }
func (NopCallback) Error(*imaperr.Error) bool                  { return false }

// Connection owns one socket and the full stack of layers built on top of it: Transport,
// Protocol, and (once established) a pipeline.Factory. See SPEC_FULL.md §3 "Connection".
type Connection struct {
	mutex sync.Mutex

	host    string
	port    int
	tlsMode protocol.TLSMode

	tr          *transport.Transport
	proto       *protocol.Protocol
	factory     *pipeline.Factory
	health      *healthServer
	logger      *lalog.Logger
	progress    *progressStack
	callback    Callback
	credentials credentials.Provider
	closed      bool
}

// Connect dials cfg's server (resolving host/port through AutoDiscoverDomain or the static port
// table), performs the greeting and TLS handshake appropriate to cfg.TLSMode, and returns a
// ready-to-use Connection. It does not log in; call Login explicitly.
func Connect(cfg *Config, timeoutSecs int, cb Callback) (*Connection, *imaperr.Error) {
	if cb == nil {
		cb = NopCallback{}
	}
	host, port, tlsMode, err := resolveEndpoint(cfg)
	if err != nil {
		return nil, err
	}
	asciiHost, idnaErr := idna.Lookup.ToASCII(host)
	if idnaErr == nil {
		host = asciiHost
	}

	timeout := time.Duration(timeoutSecs) * time.Second
	tr, err := transport.Dial(transport.DialOptions{Host: host, Port: port, Timeout: timeout, ProxyURL: cfg.ProxyURL})
	if err != nil {
		return nil, err
	}

	creds := cfg.Credentials
	if creds == nil {
		creds = credentials.Static{Username: cfg.AuthUsername, Password: cfg.AuthPassword}
	}
	conn := &Connection{
		host:        host,
		port:        port,
		tlsMode:     tlsMode,
		tr:          tr,
		logger:      &lalog.Logger{ComponentName: "imapc", ComponentID: []lalog.LoggerIDField{{Key: "Host", Value: host}, {Key: "Port", Value: port}}},
		callback:    cb,
		credentials: creds,
	}
	conn.progress = newProgressStack(conn.reportProgress)

	if tlsMode == protocol.ImplicitIMAPS {
		if err := conn.upgradeImplicitTLS(cfg.InsecureSkipVerify); err != nil {
			return nil, err
		}
	}

	conn.proto = protocol.New(conn.tr)
	conn.proto.ExistsReporting = true
	conn.proto.OnExists = func(n uint32) { conn.onExists(n) }
	conn.proto.OnClosed = func() { conn.onClosed() }

	if _, err := conn.proto.Greet(); err != nil {
		_ = conn.tr.Close()
		return nil, err
	}

	if tlsMode != protocol.ImplicitIMAPS {
		if err := conn.proto.StartTLS(tlsMode, host, cfg.InsecureSkipVerify); err != nil {
			_ = conn.tr.Close()
			return nil, err
		}
	}

	conn.factory = pipeline.New(conn.proto, nil)
	conn.reportMonitor(MonitorInfo, "connect", fmt.Sprintf("connected to %s:%d", host, port))

	if cfg.HealthCheckAddr != "" {
		h, err := startHealthServer(cfg.HealthCheckAddr, conn.logger)
		if err != nil {
			conn.reportError(err)
		} else {
			conn.health = h
			conn.reportMonitor(MonitorInfo, "health", "listening on "+cfg.HealthCheckAddr)
		}
	}

	return conn, nil
}

// resolveEndpoint determines host, port and TLS mode from cfg, trying AutoDiscoverDomain first
// and falling back to the static Host/Port/TLSMode fields.
func resolveEndpoint(cfg *Config) (host string, port int, mode protocol.TLSMode, err *imaperr.Error) {
	if cfg.AutoDiscoverDomain != "" {
		targets, lookupErr := discovery.Lookup(cfg.AutoDiscoverDomain, "")
		if lookupErr == nil && len(targets) > 0 {
			t := targets[0]
			m := cfg.TLSMode
			if t.TLS {
				m = protocol.ImplicitIMAPS
			}
			return t.Host, t.Port, m, nil
		}
	}
	port, implicitTLS, perr := resolvedPort(cfg.Port)
	if perr != nil {
		return "", 0, 0, perr
	}
	mode := cfg.TLSMode
	if implicitTLS {
		mode = protocol.ImplicitIMAPS
	}
	return cfg.Host, port, mode, nil
}

// Login authenticates with the connection's credential provider (cfg.Credentials, defaulting to
// cfg's plain AuthUsername/AuthPassword) and selects mailbox. Pass "" to skip SELECT.
func (c *Connection) Login(mailbox string) *imaperr.Error {
	user, pass, err := c.credentials.Resolve()
	if err != nil {
		return err
	}
	login, err := command.NewLogin(user, pass)
	if err != nil {
		return err
	}
	if err := c.runToCompletion(login); err != nil {
		return err
	}
	if !login.Reply().Succeeded() {
		return imaperr.New(imaperr.CannotConnect, "Connection.Login", "server rejected LOGIN", nil)
	}
	if err := c.factory.Dispose(login, false); err != nil {
		return err
	}
	if mailbox == "" {
		return nil
	}
	sel, err := command.NewSelect(mailbox)
	if err != nil {
		return err
	}
	if err := c.runToCompletion(sel); err != nil {
		return err
	}
	if !sel.Reply().Succeeded() {
		return imaperr.New(imaperr.CannotConnect, "Connection.Login", "server rejected SELECT "+mailbox, nil)
	}
	return c.factory.Dispose(sel, false)
}

// runToCompletion binds cmd to the connection's factory and runs it to completion, reporting
// Request/Result through the callback.
func (c *Connection) runToCompletion(cmd *command.Command) *imaperr.Error {
	cmd.BindEngine(c.factory)
	if err := cmd.Queue(); err != nil {
		return err
	}
	if err := cmd.Execute(true); err != nil {
		c.reportCommandError(cmd, err)
		return err
	}
	_ = c.callback.Request(cmd.Tag(), cmd.Name)
	_ = c.callback.Result(cmd.Reply())
	return nil
}

// Factory exposes the underlying pipeline factory for callers building and queuing their own
// commands directly.
func (c *Connection) Factory() *pipeline.Factory { return c.factory }

// LastWarning returns the most recent warning logged process-wide (across every Connection in
// this process), for a caller polling connection health without scraping stderr.
func (c *Connection) LastWarning() (string, bool) { return lalog.LatestWarnings.Latest() }

// SuppressedWarningActors lists the actors whose repeated warnings are currently being
// de-duplicated into silence by the process-wide log rate limiter.
func (c *Connection) SuppressedWarningActors() []string { return lalog.SuppressedActors() }

// Progress exposes the connection's progress-reporting stack (§4.6).
func (c *Connection) Progress() *progressStack { return c.progress }

func (c *Connection) reportProgress(percent int) bool { return c.callback.Progress(percent) }

func (c *Connection) onExists(n uint32) { c.callback.Message(n) }

func (c *Connection) onClosed() {
	c.mutex.Lock()
	c.closed = true
	c.mutex.Unlock()
	if c.health != nil {
		c.health.markUnavailable()
	}
	c.callback.Closed()
}

func (c *Connection) reportError(err *imaperr.Error) {
	if !c.callback.Error(err) {
		c.logger.Warning(nil, err, "%s", err.Error())
	}
}

// reportCommandError reports the failure of a specific in-flight command, falling back to a
// tag-correlated warning (rather than reportError's generic one) whose actor names the command
// and its tag ("NAME#tag"), so the log line identifies which command failed.
func (c *Connection) reportCommandError(cmd *command.Command, err *imaperr.Error) {
	if c.callback.Error(err) {
		return
	}
	c.logger.Tagged(cmd.Tag(), cmd.Name, err, "command failed")
}

// reportMonitor surfaces a routine or recoverable-trouble notice through the callback, falling
// back to the logger (at Quota-gated frequency, to avoid flooding stderr with repeated connect/
// health notices) when the callback declines to handle it.
func (c *Connection) reportMonitor(level MonitorLevel, source, message string) {
	if c.callback.Monitor(level, source, message) {
		return
	}
	if c.logger.Quota() <= 0 {
		return
	}
	if level == MonitorWarning {
		c.logger.Warning(source, nil, "%s", message)
	} else {
		c.logger.Info(source, nil, "%s", message)
	}
}

// Close tears the connection down: stops the optional health server, force-disposes every
// attached command, then closes the transport. Idempotent.
func (c *Connection) Close() *imaperr.Error {
	c.mutex.Lock()
	if c.closed {
		c.mutex.Unlock()
		return nil
	}
	c.closed = true
	c.mutex.Unlock()

	if c.health != nil {
		c.health.markUnavailable()
		c.health.stop()
	}
	if c.factory != nil {
		_ = c.factory.Dispose(nil, true)
	}
	if err := c.tr.Close(); err != nil {
		return err
	}
	c.reportMonitor(MonitorInfo, "close", "connection closed")
	c.callback.Closed()
	return nil
}

// upgradeImplicitTLS performs the TLS handshake immediately, before the greeting, for
// ImplicitIMAPS connections (e.g. port 993).
func (c *Connection) upgradeImplicitTLS(insecureSkipVerify bool) *imaperr.Error {
	tlsConn := tls.Client(c.tr.Conn(), &tls.Config{ServerName: c.host, InsecureSkipVerify: insecureSkipVerify})
	if err := tlsConn.Handshake(); err != nil {
		return imaperr.New(imaperr.CannotConnect, "Connection.upgradeImplicitTLS", "implicit TLS handshake failed", err)
	}
	c.tr.Upgrade(tlsConn)
	return nil
}
