package imapc

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tacheron/imapc/command"
	"github.com/tacheron/imapc/imaperr"
	"github.com/tacheron/imapc/lalog"
	"github.com/tacheron/imapc/pipeline"
	"github.com/tacheron/imapc/protocol"
	"github.com/tacheron/imapc/transport"
	"github.com/tacheron/imapc/transport/transporttest"
)

// testConnection builds a Connection directly over a net.Pipe, bypassing Connect's real dial,
// for tests that only need the facade's own bookkeeping (Close cascade, callback wiring).
func testConnection(t *testing.T) (*Connection, *transporttest.Server, *recordingCallback) {
	t.Helper()
	client, server := net.Pipe()
	tr := transport.NewFromConn(client, 2*time.Second)
	proto := protocol.New(tr)
	cb := &recordingCallback{}
	c := &Connection{
		tr:       tr,
		proto:    proto,
		factory:  pipeline.New(proto, nil),
		logger:   &lalog.Logger{ComponentName: "imapc-test"},
		callback: cb,
	}
	proto.OnClosed = func() { c.onClosed() }
	return c, transporttest.NewServer(t, server), cb
}

type recordingCallback struct {
	NopCallback
	closedCalls int
	errors      []string
	monitors    []string
}

func (r *recordingCallback) Closed() bool { r.closedCalls++; return false }
func (r *recordingCallback) Error(err *imaperr.Error) bool {
	r.errors = append(r.errors, err.Error())
	return false
}
func (r *recordingCallback) Monitor(level MonitorLevel, source, message string) bool {
	r.monitors = append(r.monitors, source+": "+message)
	return true
}

func TestConnection_CloseIsIdempotent(t *testing.T) {
	c, _, cb := testConnection(t)
	require.Nil(t, c.Close())
	require.Nil(t, c.Close())
	assert.Equal(t, 1, cb.closedCalls, "Closed callback should fire exactly once across repeated Close calls")
}

func TestConnection_CloseForceDisposesRunningCommands(t *testing.T) {
	c, srv, _ := testConnection(t)
	cmd, err := command.NewNoop()
	require.Nil(t, err)
	cmd.BindEngine(c.factory)
	require.Nil(t, cmd.Queue())
	go srv.ReadLine()
	require.Nil(t, cmd.Execute(false))
	assert.Equal(t, command.Running, cmd.State())

	require.Nil(t, c.Close())
	assert.Equal(t, command.Disposed, cmd.State(), "Close must force-dispose even a still-running command")
	_ = srv
}

func TestConnection_CloseReportsMonitorNotice(t *testing.T) {
	c, _, cb := testConnection(t)
	require.Nil(t, c.Close())
	require.Len(t, cb.monitors, 1)
	assert.Equal(t, "close: connection closed", cb.monitors[0])
}

func TestConnection_ReportCommandErrorFallsBackToTaggedLogWhenCallbackDeclines(t *testing.T) {
	c, _, _ := testConnection(t)
	cmd, err := command.NewNoop()
	require.Nil(t, err)
	cmd.BindEngine(c.factory)
	require.Nil(t, cmd.Queue())
	ierr := imaperr.New(imaperr.SendFailed, "test", "boom", nil)
	// recordingCallback.Error returns false (declines), so this must fall through to
	// logger.Tagged without panicking.
	c.reportCommandError(cmd, ierr)
}
