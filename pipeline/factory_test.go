package pipeline

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tacheron/imapc/command"
	"github.com/tacheron/imapc/protocol"
	"github.com/tacheron/imapc/transport"
	"github.com/tacheron/imapc/transport/transporttest"
)

func pipeFactory(t *testing.T) (*Factory, *transporttest.Server) {
	t.Helper()
	client, server := net.Pipe()
	tr := transport.NewFromConn(client, 2*time.Second)
	return New(protocol.New(tr), nil), transporttest.NewServer(t, server)
}

func TestFactory_DispatchByTagRegardlessOfOrder(t *testing.T) {
	f, srv := pipeFactory(t)
	c1, err := command.NewNoop()
	require.Nil(t, err)
	c1.BindEngine(f)
	c2, err := command.NewCheck()
	require.Nil(t, err)
	c2.BindEngine(f)

	require.Nil(t, c1.Queue())
	require.Nil(t, c2.Queue())

	go func() {
		srv.ReadLine() // "1 NOOP"
		srv.ReadLine() // "2 CHECK"
		srv.Send("2 OK CHECK completed") // reply out of order
		srv.Send("1 OK NOOP completed")
	}()
	require.Nil(t, f.ExecuteAll())

	require.Nil(t, f.ExecuteRunning())
	assert.Equal(t, command.Completed, c1.State())
	assert.Equal(t, command.Completed, c2.State())
	assert.Equal(t, uint32(1), c1.Tag())
	assert.Equal(t, uint32(2), c2.Tag())
}

func TestFactory_DisposeCascadeRejectsInFlight(t *testing.T) {
	f, srv := pipeFactory(t)
	c, err := command.NewNoop()
	require.Nil(t, err)
	c.BindEngine(f)
	require.Nil(t, c.Queue())
	go srv.ReadLine()
	require.Nil(t, c.Execute(false))

	disposeErr := f.Dispose(nil, false)
	require.NotNil(t, disposeErr)
	assert.Equal(t, "CommandBusy", disposeErr.Kind.String())

	go srv.Send("1 OK done")
	require.Nil(t, f.ExecuteRunning())
	require.Nil(t, f.Dispose(nil, false))
	assert.Equal(t, command.Disposed, c.State())
}

func TestFactory_DisposeSkipsAutoDisposeFalseCommands(t *testing.T) {
	f, srv := pipeFactory(t)
	kept, err := command.NewNoop()
	require.Nil(t, err)
	kept.SetAutoDispose(false)
	kept.BindEngine(f)
	reclaimed, err := command.NewCheck()
	require.Nil(t, err)
	reclaimed.BindEngine(f)

	require.Nil(t, kept.Queue())
	require.Nil(t, reclaimed.Queue())
	go func() {
		srv.ReadLine()
		srv.ReadLine()
		srv.Send("1 OK done")
		srv.Send("2 OK done")
	}()
	require.Nil(t, f.ExecuteAll())
	require.Nil(t, f.ExecuteRunning())

	require.Nil(t, f.Dispose(nil, false))
	assert.Equal(t, command.Completed, kept.State(), "AutoDispose()==false command must survive a non-forced Dispose")
	assert.Equal(t, command.Disposed, reclaimed.State())

	require.Nil(t, f.Dispose(nil, true))
	assert.Equal(t, command.Disposed, kept.State(), "force=true must still reclaim it")
}

func TestFactory_BulkHelperSurvivesUnrelatedDispose(t *testing.T) {
	f, srv := pipeFactory(t)
	helper, err := f.NewBulkHelper("NOOP", 2)
	require.Nil(t, err)
	first, err := helper.Next()
	require.Nil(t, err)
	require.Nil(t, first.Queue())

	go func() {
		srv.ReadLine()
		srv.Send("1 OK CAPABILITY completed")
	}()
	// An unrelated Capabilities call, which disposes its own command internally, must not
	// reclaim the ring.
	_, capErr := f.Capabilities()
	require.Nil(t, capErr)
	assert.Equal(t, command.Queued, first.State())
}

func TestFactory_CapabilitiesCachedAfterFirstFetch(t *testing.T) {
	f, srv := pipeFactory(t)
	go func() {
		srv.ReadLine()
		srv.Send("* CAPABILITY IMAP4rev1 STARTTLS UIDPLUS")
		srv.Send("1 OK CAPABILITY completed")
	}()
	caps, err := f.Capabilities()
	require.Nil(t, err)
	assert.Equal(t, []string{"IMAP4rev1", "STARTTLS", "UIDPLUS"}, caps)

	// second call must not touch the wire again
	caps2, err := f.Capabilities()
	require.Nil(t, err)
	assert.Equal(t, caps, caps2)
}

func TestFactory_HierarchyDelimiter(t *testing.T) {
	f, srv := pipeFactory(t)
	go func() {
		srv.ReadLine()
		srv.Send(`* LIST (\Noselect) "/" ""`)
		srv.Send("1 OK LIST completed")
	}()
	delim, err := f.HierarchyDelimiter()
	require.Nil(t, err)
	assert.Equal(t, "/", delim)
}

func TestFactory_TraceEmittedOnDispose(t *testing.T) {
	f, srv := pipeFactory(t)
	f.TraceEnabled = true
	var traces []*CommandTrace
	f.OnTrace = func(ct *CommandTrace) { traces = append(traces, ct) }

	c, err := command.NewNoop()
	require.Nil(t, err)
	c.BindEngine(f)
	require.Nil(t, c.Queue())
	go srv.ReadLine()
	require.Nil(t, c.Execute(false))
	go srv.Send("1 OK done")
	require.Nil(t, f.ExecuteRunning())
	require.Nil(t, f.Dispose(nil, false))

	require.Len(t, traces, 1)
	assert.Equal(t, "NOOP", traces[0].Name)
	assert.Equal(t, "Completed", traces[0].Status)
}
