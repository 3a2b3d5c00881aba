package transport

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pipeTransport returns a Transport backed by one end of an in-memory net.Pipe, with the other
// end handed to the caller to play the server side.
func pipeTransport(t *testing.T) (*Transport, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	return newTransport(client, 2*time.Second), server
}

func TestReceive_SimpleTaggedReply(t *testing.T) {
	tr, server := pipeTransport(t)
	defer tr.Close()
	go func() {
		server.Write([]byte("1 OK LOGIN completed\r\n"))
	}()
	tag, status, message, literals, err := tr.Receive()
	require.Nil(t, err)
	assert.Equal(t, TagValue, tag.Kind)
	assert.Equal(t, uint32(1), tag.Value)
	assert.Equal(t, "OK", status)
	assert.Equal(t, "LOGIN completed", message)
	assert.Empty(t, literals)
}

func TestReceive_UntaggedAndContinuation(t *testing.T) {
	tr, server := pipeTransport(t)
	defer tr.Close()
	go func() {
		server.Write([]byte("* OK greeting\r\n"))
		server.Write([]byte("+ go ahead\r\n"))
	}()
	tag, _, message, _, err := tr.Receive()
	require.Nil(t, err)
	assert.Equal(t, TagUntagged, tag.Kind)
	assert.Equal(t, "greeting", message)

	tag, _, message, _, err = tr.Receive()
	require.Nil(t, err)
	assert.Equal(t, TagContinuation, tag.Kind)
	assert.Equal(t, "ahead", message)
}

func TestReceive_SingleLiteral(t *testing.T) {
	tr, server := pipeTransport(t)
	defer tr.Close()
	go func() {
		server.Write([]byte("* 1 FETCH (BODY[] {5}\r\nHello)\r\n"))
	}()
	_, _, message, literals, err := tr.Receive()
	require.Nil(t, err)
	assert.Equal(t, "FETCH (BODY[] )", message)
	require.Len(t, literals, 1)
	assert.Equal(t, "Hello", string(literals[0]))
}

func TestReceive_MultipleLiteralsInOneReply(t *testing.T) {
	tr, server := pipeTransport(t)
	defer tr.Close()
	go func() {
		server.Write([]byte("* 1 FETCH (A {3}\r\nabc B {3}\r\ndef)\r\n"))
	}()
	_, _, message, literals, err := tr.Receive()
	require.Nil(t, err)
	assert.Equal(t, "FETCH (A  B )", message)
	require.Len(t, literals, 2)
	assert.Equal(t, "abc", string(literals[0]))
	assert.Equal(t, "def", string(literals[1]))
}

func TestReceive_TagCaseInsensitive(t *testing.T) {
	tr, server := pipeTransport(t)
	defer tr.Close()
	go func() {
		server.Write([]byte("A OK done\r\n"))
	}()
	tag, _, _, _, err := tr.Receive()
	require.Nil(t, err)
	assert.Equal(t, TagValue, tag.Kind)
	assert.Equal(t, uint32(10), tag.Value)
}

func TestSend_TaggedAndRaw(t *testing.T) {
	tr, server := pipeTransport(t)
	defer tr.Close()
	read := make(chan string, 2)
	go func() {
		buf := make([]byte, 64)
		n, _ := server.Read(buf)
		read <- string(buf[:n])
		n, _ = server.Read(buf)
		read <- string(buf[:n])
	}()
	require.Nil(t, tr.Send(1, `LOGIN "alice" "pw"`))
	assert.Equal(t, "1 LOGIN \"alice\" \"pw\"\r\n", <-read)

	require.Nil(t, tr.Send(0, ""))
	assert.Equal(t, "\r\n", <-read)
}

func TestReceive_MalformedTagIsUnexpectedTag(t *testing.T) {
	tr, server := pipeTransport(t)
	defer tr.Close()
	go func() {
		server.Write([]byte("!!! OK oops\r\n"))
	}()
	_, _, _, _, err := tr.Receive()
	require.NotNil(t, err)
	assert.Equal(t, "UnexpectedTag", err.Kind.String())
}

func TestClose_IsIdempotent(t *testing.T) {
	tr, _ := pipeTransport(t)
	require.Nil(t, tr.Close())
	require.Nil(t, tr.Close())
	assert.True(t, tr.IsClosed())
}
