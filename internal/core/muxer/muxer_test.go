package muxer

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPair(t *testing.T) (*Session, *Session) {
	t.Helper()
	a, b := net.Pipe()
	client, err := New(a, false, DefaultConfig())
	require.NoError(t, err)
	server, err := New(b, true, DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.Close()
		_ = server.Close()
	})
	return client, server
}

func TestSession_IndependentStreams(t *testing.T) {
	client, server := newPair(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s1, err := client.OpenStream(ctx)
	require.NoError(t, err)
	s2, err := client.OpenStream(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, s1.ID(), s2.ID())

	// yamux 在首次写入时才发送 SYN
	_, err = s1.Write([]byte("one"))
	require.NoError(t, err)
	_, err = s2.Write([]byte("two"))
	require.NoError(t, err)

	r1, err := server.AcceptStream()
	require.NoError(t, err)
	r2, err := server.AcceptStream()
	require.NoError(t, err)

	buf := make([]byte, 3)
	_, err = io.ReadFull(r1, buf)
	require.NoError(t, err)
	assert.Equal(t, "one", string(buf))

	// 关闭一条流不影响另一条
	require.NoError(t, s1.Close())
	require.NoError(t, s1.Close())

	_, err = io.ReadFull(r2, buf)
	require.NoError(t, err)
	assert.Equal(t, "two", string(buf))

	_, err = s2.Write([]byte("more"))
	require.NoError(t, err)
	more := make([]byte, 4)
	_, err = io.ReadFull(r2, more)
	require.NoError(t, err)
	assert.Equal(t, "more", string(more))

	// r1 读到对端 FIN
	_, err = r1.Read(buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestSession_CloseCascades(t *testing.T) {
	client, server := newPair(t)

	s, err := client.OpenStream(context.Background())
	require.NoError(t, err)

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())
	assert.True(t, client.IsClosed())

	_, err = s.Write([]byte("x"))
	assert.Error(t, err)

	select {
	case <-server.CloseChan():
	case <-time.After(5 * time.Second):
		t.Fatal("server session not closed after peer close")
	}

	_, err = client.OpenStream(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestStream_Reset(t *testing.T) {
	client, _ := newPair(t)
	s, err := client.OpenStream(context.Background())
	require.NoError(t, err)

	require.NoError(t, s.Reset())
	_, err = s.Read(make([]byte, 1))
	assert.Error(t, err)
}
