package tcp

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-meshchat/internal/core/transport"
)

func TestCanDial(t *testing.T) {
	tr := New()
	assert.True(t, tr.CanDial(ma.StringCast("/ip4/127.0.0.1/tcp/4001")))
	assert.True(t, tr.CanDial(ma.StringCast("/dns4/example.com/tcp/4001")))
	assert.False(t, tr.CanDial(ma.StringCast("/ip4/127.0.0.1/tcp/4001/ws")))
	assert.False(t, tr.CanDial(ma.StringCast("/ip4/127.0.0.1/udp/4001/quic-v1")))
}

func TestListenDialAccept(t *testing.T) {
	tr := New()
	ln, err := tr.Listen(ma.StringCast("/ip4/127.0.0.1/tcp/0"))
	require.NoError(t, err)

	port, err := ln.Multiaddr().ValueForProtocol(ma.P_TCP)
	require.NoError(t, err)
	assert.NotEqual(t, "0", port)

	go func() {
		c, err := ln.Accept()
		if err == nil {
			_, _ = c.Write([]byte("hi"))
			_ = c.Close()
		}
	}()

	c, err := tr.Dial(context.Background(), ln.Multiaddr())
	require.NoError(t, err)
	b, err := io.ReadAll(c)
	require.NoError(t, err)
	assert.Equal(t, "hi", string(b))

	require.NoError(t, ln.Close())
	require.NoError(t, ln.Close())
	for i := 0; i < 2; i++ {
		_, err = ln.Accept()
		assert.ErrorIs(t, err, transport.ErrListenerClosed)
	}
}

func TestDial_Refused(t *testing.T) {
	// 先占一个端口再释放，得到一个大概率无人监听的端口
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr, err := ma.NewMultiaddr("/ip4/127.0.0.1/tcp/" + portOf(l.Addr()))
	require.NoError(t, err)
	require.NoError(t, l.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = New().Dial(ctx, addr)
	require.Error(t, err)

	var de *transport.DialError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, transport.Refused, de.Kind)
}

func portOf(a net.Addr) string {
	_, p, _ := net.SplitHostPort(a.String())
	return p
}
