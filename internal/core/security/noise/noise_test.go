package noise

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-meshchat/internal/core/identity"
	"github.com/dep2p/go-meshchat/pkg/types"
)

func newTransport(t *testing.T) *Transport {
	t.Helper()
	id, err := identity.Generate()
	require.NoError(t, err)
	tr, err := New(id, DefaultConfig())
	require.NoError(t, err)
	return tr
}

type result struct {
	conn *Conn
	err  error
}

// handshakePair 在 net.Pipe 两端并发握手
func handshakePair(t *testing.T, init, resp *Transport, expectInit, expectResp types.PeerID) (result, result, net.Conn) {
	t.Helper()
	a, b := net.Pipe()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch := make(chan result, 1)
	go func() {
		c, err := resp.SecureInbound(ctx, b, expectResp)
		ch <- result{c, err}
	}()
	c, err := init.SecureOutbound(ctx, a, expectInit)
	return result{c, err}, <-ch, b
}

func TestHandshake_RoundTrip(t *testing.T) {
	alice, bob := newTransport(t), newTransport(t)

	ra, rb, _ := handshakePair(t, alice, bob, bob.LocalPeer(), "")
	require.NoError(t, ra.err)
	require.NoError(t, rb.err)
	defer ra.conn.Close()
	defer rb.conn.Close()

	assert.Equal(t, bob.LocalPeer(), ra.conn.RemotePeer())
	assert.Equal(t, alice.LocalPeer(), rb.conn.RemotePeer())
	assert.Equal(t, alice.LocalPeer(), ra.conn.LocalPeer())

	// 两端握手哈希一致，且每次握手不同
	assert.Len(t, ra.conn.HandshakeHash(), 32)
	assert.Equal(t, ra.conn.HandshakeHash(), rb.conn.HandshakeHash())
	ra2, rb2, _ := handshakePair(t, alice, bob, "", "")
	require.NoError(t, ra2.err)
	require.NoError(t, rb2.err)
	defer ra2.conn.Close()
	defer rb2.conn.Close()
	assert.NotEqual(t, ra.conn.HandshakeHash(), ra2.conn.HandshakeHash())

	// 超过单帧上限的数据要被拆帧
	big := make([]byte, 3*maxPlaintext+123)
	_, err := rand.Read(big)
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() {
		_, err := ra.conn.Write(big)
		errc <- err
	}()
	got := make([]byte, len(big))
	_, err = io.ReadFull(rb.conn, got)
	require.NoError(t, err)
	require.NoError(t, <-errc)
	assert.True(t, bytes.Equal(big, got))

	go func() {
		_, err := rb.conn.Write([]byte("pong"))
		errc <- err
	}()
	small := make([]byte, 4)
	_, err = io.ReadFull(ra.conn, small)
	require.NoError(t, err)
	require.NoError(t, <-errc)
	assert.Equal(t, "pong", string(small))
}

func TestHandshake_ExpectedPeerMismatch(t *testing.T) {
	alice, bob, carol := newTransport(t), newTransport(t), newTransport(t)

	ra, rb, _ := handshakePair(t, alice, bob, carol.LocalPeer(), "")
	require.Error(t, ra.err)
	require.Error(t, rb.err)

	var herr *HandshakeError
	require.True(t, errors.As(ra.err, &herr))
	assert.Equal(t, "verify", herr.Stage)
	assert.ErrorIs(t, ra.err, ErrPeerIDMismatch)
}

func TestHandshake_ResponderRejectsBadSignature(t *testing.T) {
	alice, bob := newTransport(t), newTransport(t)
	alice.sign = corrupted(alice.sign)

	ra, rb, raw := handshakePair(t, alice, bob, "", "")
	// 发起方已写完 msg3，自身握手视为完成
	require.NoError(t, ra.err)
	defer ra.conn.Close()

	require.Error(t, rb.err)
	assert.Nil(t, rb.conn)
	assert.ErrorIs(t, rb.err, ErrInvalidSignature)

	// 响应方的原始连接已关闭
	_, err := raw.Write([]byte{0})
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}

func TestHandshake_InitiatorRejectsBadSignature(t *testing.T) {
	alice, bob := newTransport(t), newTransport(t)
	bob.sign = corrupted(bob.sign)

	ra, rb, _ := handshakePair(t, alice, bob, "", "")
	assert.ErrorIs(t, ra.err, ErrInvalidSignature)
	assert.Error(t, rb.err)
}

func TestHandshake_ContextCancel(t *testing.T) {
	alice := newTransport(t)
	a, b := net.Pipe()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		// 读掉 msg1 后不再回应
		buf := make([]byte, 64)
		_, _ = b.Read(buf)
		cancel()
	}()
	_, err := alice.SecureOutbound(ctx, a, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPayload_Malformed(t *testing.T) {
	_, err := unmarshalPayload([]byte{0x0a, 0x05, 0x01})
	assert.ErrorIs(t, err, ErrBadPayload)

	_, err = unmarshalPayload(nil)
	assert.ErrorIs(t, err, ErrBadPayload)
}

// corrupted 返回翻转签名首字节的签名函数
func corrupted(sign func([]byte) []byte) func([]byte) []byte {
	return func(msg []byte) []byte {
		sig := sign(msg)
		sig[0] ^= 0xff
		return sig
	}
}
