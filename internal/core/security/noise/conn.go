package noise

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/flynn/noise"

	"github.com/dep2p/go-meshchat/pkg/types"
)

const (
	maxFrame     = 65535
	maxPlaintext = maxFrame - 16 // poly1305 tag
)

// Conn Noise 加密连接
type Conn struct {
	net.Conn

	send *noise.CipherState
	recv *noise.CipherState

	localPeer  types.PeerID
	remotePeer types.PeerID
	hash       []byte

	readMu  sync.Mutex
	pending []byte
	rbuf    []byte

	writeMu sync.Mutex
	wbuf    []byte
}

func newConn(c net.Conn, send, recv *noise.CipherState, local, remote types.PeerID, hash []byte) *Conn {
	return &Conn{Conn: c, send: send, recv: recv, localPeer: local, remotePeer: remote, hash: hash}
}

// LocalPeer 本地 PeerID
func (c *Conn) LocalPeer() types.PeerID { return c.localPeer }

// RemotePeer 握手确认的对端 PeerID
func (c *Conn) RemotePeer() types.PeerID { return c.remotePeer }

// HandshakeHash 握手结束时的哈希 h，两端相同且每条连接不同
func (c *Conn) HandshakeHash() []byte { return c.hash }

// Read 读取并解密一帧，帧内剩余部分留到下次
func (c *Conn) Read(p []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	for len(c.pending) == 0 {
		var hdr [2]byte
		if _, err := io.ReadFull(c.Conn, hdr[:]); err != nil {
			return 0, err
		}
		n := int(binary.BigEndian.Uint16(hdr[:]))
		if cap(c.rbuf) < n {
			c.rbuf = make([]byte, n)
		}
		ct := c.rbuf[:n]
		if _, err := io.ReadFull(c.Conn, ct); err != nil {
			return 0, err
		}
		pt, err := c.recv.Decrypt(ct[:0], nil, ct)
		if err != nil {
			return 0, fmt.Errorf("noise: decrypt: %w", err)
		}
		c.pending = pt
	}

	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

// Write 加密写出，超过单帧上限的数据会拆分
func (c *Conn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	written := 0
	for len(p) > 0 {
		chunk := p
		if len(chunk) > maxPlaintext {
			chunk = chunk[:maxPlaintext]
		}
		if cap(c.wbuf) < 2+len(chunk)+16 {
			c.wbuf = make([]byte, 2, 2+maxFrame)
		}
		frame, err := c.send.Encrypt(c.wbuf[:2], nil, chunk)
		if err != nil {
			return written, fmt.Errorf("noise: encrypt: %w", err)
		}
		binary.BigEndian.PutUint16(frame, uint16(len(frame)-2))
		if _, err := c.Conn.Write(frame); err != nil {
			return written, err
		}
		written += len(chunk)
		p = p[len(chunk):]
	}
	return written, nil
}
