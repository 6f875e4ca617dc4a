package upgrader

import (
	"net"

	"github.com/dep2p/go-meshchat/internal/core/muxer"
	"github.com/dep2p/go-meshchat/internal/core/security/noise"
	"github.com/dep2p/go-meshchat/pkg/types"
)

// Conn 升级完成的连接
type Conn struct {
	*muxer.Session

	secure *noise.Conn
	dir    types.Direction
}

// LocalPeer 本地 PeerID
func (c *Conn) LocalPeer() types.PeerID { return c.secure.LocalPeer() }

// RemotePeer 对端 PeerID
func (c *Conn) RemotePeer() types.PeerID { return c.secure.RemotePeer() }

// HandshakeHash 安全握手哈希，两端一致
func (c *Conn) HandshakeHash() []byte { return c.secure.HandshakeHash() }

// Direction 连接方向
func (c *Conn) Direction() types.Direction { return c.dir }

// RemoteAddr 对端网络地址
func (c *Conn) RemoteAddr() net.Addr { return c.secure.RemoteAddr() }

// LocalAddr 本地网络地址
func (c *Conn) LocalAddr() net.Addr { return c.secure.LocalAddr() }
