package websocket

import (
	"io"
	"net"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
)

// closeFrameTimeout 关闭帧最多等待写锁的时间
const closeFrameTimeout = 500 * time.Millisecond

// conn 把 websocket 二进制消息流适配为 net.Conn
type conn struct {
	ws *ws.Conn

	readMu sync.Mutex
	reader io.Reader

	writeMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

var _ net.Conn = (*conn)(nil)

func newConn(c *ws.Conn) *conn {
	return &conn{ws: c}
}

func (c *conn) Read(p []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	for {
		if c.reader == nil {
			typ, r, err := c.ws.NextReader()
			if err != nil {
				if ws.IsCloseError(err, ws.CloseNormalClosure, ws.CloseGoingAway) {
					return 0, io.EOF
				}
				return 0, err
			}
			if typ != ws.BinaryMessage {
				continue
			}
			c.reader = r
		}
		n, err := c.reader.Read(p)
		if err == io.EOF {
			c.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (c *conn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteMessage(ws.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close 尽力发送关闭帧后关闭底层连接，重复调用返回首次结果
//
// 可与阻塞中的 Write 并发调用，Write 随底层连接关闭返回。
func (c *conn) Close() error {
	c.closeOnce.Do(func() {
		_ = c.ws.WriteControl(ws.CloseMessage,
			ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
			time.Now().Add(closeFrameTimeout))
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}

func (c *conn) LocalAddr() net.Addr  { return c.ws.NetConn().LocalAddr() }
func (c *conn) RemoteAddr() net.Addr { return c.ws.NetConn().RemoteAddr() }

func (c *conn) SetDeadline(t time.Time) error {
	if err := c.ws.SetReadDeadline(t); err != nil {
		return err
	}
	return c.ws.SetWriteDeadline(t)
}

func (c *conn) SetReadDeadline(t time.Time) error  { return c.ws.SetReadDeadline(t) }
func (c *conn) SetWriteDeadline(t time.Time) error { return c.ws.SetWriteDeadline(t) }
