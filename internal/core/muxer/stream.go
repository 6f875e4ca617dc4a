package muxer

import (
	"sync/atomic"
	"time"

	"github.com/hashicorp/yamux"
)

// Stream 一条逻辑流
type Stream struct {
	s      *yamux.Stream
	closed atomic.Bool
}

func (s *Stream) Read(p []byte) (int, error)  { return s.s.Read(p) }
func (s *Stream) Write(p []byte) (int, error) { return s.s.Write(p) }

// ID yamux 流 ID（会话内唯一）
func (s *Stream) ID() uint32 { return s.s.StreamID() }

// Close 半关闭写端并释放流，重复调用无副作用
func (s *Stream) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.s.Close()
}

// Reset 立即放弃流：后续读写立刻失败
func (s *Stream) Reset() error {
	_ = s.s.SetDeadline(time.Unix(1, 0))
	return s.Close()
}

func (s *Stream) SetDeadline(t time.Time) error      { return s.s.SetDeadline(t) }
func (s *Stream) SetReadDeadline(t time.Time) error  { return s.s.SetReadDeadline(t) }
func (s *Stream) SetWriteDeadline(t time.Time) error { return s.s.SetWriteDeadline(t) }
