package muxer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/hashicorp/yamux"
)

// ErrClosed 会话已关闭
var ErrClosed = errors.New("muxer: session closed")

// Session 一条连接上的 yamux 会话
type Session struct {
	s        *yamux.Session
	isServer bool
	closed   atomic.Bool
}

// New 在 conn 上建立会话。同一连接两端 isServer 必须相反
func New(conn net.Conn, isServer bool, cfg Config) (*Session, error) {
	var (
		s   *yamux.Session
		err error
	)
	if isServer {
		s, err = yamux.Server(conn, cfg.yamux())
	} else {
		s, err = yamux.Client(conn, cfg.yamux())
	}
	if err != nil {
		return nil, fmt.Errorf("muxer: %w", err)
	}
	return &Session{s: s, isServer: isServer}, nil
}

// OpenStream 打开新流，ctx 取消时放弃等待并关闭迟到的流
func (m *Session) OpenStream(ctx context.Context) (*Stream, error) {
	if m.IsClosed() {
		return nil, ErrClosed
	}
	type res struct {
		s   *yamux.Stream
		err error
	}
	ch := make(chan res, 1)
	go func() {
		s, err := m.s.OpenStream()
		ch <- res{s, err}
	}()
	select {
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("muxer: open stream: %w", r.err)
		}
		return &Stream{s: r.s}, nil
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.s != nil {
				_ = r.s.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// AcceptStream 阻塞直到对端打开新流或会话关闭
func (m *Session) AcceptStream() (*Stream, error) {
	s, err := m.s.AcceptStream()
	if err != nil {
		return nil, err
	}
	return &Stream{s: s}, nil
}

// Close 关闭会话及其所有流，重复调用无副作用
func (m *Session) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	return m.s.Close()
}

// IsClosed 是否已关闭（包括 keep-alive 失败导致的关闭）
func (m *Session) IsClosed() bool {
	return m.closed.Load() || m.s.IsClosed()
}

// CloseChan 会话关闭时被关闭
func (m *Session) CloseChan() <-chan struct{} {
	return m.s.CloseChan()
}

// NumStreams 当前打开的流数
func (m *Session) NumStreams() int {
	return m.s.NumStreams()
}

// Ping 测量往返时延
func (m *Session) Ping() (time.Duration, error) {
	return m.s.Ping()
}

// IsServer 会话角色
func (m *Session) IsServer() bool { return m.isServer }
