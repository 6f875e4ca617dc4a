package swarm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-meshchat/internal/core/transport"
	"github.com/dep2p/go-meshchat/pkg/types"
)

// Listen 在全部地址上监听
//
// 任一地址失败时已经打开的监听器会被关闭，整体返回错误。
func (s *Swarm) Listen(addrs ...ma.Multiaddr) error {
	if s.closed.Load() {
		return ErrSwarmClosed
	}

	var (
		mu     sync.Mutex
		opened []transport.Listener
		g      errgroup.Group
	)
	for _, addr := range addrs {
		addr := addr
		g.Go(func() error {
			l, err := s.transports.Listen(addr)
			if err != nil {
				return fmt.Errorf("swarm: listen %s: %w", addr, err)
			}
			mu.Lock()
			opened = append(opened, l)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, l := range opened {
			_ = l.Close()
		}
		return err
	}

	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		for _, l := range opened {
			_ = l.Close()
		}
		return ErrSwarmClosed
	}
	s.listeners = append(s.listeners, opened...)
	s.wg.Add(len(opened))
	s.mu.Unlock()

	for _, l := range opened {
		log.Info("开始监听", "addr", l.Multiaddr())
		go s.acceptLoop(l)
	}
	return nil
}

func (s *Swarm) acceptLoop(l transport.Listener) {
	defer s.wg.Done()
	for {
		raw, err := l.Accept()
		if err != nil {
			if !errors.Is(err, transport.ErrListenerClosed) && !s.closed.Load() {
				log.Warn("监听器退出", "addr", l.Multiaddr(), "err", err)
			}
			return
		}
		s.wg.Add(1)
		go s.handleInbound(raw)
	}
}

// handleInbound 入站连接的握手和登记，对端身份不做预期
func (s *Swarm) handleInbound(raw net.Conn) {
	defer s.wg.Done()
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.DialTimeout)
	defer cancel()

	start := time.Now()
	uc, err := s.upgrader.Upgrade(ctx, raw, types.DirInbound, "")
	if err != nil {
		s.metrics.HandshakeFailed()
		log.Debug("入站握手失败", "remote", raw.RemoteAddr().String(), "err", err)
		return
	}
	s.metrics.HandshakeDone(time.Since(start))

	if _, err := s.addConn(s.newConn(uc, nil)); err != nil && !errors.Is(err, ErrDuplicateConn) {
		log.Debug("入站连接未登记", "peer", uc.RemotePeer().ShortString(), "err", err)
	}
}
