package swarm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dep2p/go-meshchat/internal/core/transport"
	"github.com/dep2p/go-meshchat/pkg/types"
)

// DialPeer 拨号并登记连接
//
// pa.ID 为空时不校验对端身份。已有到 pa.ID 的连接时直接返回该连接。
// 传输层失败返回 *transport.DialError，握手失败返回 *noise.HandshakeError。
func (s *Swarm) DialPeer(ctx context.Context, pa types.PeerAddr) (*Conn, error) {
	if s.closed.Load() {
		return nil, ErrSwarmClosed
	}
	if pa.ID == s.local {
		return nil, ErrDialToSelf
	}
	if !pa.ID.IsEmpty() {
		if c := s.Conn(pa.ID); c != nil {
			return c, nil
		}
	}
	if pa.Addr == nil {
		return nil, fmt.Errorf("swarm: dial %s: missing address", pa.ID.ShortString())
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.DialTimeout)
	defer cancel()

	raw, err := s.transports.Dial(ctx, pa.Addr)
	if err != nil {
		s.metrics.DialResult(false)
		log.Debug("拨号失败", "addr", pa.String(), "err", err)
		return nil, err
	}
	s.metrics.DialResult(true)

	start := time.Now()
	uc, err := s.upgrader.Upgrade(ctx, raw, types.DirOutbound, pa.ID)
	if err != nil {
		s.metrics.HandshakeFailed()
		log.Debug("出站握手失败", "addr", pa.String(), "err", err)
		return nil, err
	}
	s.metrics.HandshakeDone(time.Since(start))

	c, err := s.addConn(s.newConn(uc, pa.Addr))
	if errors.Is(err, ErrDuplicateConn) {
		return c, nil
	}
	return c, err
}

// Connect 在后台拨号，传输层失败按指数退避重试
//
// 同一地址同时只有一个后台拨号。握手失败不重试。
func (s *Swarm) Connect(pa types.PeerAddr) {
	if s.closed.Load() || pa.ID == s.local || pa.Addr == nil {
		return
	}
	if !pa.ID.IsEmpty() && s.Conn(pa.ID) != nil {
		return
	}
	key := pa.Key()
	s.dialsMu.Lock()
	if _, ok := s.pending[key]; ok || s.closed.Load() {
		s.dialsMu.Unlock()
		return
	}
	s.pending[key] = struct{}{}
	s.wg.Add(1)
	s.dialsMu.Unlock()

	go func() {
		defer s.wg.Done()
		defer func() {
			s.dialsMu.Lock()
			delete(s.pending, key)
			s.dialsMu.Unlock()
		}()
		s.dialWithRetry(pa)
	}()
}

func (s *Swarm) dialWithRetry(pa types.PeerAddr) {
	for attempt := 0; attempt < s.cfg.MaxDialAttempts; attempt++ {
		_, err := s.DialPeer(s.ctx, pa)
		if err == nil {
			return
		}
		var de *transport.DialError
		if !errors.As(err, &de) {
			if !errors.Is(err, context.Canceled) && !errors.Is(err, ErrSwarmClosed) {
				log.Warn("放弃拨号", "addr", pa.String(), "err", err)
			}
			return
		}
		wait := s.backoff.delay(attempt)
		log.Debug("稍后重试拨号", "addr", pa.String(), "kind", de.Kind, "attempt", attempt+1, "wait", wait)
		t := s.clock.Timer(wait)
		select {
		case <-s.ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
	log.Info("拨号次数用尽", "addr", pa.String(), "attempts", s.cfg.MaxDialAttempts)
}
