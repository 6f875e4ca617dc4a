package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-meshchat/internal/discovery/dns"
	"github.com/dep2p/go-meshchat/internal/util/logger"
	"github.com/dep2p/go-meshchat/pkg/types"
)

var log = logger.Logger("discovery.bootstrap")

// ErrInvalidAddr 引导地址无法解析
var ErrInvalidAddr = errors.New("bootstrap: invalid address")

// Sink 接收候选地址
type Sink func(types.PeerAddr)

// Config 引导配置
type Config struct {
	// Peers 引导地址列表
	Peers []string

	// Interval 重新解析间隔
	Interval time.Duration

	// ResolveTimeout 单轮解析超时
	ResolveTimeout time.Duration
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		Interval:       5 * time.Minute,
		ResolveTimeout: 30 * time.Second,
	}
}

// Parse 解析引导列表，任一项无效即返回错误
func Parse(list []string) ([]ma.Multiaddr, error) {
	out := make([]ma.Multiaddr, 0, len(list))
	for _, s := range list {
		m, err := ma.NewMultiaddr(s)
		if err != nil {
			return nil, fmt.Errorf("%w %q: %v", ErrInvalidAddr, s, err)
		}
		if _, err := types.SplitPeerAddr(m); err != nil {
			return nil, fmt.Errorf("%w %q: %v", ErrInvalidAddr, s, err)
		}
		out = append(out, m)
	}
	return out, nil
}

// Resolve 把引导地址展开为候选
//
// r 为 nil 时 DNS 形式的地址被跳过。部分失败时返回已得到的候选和合并后的错误。
func Resolve(ctx context.Context, r *dns.Resolver, addrs []ma.Multiaddr) ([]types.PeerAddr, error) {
	var (
		mu   sync.Mutex
		out  []types.PeerAddr
		errs error
		seen = make(map[string]struct{})
	)
	add := func(m ma.Multiaddr) {
		pa, err := types.SplitPeerAddr(m)
		if err != nil {
			errs = multierr.Append(errs, err)
			return
		}
		if _, ok := seen[pa.Key()]; ok {
			return
		}
		seen[pa.Key()] = struct{}{}
		out = append(out, pa)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, m := range addrs {
		m := m
		if !dns.IsDNSAddr(m) {
			mu.Lock()
			add(m)
			mu.Unlock()
			continue
		}
		if r == nil {
			log.Debug("没有 DNS 解析器，跳过", "addr", m)
			continue
		}
		g.Go(func() error {
			resolved, err := r.Resolve(gctx, m)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("bootstrap: resolve %s: %w", m, err))
				return nil
			}
			for _, a := range resolved {
				add(a)
			}
			return nil
		})
	}
	_ = g.Wait()
	return out, errs
}

// Service 周期性解析引导列表
type Service struct {
	cfg      Config
	addrs    []ma.Multiaddr
	resolver *dns.Resolver
	sink     Sink
	clock    clock.Clock

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool
}

// Option 服务选项
type Option func(*Service)

// WithClock 替换时钟，测试用
func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// New 创建服务，引导列表在此时校验
func New(cfg Config, resolver *dns.Resolver, sink Sink, opts ...Option) (*Service, error) {
	addrs, err := Parse(cfg.Peers)
	if err != nil {
		return nil, err
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.ResolveTimeout <= 0 {
		cfg.ResolveTimeout = DefaultConfig().ResolveTimeout
	}
	s := &Service{cfg: cfg, addrs: addrs, resolver: resolver, sink: sink, clock: clock.New()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start 启动后台解析，立即执行第一轮。重复调用无副作用
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil || s.stopped || len(s.addrs) == 0 {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	ticker := s.clock.Ticker(s.cfg.Interval)
	go s.loop(ctx, ticker)
}

func (s *Service) loop(ctx context.Context, ticker *clock.Ticker) {
	defer close(s.done)
	defer ticker.Stop()
	for {
		s.round(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// round 解析一轮并推送候选
func (s *Service) round(ctx context.Context) {
	rctx, cancel := context.WithTimeout(ctx, s.cfg.ResolveTimeout)
	defer cancel()
	candidates, err := Resolve(rctx, s.resolver, s.addrs)
	if err != nil {
		log.Warn("部分引导地址解析失败", "err", err)
	}
	log.Debug("引导地址解析完成", "candidates", len(candidates))
	for _, pa := range candidates {
		if ctx.Err() != nil {
			return
		}
		s.sink(pa)
	}
}

// Stop 停止后台解析，重复调用无副作用
func (s *Service) Stop() error {
	s.mu.Lock()
	s.stopped = true
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
	return nil
}
