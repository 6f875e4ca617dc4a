package mdns

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/mdns"
	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"

	"github.com/dep2p/go-meshchat/internal/util/logger"
	"github.com/dep2p/go-meshchat/pkg/types"
)

var log = logger.Logger("discovery.mdns")

const (
	dnsaddrPrefix = "dnsaddr="

	// 单条 TXT 记录的上限
	maxTXTLen = 255
)

// ErrNoAddrs 没有可广播的地址
var ErrNoAddrs = errors.New("mdns: no advertisable addresses")

// Sink 接收发现的地址
type Sink func(types.PeerAddr)

// Config mDNS 配置
type Config struct {
	ServiceTag    string
	Domain        string
	QueryInterval time.Duration
	QueryTimeout  time.Duration
	DisableIPv6   bool
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		ServiceTag:    "_meshchat._udp",
		Domain:        "local.",
		QueryInterval: time.Minute,
		QueryTimeout:  5 * time.Second,
		DisableIPv6:   true,
	}
}

// Service 广播本节点并查询其他节点
type Service struct {
	cfg   Config
	local types.PeerID
	addrs func() []ma.Multiaddr
	sink  Sink

	mu     sync.Mutex
	server *mdns.Server
	stop   chan struct{}
	done   chan struct{}
}

// New 创建服务；addrs 返回当前监听地址，Start 时读取
func New(cfg Config, local types.PeerID, addrs func() []ma.Multiaddr, sink Sink) *Service {
	return &Service{cfg: cfg, local: local, addrs: addrs, sink: sink}
}

// Start 启动广播和查询。广播失败时仍然查询
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return nil
	}

	if err := s.startServer(); err != nil {
		log.Warn("mDNS 广播未启动，仅查询", "err", err)
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.queryLoop(s.stop, s.done)
	log.Info("mDNS 已启动", "service", s.cfg.ServiceTag)
	return nil
}

func (s *Service) startServer() error {
	addrs := advertisable(s.addrs())
	if len(addrs) == 0 {
		return ErrNoAddrs
	}
	port, ips := hostParts(addrs)
	if port == 0 || len(ips) == 0 {
		return ErrNoAddrs
	}
	txt := txtRecords(s.local, addrs)
	instance := "meshchat-" + strings.TrimPrefix(s.local.ShortString(), "*")
	svc, err := mdns.NewMDNSService(instance, s.cfg.ServiceTag, s.cfg.Domain, "", port, ips, txt)
	if err != nil {
		return fmt.Errorf("mdns: service: %w", err)
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: svc})
	if err != nil {
		return fmt.Errorf("mdns: server: %w", err)
	}
	s.server = server
	log.Debug("mDNS 广播", "instance", instance, "port", port, "txt", len(txt))
	return nil
}

func (s *Service) queryLoop(stop, done chan struct{}) {
	defer close(done)
	t := time.NewTicker(s.cfg.QueryInterval)
	defer t.Stop()
	for {
		s.query(stop)
		select {
		case <-stop:
			return
		case <-t.C:
		}
	}
}

// query 一轮查询，结果在查询期间陆续交给 sink
func (s *Service) query(stop chan struct{}) {
	entries := make(chan *mdns.ServiceEntry, 16)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for e := range entries {
			select {
			case <-stop:
				continue
			default:
			}
			for _, pa := range parseEntry(e, s.local) {
				s.sink(pa)
			}
		}
	}()
	err := mdns.Query(&mdns.QueryParam{
		Service:     s.cfg.ServiceTag,
		Domain:      s.cfg.Domain,
		Timeout:     s.cfg.QueryTimeout,
		Entries:     entries,
		DisableIPv6: s.cfg.DisableIPv6,
	})
	close(entries)
	<-drained
	if err != nil {
		log.Debug("mDNS 查询失败", "err", err)
	}
}

// Stop 停止广播和查询，重复调用无副作用
func (s *Service) Stop() error {
	s.mu.Lock()
	stop, done, server := s.stop, s.done, s.server
	s.stop, s.done, s.server = nil, nil, nil
	s.mu.Unlock()

	var err error
	if server != nil {
		err = server.Shutdown()
	}
	if stop != nil {
		close(stop)
		<-done
	}
	return err
}

// advertisable 展开通配地址并去掉回环地址
func advertisable(addrs []ma.Multiaddr) []ma.Multiaddr {
	ifaceAddrs, err := manet.InterfaceMultiaddrs()
	if err != nil {
		log.Debug("读取网卡地址失败", "err", err)
	}
	resolved, err := manet.ResolveUnspecifiedAddresses(addrs, ifaceAddrs)
	if err != nil {
		resolved = addrs
	}
	out := make([]ma.Multiaddr, 0, len(resolved))
	for _, a := range resolved {
		if manet.IsIPLoopback(a) || manet.IsIPUnspecified(a) {
			continue
		}
		out = append(out, a)
	}
	return out
}

// hostParts 第一个地址的端口和全部 IP，用于 SRV/A 记录
func hostParts(addrs []ma.Multiaddr) (int, []net.IP) {
	var (
		port int
		ips  []net.IP
		seen = make(map[string]struct{})
	)
	for _, a := range addrs {
		na, err := manet.ToNetAddr(a)
		if err != nil {
			// websocket 等地址没有对应的 net.Addr，取其传输层部分
			na, err = manet.ToNetAddr(transportPart(a))
			if err != nil {
				continue
			}
		}
		var ip net.IP
		switch v := na.(type) {
		case *net.TCPAddr:
			ip = v.IP
			if port == 0 {
				port = v.Port
			}
		case *net.UDPAddr:
			ip = v.IP
			if port == 0 {
				port = v.Port
			}
		default:
			continue
		}
		if _, ok := seen[ip.String()]; !ok {
			seen[ip.String()] = struct{}{}
			ips = append(ips, ip)
		}
	}
	return port, ips
}

// transportPart 取前两段，如 /ip4/x/tcp/y
func transportPart(a ma.Multiaddr) ma.Multiaddr {
	first, rest := ma.SplitFirst(a)
	if first == nil || rest == nil {
		return a
	}
	second, _ := ma.SplitFirst(rest)
	if second == nil {
		return first
	}
	return ma.Join(first, second)
}

// txtRecords 每个地址一条 dnsaddr 记录，超长的地址被丢弃
func txtRecords(id types.PeerID, addrs []ma.Multiaddr) []string {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		rec := dnsaddrPrefix + types.PeerAddr{ID: id, Addr: a}.String()
		if len(rec) > maxTXTLen {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// parseEntry 从服务条目中取出其他节点的地址
func parseEntry(e *mdns.ServiceEntry, self types.PeerID) []types.PeerAddr {
	if e == nil {
		return nil
	}
	var out []types.PeerAddr
	for _, f := range e.InfoFields {
		if !strings.HasPrefix(f, dnsaddrPrefix) {
			continue
		}
		pa, err := types.ParsePeerAddr(strings.TrimPrefix(f, dnsaddrPrefix))
		if err != nil || pa.ID.IsEmpty() || pa.ID == self {
			continue
		}
		out = append(out, pa)
	}
	return out
}
