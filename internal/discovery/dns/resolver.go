package dns

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/miekg/dns"
	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/multierr"

	"github.com/dep2p/go-meshchat/internal/util/logger"
)

var log = logger.Logger("discovery.dns")

const (
	dnsaddrPrefix = "dnsaddr="
	dnsaddrDomain = "_dnsaddr."
)

// Resolver DNS multiaddr 解析器
type Resolver struct {
	cfg     Config
	client  *dns.Client
	servers []string
	cache   *expirable.LRU[string, []ma.Multiaddr]
}

// NewResolver 创建解析器
func NewResolver(cfg Config) (*Resolver, error) {
	servers := cfg.Servers
	if len(servers) == 0 {
		servers = systemServers()
	}
	if len(servers) == 0 {
		return nil, ErrNoServers
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultConfig().MaxDepth
	}
	r := &Resolver{
		cfg:     cfg,
		client:  &dns.Client{Net: "udp", Timeout: cfg.Timeout},
		servers: servers,
	}
	if cfg.CacheTTL > 0 {
		size := cfg.CacheSize
		if size <= 0 {
			size = DefaultConfig().CacheSize
		}
		r.cache = expirable.NewLRU[string, []ma.Multiaddr](size, nil, cfg.CacheTTL)
	}
	return r, nil
}

// IsDNSAddr 地址第一段是否需要 DNS 解析
func IsDNSAddr(addr ma.Multiaddr) bool {
	if addr == nil {
		return false
	}
	first, _ := ma.SplitFirst(addr)
	if first == nil {
		return false
	}
	switch first.Protocol().Code {
	case ma.P_DNSADDR, ma.P_DNS, ma.P_DNS4, ma.P_DNS6:
		return true
	}
	return false
}

// Resolve 把 DNS 形式的地址展开为 IP 地址；非 DNS 地址原样返回
func (r *Resolver) Resolve(ctx context.Context, addr ma.Multiaddr) ([]ma.Multiaddr, error) {
	return r.resolve(ctx, addr, r.cfg.MaxDepth)
}

func (r *Resolver) resolve(ctx context.Context, addr ma.Multiaddr, depth int) ([]ma.Multiaddr, error) {
	if !IsDNSAddr(addr) {
		return []ma.Multiaddr{addr}, nil
	}
	first, rest := ma.SplitFirst(addr)
	host := first.Value()

	switch first.Protocol().Code {
	case ma.P_DNSADDR:
		return r.resolveDNSAddr(ctx, host, rest, depth)
	case ma.P_DNS4:
		return r.resolveHost(ctx, host, rest, dns.TypeA)
	case ma.P_DNS6:
		return r.resolveHost(ctx, host, rest, dns.TypeAAAA)
	default:
		v4, err4 := r.resolveHost(ctx, host, rest, dns.TypeA)
		v6, err6 := r.resolveHost(ctx, host, rest, dns.TypeAAAA)
		out := append(v4, v6...)
		if len(out) == 0 {
			return nil, multierr.Combine(err4, err6)
		}
		return out, nil
	}
}

// resolveDNSAddr 展开 /dnsaddr/<host>，rest 为 /p2p/<id> 时只保留同一 id 的记录
func (r *Resolver) resolveDNSAddr(ctx context.Context, host string, rest ma.Multiaddr, depth int) ([]ma.Multiaddr, error) {
	if depth <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrMaxDepthExceeded, host)
	}
	key := "dnsaddr/" + host
	candidates, ok := r.cached(key)
	if !ok {
		txts, err := r.query(ctx, dnsaddrDomain+host, dns.TypeTXT)
		if err != nil {
			return nil, err
		}
		for _, rr := range txts {
			txt, ok := rr.(*dns.TXT)
			if !ok {
				continue
			}
			v := strings.Join(txt.Txt, "")
			if !strings.HasPrefix(v, dnsaddrPrefix) {
				continue
			}
			m, err := ma.NewMultiaddr(strings.TrimPrefix(v, dnsaddrPrefix))
			if err != nil {
				log.Debug("忽略无效 dnsaddr 记录", "host", host, "record", v, "err", err)
				continue
			}
			candidates = append(candidates, m)
		}
		r.store(key, candidates)
	}

	var out []ma.Multiaddr
	for _, m := range candidates {
		expanded := []ma.Multiaddr{m}
		if IsDNSAddr(m) {
			nested, err := r.resolve(ctx, m, depth-1)
			if err != nil {
				log.Debug("嵌套解析失败", "addr", m, "err", err)
				continue
			}
			expanded = nested
		}
		for _, e := range expanded {
			if rest == nil || hasSuffix(e, rest) {
				out = append(out, e)
			}
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: /dnsaddr/%s", ErrNoRecords, host)
	}
	return out, nil
}

// resolveHost 用 A 或 AAAA 记录替换第一段
func (r *Resolver) resolveHost(ctx context.Context, host string, rest ma.Multiaddr, qtype uint16) ([]ma.Multiaddr, error) {
	ips, err := r.LookupIP(ctx, host, qtype)
	if err != nil {
		return nil, err
	}
	proto := "ip4"
	if qtype == dns.TypeAAAA {
		proto = "ip6"
	}
	out := make([]ma.Multiaddr, 0, len(ips))
	for _, ip := range ips {
		c, err := ma.NewComponent(proto, ip.String())
		if err != nil {
			continue
		}
		if rest == nil {
			out = append(out, c)
		} else {
			out = append(out, ma.Join(c, rest))
		}
	}
	return out, nil
}

// LookupIP 查询 A(dns.TypeA) 或 AAAA(dns.TypeAAAA) 记录
func (r *Resolver) LookupIP(ctx context.Context, host string, qtype uint16) ([]net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		return []net.IP{ip}, nil
	}
	rrs, err := r.query(ctx, host, qtype)
	if err != nil {
		return nil, err
	}
	var ips []net.IP
	for _, rr := range rrs {
		switch v := rr.(type) {
		case *dns.A:
			ips = append(ips, v.A)
		case *dns.AAAA:
			ips = append(ips, v.AAAA)
		}
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("%w: %s %s", ErrNoRecords, dns.TypeToString[qtype], host)
	}
	return ips, nil
}

// query 依次尝试每个服务器，返回第一个成功的应答
func (r *Resolver) query(ctx context.Context, name string, qtype uint16) ([]dns.RR, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), qtype)
	msg.RecursionDesired = true

	var errs error
	for _, server := range r.servers {
		resp, _, err := r.client.ExchangeContext(ctx, msg, server)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", server, err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if resp.Rcode == dns.RcodeNameError {
			return nil, fmt.Errorf("%w: %s", ErrNoRecords, name)
		}
		if resp.Rcode != dns.RcodeSuccess {
			errs = multierr.Append(errs, fmt.Errorf("%s: rcode %s", server, dns.RcodeToString[resp.Rcode]))
			continue
		}
		return resp.Answer, nil
	}
	return nil, fmt.Errorf("dns: query %s: %w", name, errs)
}

func (r *Resolver) cached(key string) ([]ma.Multiaddr, bool) {
	if r.cache == nil {
		return nil, false
	}
	return r.cache.Get(key)
}

func (r *Resolver) store(key string, v []ma.Multiaddr) {
	if r.cache != nil && len(v) > 0 {
		r.cache.Add(key, v)
	}
}

// hasSuffix m 是否以 suffix 结尾
func hasSuffix(m, suffix ma.Multiaddr) bool {
	mb, sb := m.Bytes(), suffix.Bytes()
	return len(mb) >= len(sb) && string(mb[len(mb)-len(sb):]) == string(sb)
}
