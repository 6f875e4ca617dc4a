package dns

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-meshchat/pkg/types"
)

type zone map[string][]string

// startServer 在本地 UDP 端口上提供 zone 里的记录
func startServer(t *testing.T, z zone) string {
	t.Helper()
	records := make(map[string][]dns.RR)
	for name, lines := range z {
		for _, l := range lines {
			rr, err := dns.NewRR(l)
			require.NoError(t, err)
			records[dns.Fqdn(name)] = append(records[dns.Fqdn(name)], rr)
		}
	}

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	mux := dns.NewServeMux()
	mux.HandleFunc(".", func(w dns.ResponseWriter, req *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(req)
		q := req.Question[0]
		for _, rr := range records[q.Name] {
			if rr.Header().Rrtype == q.Qtype {
				m.Answer = append(m.Answer, rr)
			}
		}
		if _, ok := records[q.Name]; !ok {
			m.Rcode = dns.RcodeNameError
		}
		_ = w.WriteMsg(m)
	})
	started := make(chan struct{})
	srv := &dns.Server{PacketConn: pc, Handler: mux, NotifyStartedFunc: func() { close(started) }}
	go func() { _ = srv.ActivateAndServe() }()
	<-started
	t.Cleanup(func() { _ = srv.Shutdown() })
	return pc.LocalAddr().String()
}

func testPeer(t *testing.T) types.PeerID {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	id, err := types.PeerIDFromPublicKey(pub)
	require.NoError(t, err)
	return id
}

func newResolver(t *testing.T, z zone) *Resolver {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Servers = []string{startServer(t, z)}
	cfg.Timeout = 2 * time.Second
	r, err := NewResolver(cfg)
	require.NoError(t, err)
	return r
}

func ctx(t *testing.T) context.Context {
	c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return c
}

func TestResolve_DNSAddrNested(t *testing.T) {
	p1, p2 := testPeer(t), testPeer(t)
	r := newResolver(t, zone{
		"_dnsaddr.boot.example": {
			fmt.Sprintf(`_dnsaddr.boot.example. 60 IN TXT "dnsaddr=/ip4/10.0.0.1/tcp/4001/p2p/%s"`, p1),
			`_dnsaddr.boot.example. 60 IN TXT "dnsaddr=/dnsaddr/eu.boot.example"`,
			`_dnsaddr.boot.example. 60 IN TXT "unrelated=1"`,
		},
		"_dnsaddr.eu.boot.example": {
			fmt.Sprintf(`_dnsaddr.eu.boot.example. 60 IN TXT "dnsaddr=/ip4/10.0.0.2/tcp/4001/p2p/%s"`, p2),
		},
	})

	got, err := r.Resolve(ctx(t), ma.StringCast("/dnsaddr/boot.example"))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, fmt.Sprintf("/ip4/10.0.0.1/tcp/4001/p2p/%s", p1), got[0].String())
	assert.Equal(t, fmt.Sprintf("/ip4/10.0.0.2/tcp/4001/p2p/%s", p2), got[1].String())

	only, err := r.Resolve(ctx(t), ma.StringCast(fmt.Sprintf("/dnsaddr/boot.example/p2p/%s", p2)))
	require.NoError(t, err)
	require.Len(t, only, 1)
	assert.Contains(t, only[0].String(), "10.0.0.2")
}

func TestResolve_DepthLimit(t *testing.T) {
	r := newResolver(t, zone{
		"_dnsaddr.loop.example": {`_dnsaddr.loop.example. 60 IN TXT "dnsaddr=/dnsaddr/loop.example"`},
	})
	_, err := r.Resolve(ctx(t), ma.StringCast("/dnsaddr/loop.example"))
	assert.ErrorIs(t, err, ErrNoRecords)

	_, err = r.resolve(ctx(t), ma.StringCast("/dnsaddr/loop.example"), 0)
	assert.ErrorIs(t, err, ErrMaxDepthExceeded)
}

func TestResolve_HostNames(t *testing.T) {
	r := newResolver(t, zone{
		"node.example": {
			`node.example. 60 IN A 192.0.2.7`,
			`node.example. 60 IN AAAA 2001:db8::7`,
		},
	})

	v4, err := r.Resolve(ctx(t), ma.StringCast("/dns4/node.example/tcp/4001"))
	require.NoError(t, err)
	require.Len(t, v4, 1)
	assert.Equal(t, "/ip4/192.0.2.7/tcp/4001", v4[0].String())

	both, err := r.Resolve(ctx(t), ma.StringCast("/dns/node.example/udp/4001/quic-v1"))
	require.NoError(t, err)
	assert.Len(t, both, 2)

	_, err = r.Resolve(ctx(t), ma.StringCast("/dns4/missing.example/tcp/1"))
	assert.ErrorIs(t, err, ErrNoRecords)
}

func TestResolve_PassThrough(t *testing.T) {
	r := newResolver(t, zone{})
	addr := ma.StringCast("/ip4/127.0.0.1/tcp/4001")
	got, err := r.Resolve(ctx(t), addr)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Equal(addr))
	assert.False(t, IsDNSAddr(addr))
	assert.True(t, IsDNSAddr(ma.StringCast("/dnsaddr/x.example")))
}
