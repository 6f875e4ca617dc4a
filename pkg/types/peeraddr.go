package types

import (
	"fmt"

	ma "github.com/multiformats/go-multiaddr"
)

// PeerAddr 发现层产出的候选地址
//
// ID 可为空（引导地址不带 /p2p/ 时），此时握手完成后才知道对端身份。
type PeerAddr struct {
	ID   PeerID
	Addr ma.Multiaddr
}

func (pa PeerAddr) String() string {
	if pa.ID.IsEmpty() {
		return pa.Addr.String()
	}
	return fmt.Sprintf("%s/p2p/%s", pa.Addr, pa.ID)
}

// Key 用于去重的键
func (pa PeerAddr) Key() string {
	return pa.String()
}

// ParsePeerAddr 解析形如 /ip4/1.2.3.4/tcp/4001[/p2p/12D3KooW...] 的地址
func ParsePeerAddr(s string) (PeerAddr, error) {
	m, err := ma.NewMultiaddr(s)
	if err != nil {
		return PeerAddr{}, err
	}
	return SplitPeerAddr(m)
}

// SplitPeerAddr 把末尾的 /p2p/<id> 拆出来
func SplitPeerAddr(m ma.Multiaddr) (PeerAddr, error) {
	transport, last := ma.SplitLast(m)
	if last == nil || last.Protocol().Code != ma.P_P2P {
		return PeerAddr{Addr: m}, nil
	}
	id, err := ParsePeerID(last.Value())
	if err != nil {
		return PeerAddr{}, fmt.Errorf("types: %s: %w", m, err)
	}
	if transport == nil {
		return PeerAddr{}, fmt.Errorf("types: %s: missing transport part", m)
	}
	return PeerAddr{ID: id, Addr: transport}, nil
}
