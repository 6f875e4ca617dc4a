package types

import (
	"bytes"
	"errors"

	"github.com/mr-tron/base58"
)

// PeerID 节点标识
//
// 内部为 identity multihash 的原始字节:
//
//	0x00 0x24 | 0x08 0x01 0x12 0x20 | ed25519 公钥(32)
//
// 文本形式为 base58btc，以 "12D3KooW" 开头。可直接作为 map 键。
type PeerID string

// PeerIDLen 二进制 PeerID 的长度
const PeerIDLen = 2 + 4 + 32

// 编码前缀
var peerIDPrefix = []byte{0x00, 0x24, 0x08, 0x01, 0x12, 0x20}

var (
	// ErrInvalidPeerID 无效的 PeerID
	ErrInvalidPeerID = errors.New("types: invalid peer id")
)

// PeerIDFromPublicKey 由 32 字节 ed25519 公钥构造 PeerID
func PeerIDFromPublicKey(pub []byte) (PeerID, error) {
	if len(pub) != 32 {
		return "", ErrInvalidPeerID
	}
	b := make([]byte, 0, PeerIDLen)
	b = append(b, peerIDPrefix...)
	b = append(b, pub...)
	return PeerID(b), nil
}

// PeerIDFromBytes 校验并转换二进制 PeerID
func PeerIDFromBytes(b []byte) (PeerID, error) {
	if len(b) != PeerIDLen || !bytes.HasPrefix(b, peerIDPrefix) {
		return "", ErrInvalidPeerID
	}
	return PeerID(b), nil
}

// ParsePeerID 解析 base58 文本
func ParsePeerID(s string) (PeerID, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return "", ErrInvalidPeerID
	}
	return PeerIDFromBytes(b)
}

// PublicKey 返回内嵌的公钥字节，格式错误时返回 nil
func (id PeerID) PublicKey() []byte {
	if len(id) != PeerIDLen || !bytes.HasPrefix([]byte(id), peerIDPrefix) {
		return nil
	}
	return []byte(id[len(peerIDPrefix):])
}

// String base58 文本
func (id PeerID) String() string {
	if id == "" {
		return ""
	}
	return base58.Encode([]byte(id))
}

// ShortString 日志用短形式（末 6 位，前缀对所有节点相同）
func (id PeerID) ShortString() string {
	s := id.String()
	if len(s) <= 6 {
		return s
	}
	return "*" + s[len(s)-6:]
}

// Bytes 二进制形式
func (id PeerID) Bytes() []byte { return []byte(id) }

// IsEmpty 是否为空
func (id PeerID) IsEmpty() bool { return id == "" }

// Validate 校验格式
func (id PeerID) Validate() error {
	_, err := PeerIDFromBytes([]byte(id))
	return err
}
