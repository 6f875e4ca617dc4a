package identity

import (
	"crypto/ed25519"

	"github.com/dep2p/go-meshchat/pkg/types"
)

// PublicKeyFromPeerID 从 PeerID 取出公钥
func PublicKeyFromPeerID(id types.PeerID) (ed25519.PublicKey, error) {
	pub := id.PublicKey()
	if pub == nil {
		return nil, types.ErrInvalidPeerID
	}
	return ed25519.PublicKey(pub), nil
}

// Verify 用 PeerID 内嵌的公钥验签
//
// 任何不匹配（签名长度、PeerID 编码、签名本身）都返回 false。
func Verify(id types.PeerID, data, sig []byte) bool {
	pub, err := PublicKeyFromPeerID(id)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, data, sig)
}
