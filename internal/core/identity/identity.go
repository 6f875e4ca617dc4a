package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/dep2p/go-meshchat/pkg/types"
)

// Identity 节点身份
type Identity struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
	id   types.PeerID
}

// Generate 生成新身份
func Generate() (*Identity, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("identity: generate key: %w", err)
	}
	return FromPrivateKey(priv)
}

// FromPrivateKey 由已有私钥构造身份
func FromPrivateKey(priv ed25519.PrivateKey) (*Identity, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, ErrInvalidKey
	}
	pub := priv.Public().(ed25519.PublicKey)
	id, err := types.PeerIDFromPublicKey(pub)
	if err != nil {
		return nil, err
	}
	return &Identity{priv: priv, pub: pub, id: id}, nil
}

// PeerID 节点标识
func (i *Identity) PeerID() types.PeerID { return i.id }

// PublicKey 公钥
func (i *Identity) PublicKey() ed25519.PublicKey { return i.pub }

// PrivateKey 私钥
func (i *Identity) PrivateKey() ed25519.PrivateKey { return i.priv }

// Sign 签名。Ed25519 签名不会失败
func (i *Identity) Sign(data []byte) []byte {
	return ed25519.Sign(i.priv, data)
}
