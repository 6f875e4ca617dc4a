package noise

import (
	"crypto/ed25519"
	"crypto/sha512"

	"filippo.io/edwards25519"
)

// edPrivToCurve 由 Ed25519 种子得到 X25519 私钥（RFC 8032 展开 + clamp）
func edPrivToCurve(priv ed25519.PrivateKey) []byte {
	h := sha512.Sum512(priv.Seed())
	h[0] &= 248
	h[31] &= 127
	h[31] |= 64
	return h[:32]
}

// edPubToCurve Edwards 点转 Montgomery u 坐标
func edPubToCurve(pub ed25519.PublicKey) ([]byte, error) {
	p, err := new(edwards25519.Point).SetBytes(pub)
	if err != nil {
		return nil, err
	}
	return p.BytesMontgomery(), nil
}
