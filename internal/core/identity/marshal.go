package identity

import (
	"crypto/ed25519"

	"google.golang.org/protobuf/encoding/protowire"
)

// 私钥序列化格式（protobuf）:
//
//	message PrivateKey {
//	  KeyType type = 1; // Ed25519 = 1
//	  bytes   data = 2; // seed || pub
//	}
const keyTypeEd25519 = 1

// MarshalPrivateKey 序列化私钥
func MarshalPrivateKey(priv ed25519.PrivateKey) []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, keyTypeEd25519)
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendBytes(b, priv)
	return b
}

// UnmarshalPrivateKey 反序列化私钥
func UnmarshalPrivateKey(b []byte) (ed25519.PrivateKey, error) {
	var (
		keyType uint64
		data    []byte
	)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, ErrInvalidKey
		}
		b = b[n:]
		switch {
		case num == 1 && typ == protowire.VarintType:
			keyType, n = protowire.ConsumeVarint(b)
		case num == 2 && typ == protowire.BytesType:
			data, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return nil, ErrInvalidKey
		}
		b = b[n:]
	}
	if keyType != keyTypeEd25519 {
		return nil, ErrUnsupportedKeyType
	}
	if len(data) != ed25519.PrivateKeySize {
		return nil, ErrInvalidKey
	}
	priv := ed25519.PrivateKey(append([]byte(nil), data...))
	// seed 与公钥部分必须一致
	if !priv.Public().(ed25519.PublicKey).Equal(ed25519.PublicKey(data[32:])) {
		return nil, ErrInvalidKey
	}
	return priv, nil
}
