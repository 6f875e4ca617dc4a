package noise

import (
	"bytes"

	"google.golang.org/protobuf/encoding/protowire"
)

const sigPrefix = "meshchat-noise:"

// payload 握手载荷
//
//	message NoiseHandshakePayload {
//	  bytes identity_key = 1; // PublicKey{Type=Ed25519, Data}
//	  bytes identity_sig = 2;
//	}
type payload struct {
	identityKey []byte
	identitySig []byte
}

func (p *payload) marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendBytes(b, marshalPublicKey(p.identityKey))
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendBytes(b, p.identitySig)
	return b
}

func unmarshalPayload(b []byte) (*payload, error) {
	p := &payload{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, ErrBadPayload
		}
		b = b[n:]
		if typ != protowire.BytesType {
			if n = protowire.ConsumeFieldValue(num, typ, b); n < 0 {
				return nil, ErrBadPayload
			}
			b = b[n:]
			continue
		}
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return nil, ErrBadPayload
		}
		b = b[n:]
		switch num {
		case 1:
			key, err := unmarshalPublicKey(v)
			if err != nil {
				return nil, err
			}
			p.identityKey = key
		case 2:
			p.identitySig = v
		}
	}
	if p.identityKey == nil || p.identitySig == nil {
		return nil, ErrBadPayload
	}
	return p, nil
}

// PublicKey{KeyType type = 1 (Ed25519 = 1); bytes data = 2}
func marshalPublicKey(pub []byte) []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, 1)
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	return protowire.AppendBytes(b, pub)
}

func unmarshalPublicKey(b []byte) ([]byte, error) {
	var (
		keyType uint64
		data    []byte
	)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, ErrBadPayload
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
			return nil, ErrBadPayload
		}
		b = b[n:]
	}
	if keyType != 1 || len(data) != 32 {
		return nil, ErrBadPayload
	}
	return data, nil
}

// transcript 被签名的内容
func transcript(proto string, static, ephInit, ephResp []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(sigPrefix)
	buf.WriteString(proto)
	buf.Write(static)
	buf.Write(ephInit)
	buf.Write(ephResp)
	return buf.Bytes()
}
