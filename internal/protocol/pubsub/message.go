package pubsub

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"lukechampine.com/blake3"

	"github.com/dep2p/go-meshchat/internal/core/identity"
	"github.com/dep2p/go-meshchat/pkg/types"
)

const signPrefix = "meshchat-pubsub:"

// MessageID 去重用的消息标识: blake3(from || seqno)
func MessageID(m *Message) string {
	h := blake3.New(32, nil)
	_, _ = h.Write(m.From)
	_, _ = h.Write(m.Seqno)
	return string(h.Sum(nil))
}

func shortID(id string) string {
	if len(id) > 6 {
		id = id[:6]
	}
	return hex.EncodeToString([]byte(id))
}

// signBytes 签名覆盖的内容
func signBytes(m *Message) []byte {
	return append([]byte(signPrefix), m.marshal(false)...)
}

// newMessage 构造并签名一条消息
func newMessage(id *identity.Identity, topic string, data []byte, seq uint64) *Message {
	seqno := make([]byte, 8)
	binary.BigEndian.PutUint64(seqno, seq)
	m := &Message{
		From:  id.PeerID().Bytes(),
		Data:  data,
		Seqno: seqno,
		Topic: topic,
	}
	m.Signature = id.Sign(signBytes(m))
	return m
}

// validate 检查收到的消息，返回来源 PeerID
func validate(m *Message, maxSize int) (types.PeerID, error) {
	if len(m.Data) > maxSize {
		return "", fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, len(m.Data))
	}
	if m.Topic == "" {
		return "", fmt.Errorf("%w: empty topic", ErrInvalidMessage)
	}
	if len(m.Seqno) == 0 {
		return "", fmt.Errorf("%w: missing seqno", ErrInvalidMessage)
	}
	from, err := types.PeerIDFromBytes(m.From)
	if err != nil {
		return "", fmt.Errorf("%w: from: %v", ErrInvalidMessage, err)
	}
	if len(m.Signature) == 0 {
		return "", fmt.Errorf("%w: missing signature", ErrInvalidMessage)
	}
	if !identity.Verify(from, signBytes(m), m.Signature) {
		return "", fmt.Errorf("%w: bad signature", ErrInvalidMessage)
	}
	return from, nil
}
