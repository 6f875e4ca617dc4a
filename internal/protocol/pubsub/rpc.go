package pubsub

import (
	"bufio"
	"fmt"
	"io"

	"github.com/multiformats/go-varint"
	"google.golang.org/protobuf/encoding/protowire"
)

// RPC 一次交换的内容
type RPC struct {
	Subscriptions []*SubOpts
	Publish       []*Message
	Control       *ControlMessage
}

// SubOpts 订阅变化
type SubOpts struct {
	Subscribe bool
	Topic     string
}

// Message 广播消息
type Message struct {
	From      []byte
	Data      []byte
	Seqno     []byte
	Topic     string
	Signature []byte
}

// ControlMessage mesh 控制
type ControlMessage struct {
	Graft []*ControlGraft
	Prune []*ControlPrune
}

type ControlGraft struct {
	Topic string
}

type ControlPrune struct {
	Topic string
}

func (r *RPC) empty() bool {
	return len(r.Subscriptions) == 0 && len(r.Publish) == 0 &&
		(r.Control == nil || (len(r.Control.Graft) == 0 && len(r.Control.Prune) == 0))
}

// Marshal 编码为 protobuf
func (r *RPC) Marshal() []byte {
	var b []byte
	for _, s := range r.Subscriptions {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, s.marshal())
	}
	for _, m := range r.Publish {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, m.marshal(true))
	}
	if r.Control != nil {
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendBytes(b, r.Control.marshal())
	}
	return b
}

func (s *SubOpts) marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeBool(s.Subscribe))
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	return protowire.AppendString(b, s.Topic)
}

// marshal withSig 为 false 时得到签名覆盖的内容
func (m *Message) marshal(withSig bool) []byte {
	var b []byte
	if len(m.From) > 0 {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, m.From)
	}
	if len(m.Data) > 0 {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Data)
	}
	if len(m.Seqno) > 0 {
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Seqno)
	}
	if m.Topic != "" {
		b = protowire.AppendTag(b, 4, protowire.BytesType)
		b = protowire.AppendString(b, m.Topic)
	}
	if withSig && len(m.Signature) > 0 {
		b = protowire.AppendTag(b, 7, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Signature)
	}
	return b
}

func (c *ControlMessage) marshal() []byte {
	var b []byte
	for _, g := range c.Graft {
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendBytes(b, topicOnly(g.Topic))
	}
	for _, p := range c.Prune {
		b = protowire.AppendTag(b, 4, protowire.BytesType)
		b = protowire.AppendBytes(b, topicOnly(p.Topic))
	}
	return b
}

func topicOnly(topic string) []byte {
	b := protowire.AppendTag(nil, 1, protowire.BytesType)
	return protowire.AppendString(b, topic)
}

// field 解码时的单个字段
type field struct {
	num   protowire.Number
	typ   protowire.Type
	bytes []byte
	value uint64
}

// walk 依次解码 b 的字段，未知类型的字段被跳过
func walk(b []byte, fn func(f field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return ErrMalformedRPC
		}
		b = b[n:]
		f := field{num: num, typ: typ}
		switch typ {
		case protowire.BytesType:
			f.bytes, n = protowire.ConsumeBytes(b)
		case protowire.VarintType:
			f.value, n = protowire.ConsumeVarint(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return ErrMalformedRPC
		}
		b = b[n:]
		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

// UnmarshalRPC 解码 protobuf
func UnmarshalRPC(b []byte) (*RPC, error) {
	r := &RPC{}
	err := walk(b, func(f field) error {
		if f.typ != protowire.BytesType {
			return nil
		}
		switch f.num {
		case 1:
			s := &SubOpts{}
			if err := walk(f.bytes, func(g field) error {
				switch {
				case g.num == 1 && g.typ == protowire.VarintType:
					s.Subscribe = protowire.DecodeBool(g.value)
				case g.num == 2 && g.typ == protowire.BytesType:
					s.Topic = string(g.bytes)
				}
				return nil
			}); err != nil {
				return err
			}
			r.Subscriptions = append(r.Subscriptions, s)
		case 2:
			m, err := unmarshalMessage(f.bytes)
			if err != nil {
				return err
			}
			r.Publish = append(r.Publish, m)
		case 3:
			c, err := unmarshalControl(f.bytes)
			if err != nil {
				return err
			}
			r.Control = c
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func unmarshalMessage(b []byte) (*Message, error) {
	m := &Message{}
	err := walk(b, func(f field) error {
		if f.typ != protowire.BytesType {
			return nil
		}
		v := append([]byte(nil), f.bytes...)
		switch f.num {
		case 1:
			m.From = v
		case 2:
			m.Data = v
		case 3:
			m.Seqno = v
		case 4:
			m.Topic = string(v)
		case 7:
			m.Signature = v
		}
		return nil
	})
	return m, err
}

func unmarshalControl(b []byte) (*ControlMessage, error) {
	c := &ControlMessage{}
	err := walk(b, func(f field) error {
		if f.typ != protowire.BytesType || (f.num != 3 && f.num != 4) {
			return nil
		}
		var topic string
		if err := walk(f.bytes, func(g field) error {
			if g.num == 1 && g.typ == protowire.BytesType {
				topic = string(g.bytes)
			}
			return nil
		}); err != nil {
			return err
		}
		if f.num == 3 {
			c.Graft = append(c.Graft, &ControlGraft{Topic: topic})
		} else {
			c.Prune = append(c.Prune, &ControlPrune{Topic: topic})
		}
		return nil
	})
	return c, err
}

// writeRPC 写入一个带长度前缀的 RPC
func writeRPC(w io.Writer, r *RPC) error {
	body := r.Marshal()
	buf := make([]byte, 0, varint.UvarintSize(uint64(len(body)))+len(body))
	buf = append(buf, varint.ToUvarint(uint64(len(body)))...)
	buf = append(buf, body...)
	_, err := w.Write(buf)
	return err
}

// readRPC 读取一个带长度前缀的 RPC，超过 max 字节视为错误
func readRPC(r *bufio.Reader, max int) (*RPC, error) {
	n, err := varint.ReadUvarint(r)
	if err != nil {
		return nil, err
	}
	if n > uint64(max) {
		return nil, fmt.Errorf("%w: rpc of %d bytes exceeds %d", ErrMalformedRPC, n, max)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return UnmarshalRPC(body)
}
