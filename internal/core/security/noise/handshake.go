package noise

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/flynn/noise"
	"golang.org/x/crypto/curve25519"

	"github.com/dep2p/go-meshchat/internal/core/identity"
	"github.com/dep2p/go-meshchat/pkg/types"
)

var errShortMessage = errors.New("noise: handshake message too short")

// runHandshake 返回失败阶段名，便于定位
func (t *Transport) runHandshake(conn net.Conn, initiator bool, expected types.PeerID) (*Conn, string, error) {
	ephPriv := make([]byte, curve25519.ScalarSize)
	if _, err := rand.Read(ephPriv); err != nil {
		return nil, "ephemeral", err
	}
	ephPub, err := curve25519.X25519(ephPriv, curve25519.Basepoint)
	if err != nil {
		return nil, "ephemeral", err
	}

	// Random 只在生成临时密钥时被读取，这里让它产出预先生成的私钥，
	// 这样在写出 e 之前就能把它放进签名。
	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:      cipherSuite,
		Random:           bytes.NewReader(ephPriv),
		Pattern:          noise.HandshakeXX,
		Initiator:        initiator,
		Prologue:         []byte(ID),
		StaticKeypair:    t.static,
		EphemeralKeypair: noise.DHKey{Private: ephPriv, Public: ephPub},
	})
	if err != nil {
		return nil, "init", err
	}

	if initiator {
		return t.initiate(conn, hs, ephPub, expected)
	}
	return t.respond(conn, hs, ephPub, expected)
}

func (t *Transport) initiate(conn net.Conn, hs *noise.HandshakeState, ephI []byte, expected types.PeerID) (*Conn, string, error) {
	msg1, _, _, err := hs.WriteMessage(nil, nil)
	if err != nil {
		return nil, "write msg1", err
	}
	if err := writeFrame(conn, msg1); err != nil {
		return nil, "send msg1", err
	}

	msg2, err := readFrame(conn)
	if err != nil {
		return nil, "recv msg2", err
	}
	if len(msg2) < curve25519.PointSize {
		return nil, "recv msg2", errShortMessage
	}
	ephR := msg2[:curve25519.PointSize]
	raw, _, _, err := hs.ReadMessage(nil, msg2)
	if err != nil {
		return nil, "read msg2", err
	}
	remote, err := verifyPayload(raw, hs.PeerStatic(), ephI, ephR, expected)
	if err != nil {
		return nil, "verify", err
	}

	msg3, send, recv, err := hs.WriteMessage(nil, t.localPayload(ephI, ephR))
	if err != nil {
		return nil, "write msg3", err
	}
	if err := writeFrame(conn, msg3); err != nil {
		return nil, "send msg3", err
	}
	return newConn(conn, send, recv, t.id.PeerID(), remote, hs.ChannelBinding()), "", nil
}

func (t *Transport) respond(conn net.Conn, hs *noise.HandshakeState, ephR []byte, expected types.PeerID) (*Conn, string, error) {
	msg1, err := readFrame(conn)
	if err != nil {
		return nil, "recv msg1", err
	}
	if len(msg1) < curve25519.PointSize {
		return nil, "recv msg1", errShortMessage
	}
	ephI := append([]byte(nil), msg1[:curve25519.PointSize]...)
	if _, _, _, err := hs.ReadMessage(nil, msg1); err != nil {
		return nil, "read msg1", err
	}

	msg2, _, _, err := hs.WriteMessage(nil, t.localPayload(ephI, ephR))
	if err != nil {
		return nil, "write msg2", err
	}
	if err := writeFrame(conn, msg2); err != nil {
		return nil, "send msg2", err
	}

	msg3, err := readFrame(conn)
	if err != nil {
		return nil, "recv msg3", err
	}
	raw, recv, send, err := hs.ReadMessage(nil, msg3)
	if err != nil {
		return nil, "read msg3", err
	}
	remote, err := verifyPayload(raw, hs.PeerStatic(), ephI, ephR, expected)
	if err != nil {
		return nil, "verify", err
	}
	return newConn(conn, send, recv, t.id.PeerID(), remote, hs.ChannelBinding()), "", nil
}

func (t *Transport) localPayload(ephI, ephR []byte) []byte {
	sig := t.sign(transcript(string(ID), t.static.Public, ephI, ephR))
	p := &payload{identityKey: t.id.PublicKey(), identitySig: sig}
	return p.marshal()
}

func verifyPayload(raw, remoteStatic, ephI, ephR []byte, expected types.PeerID) (types.PeerID, error) {
	p, err := unmarshalPayload(raw)
	if err != nil {
		return "", err
	}
	remote, err := types.PeerIDFromPublicKey(p.identityKey)
	if err != nil {
		return "", err
	}
	if !identity.Verify(remote, transcript(string(ID), remoteStatic, ephI, ephR), p.identitySig) {
		return "", ErrInvalidSignature
	}
	curve, err := edPubToCurve(p.identityKey)
	if err != nil || !bytes.Equal(curve, remoteStatic) {
		return "", ErrStaticKeyMismatch
	}
	if expected != "" && expected != remote {
		return "", fmt.Errorf("%w: want %s, got %s", ErrPeerIDMismatch, expected, remote)
	}
	return remote, nil
}

// 握手消息帧: uint16 大端长度 + 数据
func writeFrame(w io.Writer, data []byte) error {
	buf := make([]byte, 2+len(data))
	binary.BigEndian.PutUint16(buf, uint16(len(data)))
	copy(buf[2:], data)
	_, err := w.Write(buf)
	return err
}

func readFrame(r io.Reader) ([]byte, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	data := make([]byte, binary.BigEndian.Uint16(hdr[:]))
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}
