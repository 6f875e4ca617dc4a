package noise

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSignature 身份签名无效
	ErrInvalidSignature = errors.New("noise: invalid identity signature")

	// ErrStaticKeyMismatch noise 静态公钥与身份公钥不对应
	ErrStaticKeyMismatch = errors.New("noise: static key not derived from identity key")

	// ErrPeerIDMismatch 对端身份与期望不符
	ErrPeerIDMismatch = errors.New("noise: peer id mismatch")

	// ErrBadPayload 握手 payload 解码失败
	ErrBadPayload = errors.New("noise: malformed handshake payload")
)

// HandshakeError 握手失败。底层连接已被关闭
type HandshakeError struct {
	Remote string // 对端网络地址
	Stage  string // 失败阶段，如 "read msg2"、"verify"
	Err    error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("noise handshake with %s failed at %s: %v", e.Remote, e.Stage, e.Err)
}

func (e *HandshakeError) Unwrap() error { return e.Err }
