package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
)

var (
	// ErrListenerClosed 监听器已关闭
	ErrListenerClosed = errors.New("transport: listener closed")

	// ErrNoTransport 没有能处理该地址的传输
	ErrNoTransport = errors.New("transport: no transport for address")

	// ErrTransportClosed 传输已关闭
	ErrTransportClosed = errors.New("transport: closed")
)

// DialErrorKind 拨号失败分类
type DialErrorKind int

const (
	Unreachable DialErrorKind = iota
	Refused
	Timeout
)

func (k DialErrorKind) String() string {
	switch k {
	case Refused:
		return "refused"
	case Timeout:
		return "timeout"
	default:
		return "unreachable"
	}
}

// DialError 拨号失败，通常可以稍后重试
type DialError struct {
	Addr string
	Kind DialErrorKind
	Err  error
}

func (e *DialError) Error() string {
	return fmt.Sprintf("dial %s: %s: %v", e.Addr, e.Kind, e.Err)
}

func (e *DialError) Unwrap() error { return e.Err }

// NewDialError 按底层错误归类
func NewDialError(addr string, err error) *DialError {
	var de *DialError
	if errors.As(err, &de) {
		return de
	}
	return &DialError{Addr: addr, Kind: Classify(err), Err: err}
}

// Classify 把网络错误归到三类之一
func Classify(err error) DialErrorKind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, syscall.ETIMEDOUT) {
		return Timeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return Timeout
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return Refused
	}
	return Unreachable
}
