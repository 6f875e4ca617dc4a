package meshchat

import (
	"errors"
	"fmt"
)

var (
	// ErrNodeStopped 节点已停止
	ErrNodeStopped = errors.New("meshchat: node stopped")

	// ErrInvalidAddr 地址无法解析
	ErrInvalidAddr = errors.New("meshchat: invalid address")
)

// StartError 节点启动失败
//
// Op 取值: config、identity、listen、bootstrap、start。
type StartError struct {
	Op  string
	Err error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("meshchat: start: %s: %v", e.Op, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

// PublishError 发布失败，节点仍可继续使用
type PublishError struct {
	Topic string
	Err   error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("meshchat: publish to %q: %v", e.Topic, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }
