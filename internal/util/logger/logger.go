// Package logger 提供 meshchat 的分子系统日志
//
// 基于 log/slog。每个包持有一个子系统 Logger:
//
//	var logger = logger.Logger("swarm")
//
// 环境变量:
//
//	MESHCHAT_LOG_LEVEL=swarm=debug,pubsub=info,warn   # 子系统级别 + 默认级别
//	MESHCHAT_LOG_FORMAT=json                          # text（默认）或 json
//	MESHCHAT_LOG_FILE=/var/log/meshchat.log           # 默认 stderr
package logger

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

var (
	loggers  sync.Map // subsystem -> *slog.Logger
	handlers sync.Map // subsystem -> *subsystemHandler

	outputMu sync.RWMutex
	output   io.Writer = os.Stderr
)

// Logger 返回子系统 Logger，同名多次调用返回同一实例
func Logger(subsystem string) *slog.Logger {
	if l, ok := loggers.Load(subsystem); ok {
		return l.(*slog.Logger)
	}

	env := EnvConfig()
	h := newSubsystemHandler(subsystem, env.LevelFor(subsystem), env.Format)
	l, loaded := loggers.LoadOrStore(subsystem, slog.New(h))
	if !loaded {
		handlers.Store(subsystem, h)
	}
	return l.(*slog.Logger)
}

// SetLevel 运行时调整子系统级别
func SetLevel(subsystem string, level slog.Level) {
	Logger(subsystem)
	if h, ok := handlers.Load(subsystem); ok {
		h.(*subsystemHandler).setLevel(level)
	}
}

// SetAllLevels 调整所有已创建子系统的级别
func SetAllLevels(level slog.Level) {
	handlers.Range(func(_, v any) bool {
		v.(*subsystemHandler).setLevel(level)
		return true
	})
}

// SetOutput 切换所有 Logger 的输出目标，已创建的 Logger 同样生效
func SetOutput(w io.Writer) {
	outputMu.Lock()
	output = w
	outputMu.Unlock()
}

// Discard 返回丢弃一切的 Logger（测试用）
func Discard() *slog.Logger {
	return slog.New(discardHandler{})
}

type switchWriter struct{}

func (switchWriter) Write(p []byte) (int, error) {
	outputMu.RLock()
	w := output
	outputMu.RUnlock()
	return w.Write(p)
}
