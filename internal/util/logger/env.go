package logger

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Format 输出格式
type Format int

const (
	FormatText Format = iota
	FormatJSON
)

// Env 由环境变量解析出的日志配置
type Env struct {
	DefaultLevel slog.Level
	Levels       map[string]slog.Level
	Format       Format
	File         string
}

// LevelFor 子系统级别，未单独配置时返回默认级别
func (e *Env) LevelFor(subsystem string) slog.Level {
	if l, ok := e.Levels[subsystem]; ok {
		return l
	}
	return e.DefaultLevel
}

var (
	envOnce sync.Once
	env     *Env
)

// EnvConfig 解析一次环境变量并缓存
func EnvConfig() *Env {
	envOnce.Do(func() {
		env = ParseEnv(os.Getenv("MESHCHAT_LOG_LEVEL"), os.Getenv("MESHCHAT_LOG_FORMAT"))
		env.File = os.Getenv("MESHCHAT_LOG_FILE")
		if env.File != "" {
			if f, err := os.OpenFile(env.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
				SetOutput(f)
			}
		}
	})
	return env
}

// ParseEnv 解析 "sub=level,sub=level,default" 形式的级别串
func ParseEnv(levels, format string) *Env {
	e := &Env{
		DefaultLevel: slog.LevelInfo,
		Levels:       make(map[string]slog.Level),
	}
	for _, part := range strings.Split(levels, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, lvl, found := strings.Cut(part, "=")
		if !found {
			if l, ok := ParseLevel(name); ok {
				e.DefaultLevel = l
			}
			continue
		}
		if l, ok := ParseLevel(strings.TrimSpace(lvl)); ok {
			e.Levels[strings.TrimSpace(name)] = l
		}
	}
	if strings.EqualFold(format, "json") {
		e.Format = FormatJSON
	}
	return e
}

// ParseLevel 解析级别名
func ParseLevel(name string) (slog.Level, bool) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}
