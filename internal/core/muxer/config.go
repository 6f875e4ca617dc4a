package muxer

import (
	"io"
	"time"

	"github.com/hashicorp/yamux"
)

// Config 复用参数
type Config struct {
	AcceptBacklog       int
	MaxStreamWindowSize uint32
	KeepAliveInterval   time.Duration
	WriteTimeout        time.Duration
	StreamOpenTimeout   time.Duration
}

// DefaultConfig 默认参数
func DefaultConfig() Config {
	return Config{
		AcceptBacklog:       256,
		MaxStreamWindowSize: 256 * 1024,
		KeepAliveInterval:   15 * time.Second,
		WriteTimeout:        10 * time.Second,
		StreamOpenTimeout:   30 * time.Second,
	}
}

func (c Config) yamux() *yamux.Config {
	def := DefaultConfig()
	if c.AcceptBacklog <= 0 {
		c.AcceptBacklog = def.AcceptBacklog
	}
	if c.MaxStreamWindowSize < 256*1024 {
		c.MaxStreamWindowSize = def.MaxStreamWindowSize
	}
	if c.KeepAliveInterval <= 0 {
		c.KeepAliveInterval = def.KeepAliveInterval
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.StreamOpenTimeout <= 0 {
		c.StreamOpenTimeout = def.StreamOpenTimeout
	}
	return &yamux.Config{
		AcceptBacklog:          c.AcceptBacklog,
		EnableKeepAlive:        true,
		KeepAliveInterval:      c.KeepAliveInterval,
		ConnectionWriteTimeout: c.WriteTimeout,
		MaxStreamWindowSize:    c.MaxStreamWindowSize,
		StreamOpenTimeout:      c.StreamOpenTimeout,
		StreamCloseTimeout:     time.Minute,
		LogOutput:              io.Discard,
	}
}
