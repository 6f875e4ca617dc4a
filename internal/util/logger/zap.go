package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Zap 返回供 fx 事件日志使用的 zap Logger
//
// MESHCHAT_FX_DEBUG=1 时输出到当前日志目标，否则为 Nop。
func Zap() *zap.Logger {
	if os.Getenv("MESHCHAT_FX_DEBUG") != "1" {
		return zap.NewNop()
	}
	enc := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	core := zapcore.NewCore(enc, zapcore.AddSync(switchWriter{}), zapcore.DebugLevel)
	return zap.New(core).Named("fx")
}
