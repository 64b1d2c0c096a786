// Package logging 按配置构建 zap.Logger
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Config 只取日志相关的两项
type Config struct {
	Level  string // debug | info | warn | error
	Format string // json | console
}

var levels = map[string]zapcore.Level{
	"debug": zapcore.DebugLevel,
	"info":  zapcore.InfoLevel,
	"warn":  zapcore.WarnLevel,
	"error": zapcore.ErrorLevel,
}

// New 日志统一写 stderr，stdout 留给命令输出
func New(cfg Config) (*zap.Logger, error) {
	levelName := strings.ToLower(cfg.Level)
	if levelName == "" {
		levelName = "warn"
	}
	level, ok := levels[levelName]
	if !ok {
		return nil, fmt.Errorf("unsupported log level: %s", cfg.Level)
	}

	var zc zap.Config
	switch strings.ToLower(cfg.Format) {
	case "", FormatConsole:
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zc.DisableStacktrace = true
	case FormatJSON:
		zc = zap.NewProductionConfig()
	default:
		return nil, fmt.Errorf("unsupported log format: %s", cfg.Format)
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}

	return zc.Build()
}
