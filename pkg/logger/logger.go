package logger

import (
	"fmt"
	"io"
	"os"

	"retest_backend/internal/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Log 在 InitLogger 之前是 no-op，测试中可以直接打日志
var Log = zap.NewNop()

var encoderConfig = zapcore.EncoderConfig{
	TimeKey:        "time",
	LevelKey:       "level",
	NameKey:        "logger",
	CallerKey:      "caller",
	MessageKey:     "msg",
	StacktraceKey:  "stacktrace",
	LineEnding:     zapcore.DefaultLineEnding,
	EncodeLevel:    zapcore.CapitalLevelEncoder,
	EncodeTime:     zapcore.ISO8601TimeEncoder,
	EncodeDuration: zapcore.SecondsDurationEncoder,
	EncodeCaller:   zapcore.ShortCallerEncoder,
}

// ResolveLevel 配置了 level 就按配置，否则 debug 模式用 debug，其余用 info
func ResolveLevel(cfg config.LogConfig, mode string) (zapcore.Level, error) {
	if cfg.Level != "" {
		lvl, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return zap.InfoLevel, fmt.Errorf("log.level: %w", err)
		}
		return lvl, nil
	}
	if mode == "debug" {
		return zap.DebugLevel, nil
	}
	return zap.InfoLevel, nil
}

// Build 文件输出为 JSON（lumberjack 切割），console 打开时另输出到 stdout
func Build(cfg config.LogConfig, mode string) (*zap.Logger, error) {
	return build(cfg, mode, os.Stdout)
}

func build(cfg config.LogConfig, mode string, console io.Writer) (*zap.Logger, error) {
	level, err := ResolveLevel(cfg, mode)
	if err != nil {
		return nil, err
	}

	var cores []zapcore.Core
	if cfg.Filename != "" {
		fileWriter := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		})
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), fileWriter, level))
	}
	if cfg.Console {
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(console), level))
	}
	if len(cores) == 0 {
		return nil, fmt.Errorf("log: neither filename nor console is configured")
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel)), nil
}

func InitLogger(cfg *config.Config) {
	l, err := Build(cfg.Log, cfg.Server.Mode)
	if err != nil {
		// 配置有误时退回到 stdout，不让服务因为日志起不来
		fallback := cfg.Log
		fallback.Level = ""
		fallback.Console = true
		l, _ = build(fallback, cfg.Server.Mode, os.Stdout)
		l.Warn("Invalid log config, falling back", zap.Error(err))
	}
	Log = l
}
