// Package logger 提供基于zap的日志初始化，支持文件轮转与运行时级别调整
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var level = zap.NewAtomicLevelAt(zapcore.InfoLevel)

// Options 日志配置
type Options struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// Init 初始化全局日志器。File为空时仅输出到stdout。
func Init(opts Options) (*zap.Logger, error) {
	if opts.Level != "" {
		lv, err := zapcore.ParseLevel(opts.Level)
		if err != nil {
			return nil, err
		}
		level.SetLevel(lv)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	syncers := []zapcore.WriteSyncer{zapcore.AddSync(os.Stdout)}
	if opts.File != "" {
		syncers = append(syncers, zapcore.AddSync(&lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			Compress:   true,
		}))
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encCfg),
		zapcore.NewMultiWriteSyncer(syncers...),
		level,
	)
	l := zap.New(core, zap.AddCaller())
	zap.ReplaceGlobals(l)
	return l, nil
}

// SetLevel 运行时调整日志级别，配合配置热加载使用
func SetLevel(s string) error {
	lv, err := zapcore.ParseLevel(s)
	if err != nil {
		return err
	}
	level.SetLevel(lv)
	return nil
}
