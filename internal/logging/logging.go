// Package logging wraps zap and lumberjack behind a small global sugar API,
// following the console+file tee'd core the firmware's logger package uses.
package logging

import (
	"os"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

// Logger is the process-global sugared logger. Initialized by Init;
// until then it is a no-op logger, so tests need not call Init.
var Logger = zap.NewNop().Sugar()

// Init wires a console core and a rotating file core (via lumberjack) into
// one tee'd zap logger. logfile == "" disables the file core.
func Init(level Level, logfile string, maxSizeMB, maxBackups, maxAgeDays int) {
	zl := toZapLevel(level)

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	consoleEnc := zapcore.NewConsoleEncoder(encCfg)

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEnc, zapcore.Lock(os.Stdout), zl),
	}

	if logfile != "" {
		rotator := &lumberjack.Logger{
			Filename:   logfile,
			MaxSize:    maxSizeMB,
			MaxBackups: maxBackups,
			MaxAge:     maxAgeDays,
			Compress:   true,
		}
		jsonEnc := zapcore.NewJSONEncoder(encCfg)
		cores = append(cores, zapcore.NewCore(jsonEnc, zapcore.AddSync(rotator), zl))
	}

	core := zapcore.NewTee(cores...)
	Logger = zap.New(core, zap.AddCaller()).Sugar()
}

func toZapLevel(l Level) zapcore.Level {
	switch l {
	case Debug:
		return zapcore.DebugLevel
	case Warn:
		return zapcore.WarnLevel
	case Error:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func Debugf(format string, args ...interface{}) { Logger.Debugf(format, args...) }
func Infof(format string, args ...interface{})  { Logger.Infof(format, args...) }
func Warnf(format string, args ...interface{})  { Logger.Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { Logger.Errorf(format, args...) }
