package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var base *zap.Logger

var serviceName = "trade_core"

func SetServiceName(newName string) string {
	oldName := serviceName
	serviceName = newName

	return oldName
}

// Init поднимает базовый zap-логгер. Вызывается один раз при старте приложения.
func Init(level string) error {
	cfg := zap.NewProductionConfig()
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return err
	}
	base = l
	return nil
}

func log() *zap.Logger {
	if base == nil {
		// тесты и утилиты не обязаны звать Init
		base, _ = zap.NewProduction(zap.AddCallerSkip(1))
	}
	return base.With(zap.String("service", serviceName))
}

func Info(format string, args ...interface{}) {
	log().Info(fmt.Sprintf(format, args...))
}

func Warn(format string, args ...interface{}) {
	log().Warn(fmt.Sprintf(format, args...))
}

func Error(format string, args ...interface{}) {
	log().Error(fmt.Sprintf(format, args...))
}

// Critical — для случаев, когда падать нельзя, но терять сообщение тем более
// (например ошибка отката OCO-группы).
func Critical(format string, args ...interface{}) {
	log().Error(fmt.Sprintf(format, args...), zap.Bool("critical", true))
}

func Fatal(format string, args ...interface{}) {
	log().Fatal(fmt.Sprintf(format, args...))
}
