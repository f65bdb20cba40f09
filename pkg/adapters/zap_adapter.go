package adapters

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kerlexov/clientlog/pkg/logger"
)

type ZapCore struct {
	clientLogger logger.Logger
	level        zapcore.LevelEnabler
}

func NewZapCore(clientLogger logger.Logger) zapcore.Core {
	return NewZapCoreWithLevel(clientLogger, zapcore.DebugLevel)
}

func NewZapCoreWithLevel(clientLogger logger.Logger, level zapcore.LevelEnabler) zapcore.Core {
	return &ZapCore{
		clientLogger: clientLogger,
		level:        level,
	}
}

func (zc *ZapCore) Enabled(level zapcore.Level) bool {
	return zc.level.Enabled(level)
}

func (zc *ZapCore) With(fields []zapcore.Field) zapcore.Core {
	return &ZapCore{
		clientLogger: zc.clientLogger.WithFields(zapFields(fields)...),
		level:        zc.level,
	}
}

func (zc *ZapCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if zc.Enabled(entry.Level) {
		return checked.AddCore(entry, zc)
	}
	return checked
}

func (zc *ZapCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	converted := zapFields(fields)
	if entry.LoggerName != "" {
		converted = append(converted, logger.Tag(entry.LoggerName))
	}
	zc.clientLogger.Log(zapLevel(entry.Level), entry.Message, converted...)
	return nil
}

func (zc *ZapCore) Sync() error {
	zc.clientLogger.Flush()
	return nil
}

func zapLevel(level zapcore.Level) logger.Level {
	switch level {
	case zapcore.DebugLevel:
		return logger.LevelDebug
	case zapcore.InfoLevel:
		return logger.LevelInfo
	case zapcore.WarnLevel:
		return logger.LevelWarn
	case zapcore.ErrorLevel, zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		return logger.LevelError
	default:
		return logger.LevelInfo
	}
}

// zapFields resolves each field through a map encoder so typed zap fields
// (ints, durations, errors) come out as plain values.
func zapFields(fields []zapcore.Field) []logger.Field {
	enc := zapcore.NewMapObjectEncoder()
	for _, field := range fields {
		field.AddTo(enc)
	}

	out := make([]logger.Field, 0, len(enc.Fields))
	for key, value := range enc.Fields {
		if key == TagKey {
			if tag, ok := value.(string); ok {
				out = append(out, logger.Tag(tag))
				continue
			}
		}
		out = append(out, logger.F(key, value))
	}
	return out
}

func NewZapLogger(clientLogger logger.Logger) *zap.Logger {
	return zap.New(NewZapCore(clientLogger))
}

func NewZapSugaredLogger(clientLogger logger.Logger) *zap.SugaredLogger {
	return NewZapLogger(clientLogger).Sugar()
}
