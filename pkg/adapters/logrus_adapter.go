package adapters

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/kerlexov/clientlog/pkg/logger"
)

// TagKey is the field name that adapters turn into the entry tag.
const TagKey = "tag"

type LogrusHook struct {
	clientLogger logger.Logger
	levels       []logrus.Level
}

func NewLogrusHook(clientLogger logger.Logger) *LogrusHook {
	return &LogrusHook{
		clientLogger: clientLogger,
		levels:       logrus.AllLevels,
	}
}

func (hook *LogrusHook) Levels() []logrus.Level {
	return hook.levels
}

func (hook *LogrusHook) Fire(entry *logrus.Entry) error {
	fields := make([]logger.Field, 0, len(entry.Data))
	for key, value := range entry.Data {
		if key == TagKey {
			if tag, ok := value.(string); ok {
				fields = append(fields, logger.Tag(tag))
				continue
			}
		}
		if err, ok := value.(error); ok {
			value = err.Error()
		}
		fields = append(fields, logger.F(key, value))
	}

	ctx := entry.Context
	if ctx == nil {
		hook.clientLogger.Log(logrusLevel(entry.Level), entry.Message, fields...)
		return nil
	}
	hook.clientLogger.LogContext(ctx, logrusLevel(entry.Level), entry.Message, fields...)
	return nil
}

func logrusLevel(level logrus.Level) logger.Level {
	switch level {
	case logrus.TraceLevel, logrus.DebugLevel:
		return logger.LevelDebug
	case logrus.InfoLevel:
		return logger.LevelInfo
	case logrus.WarnLevel:
		return logger.LevelWarn
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		return logger.LevelError
	default:
		return logger.LevelInfo
	}
}

func InstallLogrusHook(clientLogger logger.Logger) {
	logrus.AddHook(NewLogrusHook(clientLogger))
}

// LogrusFormatter forwards every formatted entry and then delegates the
// actual rendering to original.
type LogrusFormatter struct {
	hook     *LogrusHook
	original logrus.Formatter
}

func NewLogrusFormatter(clientLogger logger.Logger, original logrus.Formatter) *LogrusFormatter {
	return &LogrusFormatter{
		hook:     NewLogrusHook(clientLogger),
		original: original,
	}
}

func (f *LogrusFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	_ = f.hook.Fire(entry)

	if f.original != nil {
		return f.original.Format(entry)
	}

	return []byte(fmt.Sprintf("[%s] %s\n", entry.Level.String(), entry.Message)), nil
}
