package logger

import (
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the logging abstraction the rest of the system depends on.
type Logger interface {
	Debug(action, requestID, msg string, fields ...Field)
	Info(action, requestID, msg string, fields ...Field)
	Warn(action, requestID, msg string, fields ...Field)
	Error(action, requestID, msg string, err error, fields ...Field)
	With(fields ...Field) Logger
	Sync() error
}

// Field is a single structured log entry field.
type Field struct {
	Key   string
	Value interface{}
}

func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

func Float64(key string, value float64) Field {
	return Field{Key: key, Value: value}
}

func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

func Any(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

type zapLogger struct {
	logger *zap.Logger
}

// New creates a JSON logger for the given service mode. Every entry carries
// the service name, hostname, action and request_id.
func New(service string) (Logger, error) {
	hostname, _ := os.Hostname()

	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.OutputPaths = []string{"stdout"}
	config.ErrorOutputPaths = []string{"stderr"}
	config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)

	base, err := config.Build()
	if err != nil {
		return nil, err
	}

	return &zapLogger{
		logger: base.With(
			zap.String("service", service),
			zap.String("hostname", hostname),
		),
	}, nil
}

// NewNop returns a logger that discards everything. Used in tests.
func NewNop() Logger {
	return &zapLogger{logger: zap.NewNop()}
}

// GenerateRequestID returns a unique id used to correlate log entries
// produced while handling a single incoming action.
func GenerateRequestID() string {
	return uuid.NewString()
}

func (l *zapLogger) Debug(action, requestID, msg string, fields ...Field) {
	l.logger.Debug(msg, convertFields(action, requestID, fields)...)
}

func (l *zapLogger) Info(action, requestID, msg string, fields ...Field) {
	l.logger.Info(msg, convertFields(action, requestID, fields)...)
}

func (l *zapLogger) Warn(action, requestID, msg string, fields ...Field) {
	l.logger.Warn(msg, convertFields(action, requestID, fields)...)
}

func (l *zapLogger) Error(action, requestID, msg string, err error, fields ...Field) {
	zapFields := convertFields(action, requestID, fields)
	if err != nil {
		zapFields = append(zapFields, zap.Error(err))
	}
	l.logger.Error(msg, zapFields...)
}

func (l *zapLogger) With(fields ...Field) Logger {
	zapFields := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		zapFields = append(zapFields, zap.Any(f.Key, f.Value))
	}
	return &zapLogger{logger: l.logger.With(zapFields...)}
}

func (l *zapLogger) Sync() error {
	return l.logger.Sync()
}

func convertFields(action, requestID string, fields []Field) []zap.Field {
	zapFields := make([]zap.Field, 0, len(fields)+2)
	zapFields = append(zapFields, zap.String("action", action))
	if requestID != "" {
		zapFields = append(zapFields, zap.String("request_id", requestID))
	}
	for _, f := range fields {
		switch v := f.Value.(type) {
		case string:
			zapFields = append(zapFields, zap.String(f.Key, v))
		case int:
			zapFields = append(zapFields, zap.Int(f.Key, v))
		case int64:
			zapFields = append(zapFields, zap.Int64(f.Key, v))
		case float64:
			zapFields = append(zapFields, zap.Float64(f.Key, v))
		case bool:
			zapFields = append(zapFields, zap.Bool(f.Key, v))
		case error:
			zapFields = append(zapFields, zap.Error(v))
		default:
			zapFields = append(zapFields, zap.Any(f.Key, v))
		}
	}
	return zapFields
}
