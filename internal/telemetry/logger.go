package telemetry

import (
	"context"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
)

var (
	defaultLogger *logrus.Logger
	defaultOnce   sync.Once
)

// NewLogger builds a JSON logger with the service fields attached.
func NewLogger(cfg *Config) *logrus.Entry {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.New()

		level, err := logrus.ParseLevel(cfg.LogLevel)
		if err != nil {
			level = logrus.WarnLevel
		}
		log.SetLevel(level)

		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "@timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
		if cfg.Output != nil {
			log.SetOutput(cfg.Output)
		} else {
			log.SetOutput(os.Stderr)
		}
	}

	return log.WithFields(logrus.Fields{
		"service.name":    cfg.ServiceName,
		"service.version": cfg.ServiceVersion,
	})
}

// L returns the package default logger, used by components built without one
func L() *logrus.Entry {
	defaultOnce.Do(func() {
		defaultLogger = NewLogger(DefaultConfig()).Logger
	})
	return logrus.NewEntry(defaultLogger)
}

// WithContext adds trace information to the entry
func WithContext(ctx context.Context, entry *logrus.Entry) *logrus.Entry {
	if entry == nil {
		entry = L()
	}
	entry = entry.WithContext(ctx)

	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		entry = entry.WithFields(logrus.Fields{
			"trace.id": span.SpanContext().TraceID().String(),
			"span.id":  span.SpanContext().SpanID().String(),
		})
	}
	return entry
}
