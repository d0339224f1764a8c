package telemetry

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Config holds the telemetry settings of one client.
type Config struct {
	ServiceName    string
	ServiceVersion string

	// LogLevel is parsed with logrus.ParseLevel; unknown values mean "warn".
	LogLevel string
	// Output receives log lines; nil means stderr.
	Output io.Writer
	// Logger, when set, is used as is and the fields above are ignored.
	Logger *logrus.Logger
}

// DefaultConfig returns the settings used when the caller provides none.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "metabase-go",
		ServiceVersion: Version,
		LogLevel:       "warn",
	}
}

// Version is reported in log lines and the default user agent.
const Version = "1.0.0"
