package shared

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Log is the process-wide logger. It is usable before InitLogger runs.
var Log = logrus.New()

// InitLogger configures Log from the service configuration.
func InitLogger(config *ServiceConfig) *logrus.Logger {
	if IsDevelopment(config) {
		Log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		Log.SetFormatter(&logrus.JSONFormatter{})
	}

	Log.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(GetLogLevel(config))
	if err != nil {
		level = logrus.InfoLevel
	}
	Log.SetLevel(level)

	return Log
}
