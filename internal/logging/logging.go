// Package logging provides the shared structured logger for portier.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// NewLogger creates a logrus entry pre-configured for a named service.
// Output is JSON to stdout; the service field is embedded in every line.
func NewLogger(service, level string) *logrus.Entry {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	log.SetOutput(os.Stdout)

	parsed, err := logrus.ParseLevel(level)
	if err != nil || level == "" {
		parsed = logrus.InfoLevel
	}
	log.SetLevel(parsed)

	return log.WithField("service", service)
}
