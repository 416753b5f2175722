// Package logging configures the structured logger shared by all
// carlactl commands.
package logging

import (
	"io"

	"github.com/sirupsen/logrus"
)

// New returns a logger writing to out. Diagnostics go to Info level and
// above; verbose enables Debug, which traces each supervised attempt and
// environment-resolution step.
func New(out io.Writer, verbose bool) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(out)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05",
	})
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.InfoLevel)
	}
	return log
}
