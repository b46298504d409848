package node

import (
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/thumbshare/config"
)

// ConfigureLogging applies level and format to the standard logrus logger.
func ConfigureLogging(cfg config.LoggingConfig) error {
	level, err := logrus.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return err
	}
	logrus.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}
