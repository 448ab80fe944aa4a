package logging

import (
	"github.com/sirupsen/logrus"

	"github.com/pwanimeetup/referral/internal/config"
)

// New builds the process-wide logger from config. Production gets JSON
// output; everything else keeps the default text formatter.
func New(cfg *config.Config) *logrus.Logger {
	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.App.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
		log.WithField("log_level", cfg.App.LogLevel).Warn("Unknown log level, falling back to info")
	}
	log.SetLevel(level)

	if cfg.App.IsProduction() {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	if cfg.App.Debug {
		log.SetLevel(logrus.DebugLevel)
	}

	return log
}
