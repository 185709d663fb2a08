package logs

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Setup настраивает стандартный logrus-логгер: уровень и формат ("text" или "json")
func Setup(level, format string) {
	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logrus.SetLevel(lvl)
	logrus.SetOutput(os.Stdout)

	if strings.EqualFold(format, "json") {
		logrus.SetFormatter(&logrus.JSONFormatter{})
		return
	}
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

// For возвращает логгер с полем component
func For(component string) *logrus.Entry {
	return logrus.WithField("component", component)
}
