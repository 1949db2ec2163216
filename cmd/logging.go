package cmd

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// setupLogging sets the logrus level and, when file is set, tees log output
// into a rotating file. The returned func closes the file.
func setupLogging(level, file string) (func(), error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, errors.Errorf("invalid log level: %s", level)
	}
	logrus.SetLevel(lvl)
	if file == "" {
		return func() {}, nil
	}

	rotating := &lumberjack.Logger{
		Filename:   file,
		MaxSize:    100, // MB
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
	logrus.SetOutput(io.MultiWriter(os.Stderr, rotating))
	return func() {
		logrus.SetOutput(os.Stderr)
		_ = rotating.Close()
	}, nil
}
