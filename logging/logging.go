/*
   Basilisk - Binary Analysis Artifact Store
   Copyright (C) 2026 Velocidex Innovations.

   This program is free software: you can redistribute it and/or modify
   it under the terms of the GNU Affero General Public License as published
   by the Free Software Foundation, either version 3 of the License, or
   (at your option) any later version.

   This program is distributed in the hope that it will be useful,
   but WITHOUT ANY WARRANTY; without even the implied warranty of
   MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
   GNU Affero General Public License for more details.

   You should have received a copy of the GNU Affero General Public License
   along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
package logging

import (
	"fmt"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
	"www.velocidex.com/golang/basilisk/config"
)

var (
	// Each subsystem gets its own named logger. Pass a pointer to one
	// of these to GetLogger.
	GenericComponent  = "basilisk"
	IngestComponent   = "basilisk.ingest"
	DispatchComponent = "basilisk.dispatch"
	ScalesComponent   = "basilisk.scales"
	StoreComponent    = "basilisk.store"
	ToolComponent     = "basilisk.tool"

	mu       sync.Mutex
	managers = make(map[string]*LogContext)

	SuppressLogging = false
)

type LogContext struct {
	*logrus.Logger
}

func (self *LogContext) Info(format string, v ...interface{}) {
	if self.Logger != nil {
		self.Logger.Info(fmt.Sprintf(format, v...))
	}
}

func (self *LogContext) Warn(format string, v ...interface{}) {
	if self.Logger != nil {
		self.Logger.Warn(fmt.Sprintf(format, v...))
	}
}

func (self *LogContext) Error(format string, v ...interface{}) {
	if self.Logger != nil {
		self.Logger.Error(fmt.Sprintf(format, v...))
	}
}

func (self *LogContext) Debug(format string, v ...interface{}) {
	if self.Logger != nil {
		self.Logger.Debug(fmt.Sprintf(format, v...))
	}
}

// GetLogger returns the cached logger for the component, creating it
// on first use. A nil config gets default (info level) settings.
func GetLogger(config_obj *config.Config, component *string) *LogContext {
	mu.Lock()
	defer mu.Unlock()

	ctx, pres := managers[*component]
	if pres {
		return ctx
	}

	logger := logrus.New()
	logger.Out = os.Stderr
	logger.Level = getLevel(config_obj)
	logger.Formatter = &logrus.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02T15:04:05Z07:00",
	}

	if SuppressLogging {
		logger.Out = &nullWriter{}
	}

	ctx = &LogContext{logger}
	managers[*component] = ctx
	return ctx
}

// Reset discards all cached loggers. Mostly useful in tests which
// flip SuppressLogging.
func Reset() {
	mu.Lock()
	defer mu.Unlock()

	managers = make(map[string]*LogContext)
}

func getLevel(config_obj *config.Config) logrus.Level {
	if config_obj == nil || config_obj.Logging == nil {
		return logrus.InfoLevel
	}

	switch config_obj.Logging.Level {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

type nullWriter struct{}

func (self *nullWriter) Write(p []byte) (int, error) {
	return len(p), nil
}
