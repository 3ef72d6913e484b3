package history

import (
	"fmt"
	"strings"

	"github.com/jamesainslie/repotool/pkg/repotool/logging"
)

// badgerLogger routes badger's internal messages to the history logger.
// Badger's info chatter is demoted to debug.
type badgerLogger struct {
	log *logging.Logger
}

func (b badgerLogger) Errorf(format string, args ...interface{}) {
	b.log.Error(badgerMessage(format, args))
}

func (b badgerLogger) Warningf(format string, args ...interface{}) {
	b.log.Warn(badgerMessage(format, args))
}

func (b badgerLogger) Infof(format string, args ...interface{}) {
	b.log.Debug(badgerMessage(format, args))
}

func (b badgerLogger) Debugf(format string, args ...interface{}) {
	b.log.Debug(badgerMessage(format, args))
}

func badgerMessage(format string, args []interface{}) string {
	return "badger: " + strings.TrimSpace(fmt.Sprintf(format, args...))
}
