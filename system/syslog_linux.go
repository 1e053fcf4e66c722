//go:build linux

package system

import (
	"log/syslog"

	"github.com/sirupsen/logrus"
	lsyslog "github.com/sirupsen/logrus/hooks/syslog"
)

// SyslogHook returns a logrus hook that copies log entries to the local
// syslog daemon.
func SyslogHook(tag string) (logrus.Hook, error) {
	return lsyslog.NewSyslogHook("", "", syslog.LOG_NOTICE, tag)
}
