//go:build !linux

package system

import (
	"errors"

	"github.com/sirupsen/logrus"
)

// SyslogHook is not supported on this platform
func SyslogHook(_ string) (logrus.Hook, error) {
	return nil, errors.New("syslog not supported on this platform")
}
