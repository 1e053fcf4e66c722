//go:build !linux

package system

import (
	"os/exec"
	"time"

	"github.com/pkg/errors"
)

// SetTime sets the system time with the date command
func SetTime(t time.Time) error {
	tStr := t.Format("2006-01-02 15:04:05")

	err := exec.Command("date", "-s", tStr).Run()
	if err != nil {
		return errors.Wrap(err, "setting system time")
	}

	return nil
}
