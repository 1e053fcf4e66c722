//go:build linux

package system

import (
	"os/exec"
	"syscall"
	"time"

	"github.com/pkg/errors"
)

// SetTime sets the system time and syncs the RTC
func SetTime(t time.Time) error {
	tv := syscall.NsecToTimeval(t.UnixNano())
	err := syscall.Settimeofday(&tv)
	if err != nil {
		return errors.Wrap(err, "synchronizing system clock")
	}

	// always store time in UTC on the RTC
	err = exec.Command("hwclock", "-w", "-u").Run()
	if err != nil {
		return errors.Wrap(err, "writing RTC")
	}

	return nil
}
