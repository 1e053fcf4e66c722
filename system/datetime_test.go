package system

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func TestDateTime(t *testing.T) {
	d := NewDateTime("", false, logrus.NewEntry(logrus.StandardLogger()))

	obtained := make(chan struct{}, 2)
	d.SetHandler(func() { obtained <- struct{}{} })

	ntpTime := time.Now().Add(time.Hour)
	fail := true
	d.SetQuery(func(host string) (time.Time, error) {
		if host != DefaultNTPServer {
			t.Error("wrong host: ", host)
		}
		if fail {
			return time.Time{}, errors.New("no network")
		}
		return ntpTime, nil
	})

	if err := d.Update(); err == nil {
		t.Error("expected error")
	}

	if d.Valid() {
		t.Error("time valid after failed update")
	}

	fail = false
	if err := d.Update(); err != nil {
		t.Fatal("update error: ", err)
	}

	if !d.Valid() {
		t.Error("time not valid after update")
	}

	select {
	case <-obtained:
	default:
		t.Error("handler not called")
	}

	if diff := d.Now().Sub(ntpTime); diff < -time.Second || diff > time.Second {
		t.Error("corrected time off by: ", diff)
	}
}

func TestDateTimeAsync(t *testing.T) {
	d := NewDateTime("pool", false, logrus.NewEntry(logrus.StandardLogger()))

	obtained := make(chan struct{}, 1)
	d.SetHandler(func() { obtained <- struct{}{} })
	d.SetQuery(func(_ string) (time.Time, error) { return time.Now(), nil })

	d.UpdateAsync()

	select {
	case <-obtained:
	case <-time.After(2 * time.Second):
		t.Fatal("async update did not complete")
	}
}

func TestDateTimeConcurrentSet(t *testing.T) {
	logger, hook := test.NewNullLogger()
	d := NewDateTime("", false, logrus.NewEntry(logger))

	var calls atomic.Int32
	d.SetHandler(func() { calls.Add(1) })

	// a GPS fix and an NTP answer can arrive together
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		from := "gps"
		if i%2 == 1 {
			from = "ntp"
		}
		go func() {
			defer wg.Done()
			d.Set(time.Now().Add(time.Minute), from)
		}()
		go func() {
			defer wg.Done()
			_ = d.Now()
		}()
	}
	wg.Wait()

	if n := calls.Load(); n != 20 {
		t.Error("handler calls: ", n)
	}
	if !d.Valid() {
		t.Error("time not valid")
	}
	if n := len(hook.AllEntries()); n != 20 {
		t.Error("log entries: ", n)
	}
	if diff := d.Now().Sub(time.Now()); diff < 50*time.Second || diff > 70*time.Second {
		t.Error("offset: ", diff)
	}
}
