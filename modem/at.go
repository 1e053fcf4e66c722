package modem

import (
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/simpleiot/assettracker/data"
)

// DefaultCmdTimeout is the time a modem has to answer a command
const DefaultCmdTimeout = 10 * time.Second

// AT is a driver for LTE modems with a 3GPP AT command interface
type AT struct {
	open    func() (io.ReadWriteCloser, error)
	timeout time.Duration
	log     *logrus.Entry

	lock sync.Mutex
	port *atPort
}

// NewAT creates a modem driver on the port returned by open
func NewAT(open func() (io.ReadWriteCloser, error), timeout time.Duration, log *logrus.Entry) *AT {
	if timeout <= 0 {
		timeout = DefaultCmdTimeout
	}
	return &AT{open: open, timeout: timeout, log: log}
}

func (a *AT) cmd(cmd string) ([]string, error) {
	a.lock.Lock()
	port := a.port
	a.lock.Unlock()

	if port == nil {
		return nil, errors.New("modem not initialized")
	}

	a.log.Debugf("Modem Tx: %v", cmd)
	resp, err := port.CmdRetry(cmd)
	a.log.Debugf("Modem Rx: %q", resp)
	return resp, err
}

func (a *AT) cmdOK(cmd string) error {
	_, err := a.cmd(cmd)
	return err
}

// Init opens the port, turns echo off, and enables registration reports
// with location information.
func (a *AT) Init() error {
	a.lock.Lock()
	if a.port == nil {
		port, err := a.open()
		if err != nil {
			a.lock.Unlock()
			return errors.Wrap(err, "error opening modem port")
		}
		a.port = newATPort(port, a.timeout)
	}
	a.lock.Unlock()

	// echo confuses response framing
	if err := a.cmdOK("ATE0"); err != nil {
		return err
	}

	return a.cmdOK("AT+CEREG=2")
}

// Connect starts the LTE attach
func (a *AT) Connect() error {
	return a.cmdOK("AT+CFUN=1")
}

// PowerOff sets minimum functionality
func (a *AT) PowerOff() error {
	return a.cmdOK("AT+CFUN=0")
}

// Close the port
func (a *AT) Close() error {
	a.lock.Lock()
	defer a.lock.Unlock()
	if a.port == nil {
		return nil
	}
	err := a.port.Close()
	a.port = nil
	return err
}

// +CEREG: 2,1,"0102","0A0B0C0D",7
// the unsolicited form lacks <n>: +CEREG: 1,"0102","0A0B0C0D",7
var reCereg = regexp.MustCompile(`\+CEREG:\s*(?:\d+,)?(\d+)(?:,"([0-9A-Fa-f]*)","([0-9A-Fa-f]*)"(?:,(\d+))?)?`)

// Status reads the network registration
func (a *AT) Status() (Status, error) {
	resp, err := a.cmd("AT+CEREG?")
	if err != nil {
		return Status{}, err
	}

	st, err := parseCereg(resp)
	if err != nil {
		return st, err
	}

	if st.Registered() {
		if st.Cell.MccMnc, err = a.operator(); err != nil {
			a.log.WithError(err).Warn("Error reading operator")
		}
	}

	return st, nil
}

func parseCereg(resp []string) (Status, error) {
	for _, line := range resp {
		matches := reCereg.FindStringSubmatch(line)
		if matches == nil {
			continue
		}

		var st Status
		stat, _ := strconv.Atoi(matches[1])
		st.Reg = Registration(stat)

		if matches[2] != "" {
			area, _ := strconv.ParseUint(matches[2], 16, 32)
			st.Cell.Area = uint32(area)
		}
		if matches[3] != "" {
			id, _ := strconv.ParseUint(matches[3], 16, 32)
			st.Cell.ID = uint32(id)
		}
		if matches[4] != "" {
			st.AcT, _ = strconv.Atoi(matches[4])
		}

		return st, nil
	}

	return Status{}, fmt.Errorf("error parsing CEREG response: %q", resp)
}

// +COPS: 0,2,"24201",7
var reCops = regexp.MustCompile(`\+COPS:\s*\d+,\d+,"(\d+)"`)

func (a *AT) operator() (string, error) {
	if err := a.cmdOK("AT+COPS=3,2"); err != nil {
		return "", err
	}

	resp, err := a.cmd("AT+COPS?")
	if err != nil {
		return "", err
	}

	for _, line := range resp {
		if m := reCops.FindStringSubmatch(line); m != nil {
			return m[1], nil
		}
	}

	return "", fmt.Errorf("error parsing COPS response: %q", resp)
}

// +CESQ: <rxlev>,<ber>,<rscp>,<ecno>,<rsrq>,<rsrp>
var reCesq = regexp.MustCompile(`\+CESQ:\s*\d+,\d+,\d+,\d+,\d+,(\d+)`)

// rsrp index 255 means not known
const rsrpUnknown = 255

func parseCesq(resp []string) (int, error) {
	for _, line := range resp {
		m := reCesq.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		idx, _ := strconv.Atoi(m[1])
		if idx == rsrpUnknown {
			return 0, errors.New("rsrp not known")
		}
		// index 0 is below -140 dBm
		return idx - 140, nil
	}

	return 0, fmt.Errorf("error parsing CESQ response: %q", resp)
}

// +CGPADDR: 0,"10.160.21.7"
var reCgpaddr = regexp.MustCompile(`\+CGPADDR:\s*\d+,"?([0-9a-fA-F.:]+)"?`)

// +CCID: 89450421180216216095
var reCcid = regexp.MustCompile(`\+CCID:\s*(\d+)`)

// %XCBAND: 20
var reBand = regexp.MustCompile(`%XCBAND:\s*(\d+)`)

func firstMatch(re *regexp.Regexp, resp []string) string {
	for _, line := range resp {
		if m := re.FindStringSubmatch(line); m != nil {
			return m[1]
		}
	}
	return ""
}

// Sample reads the modem parameters. Fields that can not be read are left
// empty; only a failure to reach the modem is an error.
func (a *AT) Sample() (data.Modem, error) {
	var ret data.Modem

	st, err := a.Status()
	if err != nil {
		return ret, err
	}
	ret.Cell = st.Cell
	ret.Mode = st.Mode()

	resp, err := a.cmd("AT+CESQ")
	if err != nil {
		return ret, err
	}
	if ret.RSRP, err = parseCesq(resp); err != nil {
		a.log.Debugf("RSRP: %v", err)
	}

	read := func(cmd string, re *regexp.Regexp) string {
		resp, err := a.cmd(cmd)
		if err != nil {
			a.log.WithError(err).Warnf("Error reading %v", cmd)
			return ""
		}
		if re == nil {
			return strings.Join(resp, " ")
		}
		return firstMatch(re, resp)
	}

	ret.IP = read("AT+CGPADDR", reCgpaddr)
	ret.ICCID = read("AT+CCID", reCcid)
	ret.Firmware = read("AT+CGMR", nil)
	if band := read("AT%XCBAND", reBand); band != "" {
		ret.Band, _ = strconv.Atoi(band)
	}

	return ret, nil
}

// +CBC: <bcs>,<bcl>,<voltage>
var reCbc = regexp.MustCompile(`\+CBC:\s*\d+,\d+,(\d+)`)

// Battery reads the supply voltage in millivolts
func (a *AT) Battery() (data.Battery, error) {
	resp, err := a.cmd("AT+CBC")
	if err != nil {
		return data.Battery{}, err
	}

	v := firstMatch(reCbc, resp)
	if v == "" {
		return data.Battery{}, fmt.Errorf("error parsing CBC response: %q", resp)
	}

	mv, _ := strconv.Atoi(v)
	return data.Battery{Voltage: mv}, nil
}
