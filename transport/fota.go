package transport

import (
	"encoding/json"
	"fmt"

	"github.com/blang/semver/v4"
	"github.com/pkg/errors"
)

// FotaMsg is published by the cloud on the fota topic to report firmware
// update progress.
type FotaMsg struct {
	Version string `json:"version"`
	Stage   string `json:"stage"`
}

// Fota validates firmware update notifications against the running version
type Fota struct {
	current semver.Version
}

// NewFota creates a validator for the running application version
func NewFota(current string) (*Fota, error) {
	v, err := semver.ParseTolerant(current)
	if err != nil {
		return nil, errors.Wrap(err, "parsing application version")
	}
	return &Fota{current: v}, nil
}

// Parse turns a fota message into a transport event. Malformed messages
// and images that are not newer than the running version are rejected.
func (f *Fota) Parse(payload []byte) (Event, error) {
	var msg FotaMsg
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Event{}, errors.Wrap(err, "decoding fota msg")
	}

	v, err := semver.ParseTolerant(msg.Version)
	if err != nil {
		return Event{}, errors.Wrap(err, "fota version")
	}

	if !v.GT(f.current) {
		return Event{}, fmt.Errorf("fota image %v is not newer than %v", v, f.current)
	}

	ev := Event{Version: v.String()}
	switch msg.Stage {
	case "start":
		ev.Type = EventFotaStart
	case "erase_pending":
		ev.Type = EventFotaErasePending
	case "erase_done":
		ev.Type = EventFotaEraseDone
	case "done":
		ev.Type = EventFotaDone
	default:
		return Event{}, fmt.Errorf("unknown fota stage: %q", msg.Stage)
	}

	return ev, nil
}
