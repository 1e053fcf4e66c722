package system

import (
	"errors"
	"os"
	"regexp"

	"github.com/blang/semver/v4"
)

// ReleaseFile is the default os-release location
const ReleaseFile = "/etc/os-release"

// matches VERSION_ID=1.2, VERSION_ID="1.2.3" and VERSION_ID='1.2'
var reVersionID = regexp.MustCompile(`(?m)^VERSION_ID=['"]?([^'"\s]*)`)

// ReadOSVersion reads an os-release file and parses VERSION_ID
func ReadOSVersion(path string) (semver.Version, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return semver.Version{}, err
	}

	return parseVersion(buf)
}

func parseVersion(release []byte) (semver.Version, error) {
	m := reVersionID.FindSubmatch(release)
	if m == nil {
		return semver.Version{}, errors.New("no VERSION_ID in os-release")
	}
	return semver.ParseTolerant(string(m[1]))
}
