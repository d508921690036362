package archive

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/juju/errors"
)

const (
	namePrefix      = "ha_backup_"
	nameExt         = ".zip"
	timestampLayout = "20060102_150405"
)

var namePattern = regexp.MustCompile(`^ha_backup_(\d{8}_\d{6})(?:_(\d+))?\.zip$`)

// Name returns the archive file name for t. A positive seq adds the
// suffix used when an archive for the same second already exists.
func Name(t time.Time, seq int) string {
	name := namePrefix + t.Format(timestampLayout)
	if seq > 0 {
		name += "_" + strconv.Itoa(seq)
	}
	return name + nameExt
}

// NormalizeName appends the .zip extension when missing and rejects
// anything that is not a plain file name.
func NormalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.NotValidf("empty archive name")
	}
	if strings.ContainsAny(name, `/\`) || name != filepath.Base(name) || name == "." || name == ".." {
		return "", errors.NotValidf("archive name %q", name)
	}
	if !strings.HasSuffix(name, nameExt) {
		name += nameExt
	}
	return name, nil
}

// parseName extracts the creation time and collision suffix from a
// managed archive name.
func parseName(name string) (time.Time, int, bool) {
	m := namePattern.FindStringSubmatch(name)
	if m == nil {
		return time.Time{}, 0, false
	}
	t, err := time.ParseInLocation(timestampLayout, m[1], time.Local)
	if err != nil {
		return time.Time{}, 0, false
	}
	seq := 0
	if m[2] != "" {
		seq, err = strconv.Atoi(m[2])
		if err != nil {
			return time.Time{}, 0, false
		}
	}
	return t, seq, true
}
