package snapper

import (
	"strings"
	"time"
)

// DefaultPrefix names snapshots when no prefix is configured.
const DefaultPrefix = "aptsnap"

// timestampFormat is the second-resolution stamp embedded in snapshot
// names. Two runs in the same second would pick the same name, but a name
// collision counts as the snapshot already existing, so back-to-back runs
// stay safe.
const timestampFormat = "2006-01-02-150405"

// NameForTime returns the snapshot name for a run at t: <prefix>-<stamp>,
// with the stamp in UTC.
func NameForTime(prefix string, t time.Time) string {
	return prefix + "-" + t.UTC().Format(timestampFormat)
}

// TimeFromName recovers the run time from a snapshot name. It reports
// false for names not created under the given prefix, which is how
// retention keeps its hands off foreign snapshots.
func TimeFromName(prefix, name string) (time.Time, bool) {
	stamp, ok := strings.CutPrefix(name, prefix+"-")
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(timestampFormat, stamp)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
