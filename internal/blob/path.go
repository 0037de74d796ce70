package blob

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// StampedKey builds the ingest storage key for an uploaded file: base
// path segments by system id and UTC calendar date, then a microsecond
// timestamp stamp prefix ahead of the (sanitized) original filename, per
// §4.2/§6.2:
//
//	<systemID>/<YYYY>/<MM>/<DD>/<stamp>_<originalFilename>
//
// The microsecond-resolution stamp keeps concurrent ingests of
// identically-named files from colliding (P4).
func StampedKey(systemID string, at time.Time, originalFilename string) string {
	at = at.UTC()
	stamp := at.Format("20060102_150405") + fmt.Sprintf("_%06d", at.Nanosecond()/1000)
	return path.Join(
		systemID,
		fmt.Sprintf("%04d", at.Year()),
		fmt.Sprintf("%02d", at.Month()),
		fmt.Sprintf("%02d", at.Day()),
		stamp+"_"+originalFilename,
	)
}

// ArchiveKey builds the Monitor Service's archive path for a processed file
// (§6.2): `<archiveRoot>/<YYYY>/<MM>/<DD>/<original>` when date
// organization is enabled, else `<archiveRoot>/<original>`. exists is
// consulted to pick a `_<N>` collision suffix, mirroring the ingest path's
// microsecond-stamp collision avoidance for a destination that has none.
func ArchiveKey(archiveRoot string, at time.Time, originalFilename string, organizeByDate bool, exists func(key string) bool) string {
	var dir string
	if organizeByDate {
		at = at.UTC()
		dir = path.Join(archiveRoot,
			fmt.Sprintf("%04d", at.Year()),
			fmt.Sprintf("%02d", at.Month()),
			fmt.Sprintf("%02d", at.Day()),
		)
	} else {
		dir = archiveRoot
	}

	candidate := path.Join(dir, originalFilename)
	if exists == nil || !exists(candidate) {
		return candidate
	}

	ext := filepath.Ext(originalFilename)
	stem := strings.TrimSuffix(originalFilename, ext)
	for n := 1; ; n++ {
		candidate = path.Join(dir, fmt.Sprintf("%s_%d%s", stem, n, ext))
		if !exists(candidate) {
			return candidate
		}
	}
}
