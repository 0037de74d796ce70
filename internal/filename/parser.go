// Package filename parses and sanitizes the sdrtrunk/rdio-scanner filename
// convention used by recorders that drop files directly onto disk instead of
// going through the HTTP upload endpoint.
//
// Convention: <YYYYMMDD>_<HHMMSS>_<system-token...>_TG<talkgroup>_FROM_<radio>.<ext>
package filename

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Parsed holds the fields recovered from a recorder-style filename. Fields
// that cannot be recovered degrade to their zero value rather than failing
// the whole parse — only a filename with fewer than 5 underscore-separated
// segments is rejected outright.
type Parsed struct {
	Talkgroup int64
	RadioID   int64
	Unixtime  int64
	System    string
}

// ErrInvalidFilename is returned when the stem has too few segments to be a
// recorder-style filename at all.
type ErrInvalidFilename struct {
	Filename string
}

func (e *ErrInvalidFilename) Error() string {
	return fmt.Sprintf("invalid filename: %q has too few segments", e.Filename)
}

// Parse extracts talkgroup, radio id, and call timestamp from a recorder
// filename. It requires at least 5 underscore-separated segments in the
// stem; beyond that, every field independently degrades to its sentinel
// zero value if it can't be recovered, matching the original's
// parse_sdrtrunk_filename permissiveness.
func Parse(name string) (Parsed, error) {
	stem := strings.TrimSuffix(name, filepathExt(name))
	parts := strings.Split(stem, "_")
	if len(parts) < 5 {
		return Parsed{}, &ErrInvalidFilename{Filename: name}
	}

	var p Parsed

	for _, part := range parts {
		if strings.HasPrefix(part, "TG") {
			if tg, err := strconv.ParseInt(part[2:], 10, 64); err == nil && tg >= 0 {
				p.Talkgroup = tg
			}
			break
		}
	}

	for i, part := range parts {
		if part == "FROM" && i+1 < len(parts) {
			if id, err := strconv.ParseInt(parts[i+1], 10, 64); err == nil && id >= 0 {
				p.RadioID = id
			}
			break
		}
	}

	if len(parts) >= 2 {
		if ts, err := time.ParseInLocation("20060102 150405", parts[0]+" "+parts[1], time.UTC); err == nil {
			p.Unixtime = ts.Unix()
		}
	}

	if len(parts) >= 3 {
		p.System = parts[2]
	}

	return p, nil
}

func filepathExt(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return ""
	}
	return name[i:]
}

// Sanitize replaces every character outside [A-Za-z0-9._-] with an
// underscore, then trims leading/trailing underscores. An input composed
// entirely of disallowed characters sanitizes to an empty string.
func Sanitize(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '_' || r == '-' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return strings.Trim(b.String(), "_")
}

// FormatFrequency renders a frequency in Hz using the narrowest unit that
// keeps three decimal places of precision: Hz below 1 kHz, then kHz/MHz/GHz.
func FormatFrequency(hz int64) string {
	switch {
	case hz < 1_000:
		return fmt.Sprintf("%d Hz", hz)
	case hz < 1_000_000:
		return fmt.Sprintf("%.3f kHz", float64(hz)/1_000)
	case hz < 1_000_000_000:
		return fmt.Sprintf("%.3f MHz", float64(hz)/1_000_000)
	default:
		return fmt.Sprintf("%.3f GHz", float64(hz)/1_000_000_000)
	}
}
