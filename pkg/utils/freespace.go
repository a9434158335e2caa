package utils

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
)

type FreeSpaceType int

const (
	AsPercent FreeSpaceType = iota
	AsBytes
)

// FreeSpace is a minimum-free-disk threshold, expressed either as a
// percentage ("5") or an absolute size ("10GB").
type FreeSpace struct {
	Type    FreeSpaceType
	Bytes   uint64
	Percent float32
	Raw     string
}

// IsLow reports whether the observed free space falls under the
// threshold, with a human-readable detail string for the health
// surface.
func (s FreeSpace) IsLow(freeBytes uint64, freePercent float32) (bool, string) {
	if s.Type == AsBytes {
		detail := fmt.Sprintf("%s free, threshold %s",
			humanize.Bytes(freeBytes), humanize.Bytes(s.Bytes))
		return freeBytes < s.Bytes, detail
	}
	detail := fmt.Sprintf("%.2f%% free, threshold %.2f%%", freePercent, s.Percent)
	return freePercent < s.Percent, detail
}

func (s FreeSpace) String() string {
	if s.Type == AsPercent {
		return fmt.Sprintf("%.2f%%", s.Percent)
	}
	return s.Raw
}

// ParseMinFreeSpace accepts a bare number as a percentage (0-100) or
// a humanized size as an absolute byte threshold. Byte values at or
// under 100 are rejected as almost certainly a mistyped percentage.
func ParseMinFreeSpace(s string) (*FreeSpace, error) {
	out := &FreeSpace{Raw: s}

	if percent, err := strconv.ParseFloat(s, 32); err == nil {
		if percent < 0 || percent > 100 {
			return nil, fmt.Errorf("percent out of range: %s", s)
		}
		out.Type = AsPercent
		out.Percent = float32(percent)
		return out, nil
	}

	bytes, err := humanize.ParseBytes(s)
	if err != nil {
		return nil, errors.New("invalid min free space format")
	}
	if bytes <= 100 {
		return nil, fmt.Errorf("byte threshold too small: %s", s)
	}
	out.Type = AsBytes
	out.Bytes = bytes
	return out, nil
}
