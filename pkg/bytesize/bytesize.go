// Package bytesize parses and formats human-readable byte sizes using
// binary (1024) units. "1GB", "1GiB" and "1073741824" all mean the same
// thing; a bare number is a byte count.
package bytesize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Size is a byte count.
type Size int64

const (
	B  Size = 1
	KB Size = 1024
	MB Size = 1024 * KB
	GB Size = 1024 * MB
	TB Size = 1024 * GB
)

var units = map[string]Size{
	"":    B,
	"b":   B,
	"k":   KB,
	"kb":  KB,
	"kib": KB,
	"m":   MB,
	"mb":  MB,
	"mib": MB,
	"g":   GB,
	"gb":  GB,
	"gib": GB,
	"t":   TB,
	"tb":  TB,
	"tib": TB,
}

var sizeRE = regexp.MustCompile(`(?i)^\s*([0-9]+(?:\.[0-9]+)?)\s*([a-z]*)\s*$`)

// Parse converts a string like "1.5GB", "500 KiB" or "4096" into a Size.
func Parse(s string) (Size, error) {
	m := sizeRE.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("bytesize: invalid size %q", s)
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("bytesize: invalid number %q: %w", m[1], err)
	}
	mult, ok := units[strings.ToLower(m[2])]
	if !ok {
		return 0, fmt.Errorf("bytesize: unknown unit %q", m[2])
	}
	return Size(value * float64(mult)), nil
}

// MustParse panics when s cannot be parsed. For package-level constants.
func MustParse(s string) Size {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Bytes returns the size as an int64 byte count.
func (s Size) Bytes() int64 { return int64(s) }

// String formats the size with the largest unit that keeps the value >= 1.
func (s Size) String() string {
	neg := ""
	if s < 0 {
		neg, s = "-", -s
	}
	switch {
	case s >= TB:
		return neg + trim(float64(s)/float64(TB)) + "TB"
	case s >= GB:
		return neg + trim(float64(s)/float64(GB)) + "GB"
	case s >= MB:
		return neg + trim(float64(s)/float64(MB)) + "MB"
	case s >= KB:
		return neg + trim(float64(s)/float64(KB)) + "KB"
	}
	return fmt.Sprintf("%s%dB", neg, s)
}

// MarshalText implements encoding.TextMarshaler.
func (s Size) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler so Size works as a
// Viper/YAML config value.
func (s *Size) UnmarshalText(text []byte) error {
	v, err := Parse(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func trim(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	out := strconv.FormatFloat(v, 'f', 2, 64)
	out = strings.TrimRight(out, "0")
	return strings.TrimRight(out, ".")
}
