package seriesio

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Format is a file encoding.
type Format uint8

const (
	FormatJSON Format = iota
	FormatMsgPack
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatMsgPack:
		return "msgpack"
	default:
		return fmt.Sprintf("format(%d)", uint8(f))
	}
}

// ParseFormat accepts json, msgpack and mpk.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")) {
	case "json":
		return FormatJSON, nil
	case "msgpack", "mpk":
		return FormatMsgPack, nil
	}
	return 0, fmt.Errorf("unknown format %q (want json or msgpack)", s)
}

// FormatForPath picks the format from a file extension.
func FormatForPath(path string) (Format, error) {
	ext := filepath.Ext(path)
	if ext == "" {
		return 0, fmt.Errorf("%s: no file extension to pick a format from", path)
	}
	return ParseFormat(ext)
}
