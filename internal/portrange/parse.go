package portrange

import (
	"errors"
	"fmt"
	"math"
	"net"
	"strconv"
	"strings"
)

var ErrInvalidRange = errors.New("invalid port range")

// ParseSpec reads "[!] port[:port]" for proto ("udp" or "tcp"). Either
// bound may be omitted: ":1023" is 0:1023 and "1024:" is 1024:65535. Ports
// may be service names. An empty spec is the full range.
func ParseSpec(proto, spec string) (Range, bool, error) {
	s := strings.TrimSpace(spec)
	invert := false
	if strings.HasPrefix(s, "!") {
		invert = true
		s = strings.TrimSpace(s[1:])
	}
	if s == "" {
		if invert {
			return Range{}, false, fmt.Errorf("%w: %q", ErrInvalidRange, spec)
		}
		return Any, false, nil
	}

	lo, hi, isRange := strings.Cut(s, ":")
	if !isRange {
		port, err := parsePort(proto, lo, 0)
		if err != nil {
			return Range{}, false, err
		}
		return Range{Min: port, Max: port}, invert, nil
	}

	first, err := parsePort(proto, lo, 0)
	if err != nil {
		return Range{}, false, err
	}
	last, err := parsePort(proto, hi, math.MaxUint16)
	if err != nil {
		return Range{}, false, err
	}
	if first > last {
		return Range{}, false, fmt.Errorf("%w: %d > %d", ErrInvalidRange, first, last)
	}
	return Range{Min: first, Max: last}, invert, nil
}

func parsePort(proto, s string, empty uint16) (uint16, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return empty, nil
	}
	if n, err := strconv.ParseUint(s, 10, 16); err == nil {
		return uint16(n), nil
	}
	port, err := net.LookupPort(proto, s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrInvalidRange, s, err)
	}
	return uint16(port), nil
}

// Parse builds a record from source and destination specs; an empty spec
// leaves that direction unconstrained.
func Parse(proto, src, dst string) (*Record, error) {
	r := Unconstrained()
	var err error
	if r.Src, r.InvertSrc, err = ParseSpec(proto, src); err != nil {
		return nil, fmt.Errorf("source port: %w", err)
	}
	if r.Dst, r.InvertDst, err = ParseSpec(proto, dst); err != nil {
		return nil, fmt.Errorf("destination port: %w", err)
	}
	return &r, nil
}
