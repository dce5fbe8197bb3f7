// Package portrange matches transport source and destination ports against
// inclusive ranges, each independently invertible.
package portrange

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/xtmatch/xtmatch/internal/packet"
	"github.com/xtmatch/xtmatch/internal/valuerange"
)

// ErrProtocolMismatch is returned when the packet carries no transport
// ports. It points at a caller that skipped protocol filtering.
var ErrProtocolMismatch = errors.New("packet has no transport ports")

// Range is an inclusive port interval.
type Range struct {
	Min uint16
	Max uint16
}

// Any is the full port range.
var Any = Range{Min: 0, Max: math.MaxUint16}

func (r Range) Contains(port uint16) bool {
	return valuerange.Range{Min: uint32(r.Min), Max: uint32(r.Max)}.Contains(uint32(port))
}

func (r Range) String() string {
	if r.Min == r.Max {
		return fmt.Sprintf("%d", r.Min)
	}
	return fmt.Sprintf("%d:%d", r.Min, r.Max)
}

// Record constrains both ports of a packet. The zero value only accepts
// port 0 in both directions; use Unconstrained for a record that accepts
// everything.
type Record struct {
	Src       Range
	Dst       Range
	InvertSrc bool
	InvertDst bool
}

func Unconstrained() Record {
	return Record{Src: Any, Dst: Any}
}

// IsUnconstrained reports whether r is the canonical accept-all encoding.
func (r *Record) IsUnconstrained() bool {
	return r.Src == Any && r.Dst == Any && !r.InvertSrc && !r.InvertDst
}

// Matches requires both the source and the destination clause to hold.
func (r *Record) Matches(p packet.View) (bool, error) {
	sport, ok := p.SourcePort()
	if !ok {
		return false, ErrProtocolMismatch
	}
	dport, ok := p.DestPort()
	if !ok {
		return false, ErrProtocolMismatch
	}
	return r.Src.Contains(sport) != r.InvertSrc &&
		r.Dst.Contains(dport) != r.InvertDst, nil
}

func (r *Record) LogValue() slog.Value {
	src, dst := r.Src.String(), r.Dst.String()
	if r.InvertSrc {
		src = "!" + src
	}
	if r.InvertDst {
		dst = "!" + dst
	}
	return slog.GroupValue(
		slog.String("sport", src),
		slog.String("dport", dst),
	)
}
