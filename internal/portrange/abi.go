package portrange

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	ErrShortBuffer = errors.New("buffer too short for port record")
	ErrBadFlags    = errors.New("unknown invert flags")
)

const (
	InvertSourceFlag uint8 = 0x01
	InvertDestFlag   uint8 = 0x02

	invertMask = InvertSourceFlag | InvertDestFlag
)

// Info is struct xt_udp in host byte order.
type Info struct {
	Spts     [2]uint16
	Dpts     [2]uint16
	InvFlags uint8
	_        uint8
}

// SizeOfInfo is sizeof(struct xt_udp).
const SizeOfInfo = 10

func (info *Info) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(SizeOfInfo)
	if err := binary.Write(&buf, binary.NativeEndian, info); err != nil {
		return nil, fmt.Errorf("binary.Write: %w", err)
	}
	return buf.Bytes(), nil
}

func (info *Info) UnmarshalBinary(data []byte) error {
	if len(data) < SizeOfInfo {
		return fmt.Errorf("%w: got %d, want >= %d", ErrShortBuffer, len(data), SizeOfInfo)
	}
	if err := binary.Read(bytes.NewReader(data[:SizeOfInfo]), binary.NativeEndian, info); err != nil {
		return fmt.Errorf("binary.Read: %w", err)
	}
	return nil
}

// Compile validates a loader record. Reversed ranges are accepted and match
// nothing, as in the kernel.
func Compile(info *Info) (*Record, error) {
	if info.InvFlags&^invertMask != 0 {
		return nil, fmt.Errorf("%w: 0x%x", ErrBadFlags, info.InvFlags&^invertMask)
	}
	return &Record{
		Src:       Range{Min: info.Spts[0], Max: info.Spts[1]},
		Dst:       Range{Min: info.Dpts[0], Max: info.Dpts[1]},
		InvertSrc: info.InvFlags&InvertSourceFlag != 0,
		InvertDst: info.InvFlags&InvertDestFlag != 0,
	}, nil
}

// Info converts r back to the loader record.
func (r *Record) Info() *Info {
	info := &Info{
		Spts: [2]uint16{r.Src.Min, r.Src.Max},
		Dpts: [2]uint16{r.Dst.Min, r.Dst.Max},
	}
	if r.InvertSrc {
		info.InvFlags |= InvertSourceFlag
	}
	if r.InvertDst {
		info.InvFlags |= InvertDestFlag
	}
	return info
}
