package cmd

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/xtmatch/xtmatch/internal/rule"
)

// source yields packets starting at the network header. Next returns
// ctx.Err() once ctx is done, even while waiting for input.
type source interface {
	Next(ctx context.Context) ([]byte, error)
	Close() error
}

func openSource(pcapFile string, hexPackets []string, stdin io.Reader) (source, error) {
	switch {
	case pcapFile != "":
		return openPcap(pcapFile)
	case len(hexPackets) > 0:
		return &hexSource{lines: hexPackets}, nil
	default:
		return newLineSource(stdin), nil
	}
}

type pcapSource struct {
	f        *os.File
	r        *pcapgo.Reader
	linkType layers.LinkType
}

func openPcap(path string) (*pcapSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("os.Open: %w", err)
	}
	r, err := pcapgo.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("pcapgo.NewReader: %w", err)
	}
	slog.Info("Reading pcap", slog.String("file", path), slog.String("link type", r.LinkType().String()))
	return &pcapSource{f: f, r: r, linkType: r.LinkType()}, nil
}

func (s *pcapSource) Next(ctx context.Context) ([]byte, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, _, err := s.r.ReadPacketData()
		if err != nil {
			return nil, err
		}
		if ip := networkLayer(s.linkType, data); ip != nil {
			return ip, nil
		}
		slog.Debug("Skipping non-IP frame", slog.Int("len", len(data)))
	}
}

func (s *pcapSource) Close() error {
	return s.f.Close()
}

// networkLayer strips the link header from a captured frame, or returns
// nil when the frame carries no IP packet.
func networkLayer(linkType layers.LinkType, data []byte) []byte {
	switch linkType {
	case layers.LinkTypeRaw, layers.LinkTypeIPv4, layers.LinkTypeIPv6:
		return data
	}

	p := gopacket.NewPacket(data, linkType, gopacket.NoCopy)
	if p.NetworkLayer() == nil {
		return nil
	}
	offset := 0
	for _, l := range p.Layers() {
		if l.LayerType() == p.NetworkLayer().LayerType() {
			break
		}
		offset += len(l.LayerContents())
	}
	if offset >= len(data) {
		return nil
	}
	return data[offset:]
}

type line struct {
	text string
	err  error
}

// hexSource reads one hex encoded packet per argument or input line.
// Blank lines and lines starting with # are skipped.
type hexSource struct {
	lines []string

	// set when reading a stream
	in   <-chan line
	done chan struct{}
	once sync.Once
}

// newLineSource scans r in its own goroutine so that a blocked read does
// not hold up cancellation.
func newLineSource(r io.Reader) *hexSource {
	in := make(chan line)
	s := &hexSource{in: in, done: make(chan struct{})}
	go func() {
		defer close(in)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case in <- line{text: scanner.Text()}:
			case <-s.done:
				return
			}
		}
		err := scanner.Err()
		if err == nil {
			err = io.EOF
		}
		select {
		case in <- line{err: err}:
		case <-s.done:
		}
	}()
	return s
}

func (s *hexSource) nextLine(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.in == nil {
		if len(s.lines) == 0 {
			return "", io.EOF
		}
		l := s.lines[0]
		s.lines = s.lines[1:]
		return l, nil
	}
	select {
	case l, ok := <-s.in:
		if !ok {
			return "", io.EOF
		}
		return l.text, l.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *hexSource) Next(ctx context.Context) ([]byte, error) {
	for {
		text, err := s.nextLine(ctx)
		if err != nil {
			return nil, err
		}
		text = strings.TrimSpace(text)
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		text = strings.TrimPrefix(strings.TrimPrefix(text, "0x"), "0X")
		data, err := hex.DecodeString(strings.ReplaceAll(text, " ", ""))
		if err != nil {
			return nil, fmt.Errorf("hex.DecodeString: %w", err)
		}
		return data, nil
	}
}

// Close stops the reader goroutine once its pending read returns.
func (s *hexSource) Close() error {
	if s.done != nil {
		s.once.Do(func() { close(s.done) })
	}
	return nil
}

// evaluate prints "index verdict rule" for every packet of src.
func evaluate(ctx context.Context, engine *rule.Engine, src source, w io.Writer) error {
	for index := 0; ; index++ {
		data, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		verdict := engine.EvaluateBytes(index, data)
		if _, err := fmt.Fprintf(w, "%d %s %s\n", index, verdict.Action, verdict.RuleName()); err != nil {
			return err
		}
	}
}
