package statistics

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

type event struct {
	hit     *HitRecord
	verdict string
}

// Recorder collects rule hits off the matching path. Adds never block:
// events arriving while the queue is full are counted as dropped. A nil
// *Recorder ignores every call.
type Recorder struct {
	HitRecordList     *HitRecordList
	VerdictRecordList *VerdictRecordList

	events   chan event
	packets  atomic.Uint64
	dropped  atomic.Uint64
	dumpFile string
	interval time.Duration

	startOnce sync.Once
	closeOnce sync.Once
	started   atomic.Bool
	quit      chan struct{}
	stopped   chan struct{}
}

// NewRecorder dumps to dumpFile every interval once Run is called. An empty
// dumpFile disables the file; a zero interval only dumps on Close.
func NewRecorder(dumpFile string, interval time.Duration) *Recorder {
	return &Recorder{
		HitRecordList:     NewHitRecordList(),
		VerdictRecordList: NewVerdictRecordList(),
		events:            make(chan event, 3000),
		dumpFile:          dumpFile,
		interval:          interval,
		quit:              make(chan struct{}),
		stopped:           make(chan struct{}),
	}
}

func (r *Recorder) Run() {
	if r == nil {
		return
	}
	r.startOnce.Do(func() {
		r.started.Store(true)
		go r.loop()
	})
}

func (r *Recorder) loop() {
	defer close(r.stopped)

	var tick <-chan time.Time
	if r.interval > 0 && r.dumpFile != "" {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case ev := <-r.events:
			r.apply(ev)
		case <-tick:
			if err := r.Dump(); err != nil {
				slog.Error("r.Dump", slog.Any("error", err))
			}
		case <-r.quit:
			r.drain()
			return
		}
	}
}

func (r *Recorder) drain() {
	for {
		select {
		case ev := <-r.events:
			r.apply(ev)
		default:
			return
		}
	}
}

func (r *Recorder) apply(ev event) {
	if ev.hit != nil {
		r.HitRecordList.Add(ev.hit)
	}
	if ev.verdict != "" {
		r.VerdictRecordList.Add(ev.verdict)
	}
}

func (r *Recorder) send(ev event) {
	select {
	case r.events <- ev:
	default:
		r.dropped.Add(1)
	}
}

// AddHit records that rule index decided or logged a packet.
func (r *Recorder) AddHit(index int, name, action string) {
	if r == nil {
		return
	}
	r.send(event{hit: &HitRecord{Index: index, Name: name, Action: action}})
}

// AddVerdict records one evaluated packet and its final verdict.
func (r *Recorder) AddVerdict(verdict string) {
	if r == nil {
		return
	}
	r.packets.Add(1)
	r.send(event{verdict: verdict})
}

func (r *Recorder) Packets() uint64 {
	if r == nil {
		return 0
	}
	return r.packets.Load()
}

func (r *Recorder) Dropped() uint64 {
	if r == nil {
		return 0
	}
	return r.dropped.Load()
}

// Dump rewrites the stats file with the verdict totals followed by the
// rule table.
func (r *Recorder) Dump() error {
	if r == nil || r.dumpFile == "" {
		return nil
	}

	f, err := os.Create(r.dumpFile)
	if err != nil {
		return fmt.Errorf("os.Create: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			slog.Error("os.File.Close", slog.Any("error", err))
		}
	}()

	if _, err := fmt.Fprintf(f, "packets %d dropped %d\n", r.Packets(), r.Dropped()); err != nil {
		return err
	}
	if _, err := r.VerdictRecordList.WriteTo(f); err != nil {
		return err
	}
	_, err = r.HitRecordList.WriteTo(f)
	return err
}

// Close stops the worker, applies queued events and writes a final dump.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	r.closeOnce.Do(func() {
		close(r.quit)
		if r.started.Load() {
			<-r.stopped
		} else {
			r.drain()
		}
	})
	return r.Dump()
}
