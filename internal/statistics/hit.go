package statistics

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"sync"
)

// HitRecord counts how often one rule decided a packet.
type HitRecord struct {
	Index  int
	Name   string
	Action string
	Count  uint64
}

type HitRecordList struct {
	records map[int]*HitRecord
	mu      sync.RWMutex
}

func NewHitRecordList() *HitRecordList {
	return &HitRecordList{
		records: make(map[int]*HitRecord, 32),
	}
}

func (l *HitRecordList) Add(record *HitRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if r, exists := l.records[record.Index]; exists {
		r.Count++
		return
	}
	l.records[record.Index] = &HitRecord{
		Index:  record.Index,
		Name:   record.Name,
		Action: record.Action,
		Count:  1,
	}
}

// Snapshot returns copies ordered by descending count, then rule index.
func (l *HitRecordList) Snapshot() []HitRecord {
	l.mu.RLock()
	records := make([]HitRecord, 0, len(l.records))
	for _, r := range l.records {
		records = append(records, *r)
	}
	l.mu.RUnlock()

	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Count != records[j].Count {
			return records[i].Count > records[j].Count
		}
		return records[i].Index < records[j].Index
	})
	return records
}

func (l *HitRecordList) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var total int64
	for _, record := range l.Snapshot() {
		n, err := fmt.Fprintf(bw, "%d %d %s %s\n", record.Index, record.Count, record.Action, record.Name)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, bw.Flush()
}
