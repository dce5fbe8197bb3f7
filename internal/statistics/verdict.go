package statistics

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"sync"
)

// VerdictRecordList counts final verdicts, including the default action.
type VerdictRecordList struct {
	counts map[string]uint64
	mu     sync.RWMutex
}

func NewVerdictRecordList() *VerdictRecordList {
	return &VerdictRecordList{
		counts: make(map[string]uint64, 2),
	}
}

func (l *VerdictRecordList) Add(verdict string) {
	l.mu.Lock()
	l.counts[verdict]++
	l.mu.Unlock()
}

func (l *VerdictRecordList) Count(verdict string) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.counts[verdict]
}

func (l *VerdictRecordList) WriteTo(w io.Writer) (int64, error) {
	l.mu.RLock()
	verdicts := make([]string, 0, len(l.counts))
	for v := range l.counts {
		verdicts = append(verdicts, v)
	}
	sort.Strings(verdicts)
	counts := make([]uint64, len(verdicts))
	for i, v := range verdicts {
		counts[i] = l.counts[v]
	}
	l.mu.RUnlock()

	bw := bufio.NewWriter(w)
	var total int64
	for i, v := range verdicts {
		n, err := fmt.Fprintf(bw, "%s %d\n", v, counts[i])
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, bw.Flush()
}
