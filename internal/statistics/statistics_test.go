package statistics

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHitRecordList(t *testing.T) {
	l := NewHitRecordList()
	l.Add(&HitRecord{Index: 2, Name: "b", Action: "DROP"})
	l.Add(&HitRecord{Index: 0, Name: "a", Action: "ACCEPT"})
	l.Add(&HitRecord{Index: 2, Name: "b", Action: "DROP"})
	l.Add(&HitRecord{Index: 1, Name: "c", Action: "LOG"})

	got := l.Snapshot()
	require.Len(t, got, 3)
	assert.Equal(t, HitRecord{Index: 2, Name: "b", Action: "DROP", Count: 2}, got[0])
	// ties sort by rule index
	assert.Equal(t, 0, got[1].Index)
	assert.Equal(t, 1, got[2].Index)

	var buf bytes.Buffer
	_, err := l.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, "2 2 DROP b\n0 1 ACCEPT a\n1 1 LOG c\n", buf.String())
}

func TestVerdictRecordList(t *testing.T) {
	l := NewVerdictRecordList()
	l.Add("DROP")
	l.Add("ACCEPT")
	l.Add("DROP")

	assert.Equal(t, uint64(2), l.Count("DROP"))
	assert.Equal(t, uint64(0), l.Count("LOG"))

	var buf bytes.Buffer
	_, err := l.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, "ACCEPT 1\nDROP 2\n", buf.String())
}

func TestRecorderCloseFlushes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats")
	r := NewRecorder(path, time.Hour)
	r.Run()

	r.AddHit(0, "dns", "ACCEPT")
	r.AddVerdict("ACCEPT")
	r.AddHit(0, "dns", "ACCEPT")
	r.AddVerdict("ACCEPT")
	r.AddVerdict("DROP")

	require.NoError(t, r.Close())
	assert.Equal(t, uint64(3), r.Packets())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Equal(t, []string{
		"packets 3 dropped 0",
		"ACCEPT 2",
		"DROP 1",
		"0 2 ACCEPT dns",
	}, lines)

	// closing twice only rewrites the file
	assert.NoError(t, r.Close())
}

func TestRecorderWithoutRun(t *testing.T) {
	r := NewRecorder("", 0)
	r.AddHit(3, "", "DROP")
	r.AddVerdict("DROP")
	require.NoError(t, r.Close())

	assert.Equal(t, uint64(1), r.VerdictRecordList.Count("DROP"))
	assert.Len(t, r.HitRecordList.Snapshot(), 1)
}

func TestRecorderPeriodicDump(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats")
	r := NewRecorder(path, 10*time.Millisecond)
	r.Run()
	defer r.Close()

	r.AddVerdict("ACCEPT")

	assert.Eventually(t, func() bool {
		data, err := os.ReadFile(path)
		return err == nil && strings.Contains(string(data), "ACCEPT 1")
	}, 2*time.Second, 10*time.Millisecond)
}

func TestNilRecorder(t *testing.T) {
	var r *Recorder
	r.Run()
	r.AddHit(0, "", "")
	r.AddVerdict("ACCEPT")
	assert.Zero(t, r.Packets())
	assert.NoError(t, r.Dump())
	assert.NoError(t, r.Close())
}
