// Package proc reads process and socket information from /proc.
package proc

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// clockTicks is USER_HZ, 100 on every mainstream linux build.
const clockTicks = 100.0

type Stats struct {
	PID        int     `json:"pid"`
	State      string  `json:"state"`
	Threads    int     `json:"threads"`
	MemoryMB   int64   `json:"memory_mb"`
	CPUPercent float64 `json:"cpu_percent"`
}

type sample struct {
	ticks uint64
	at    time.Time
}

// CPUTracker turns consecutive tick counters into a CPU percentage.
type CPUTracker struct {
	mu      sync.Mutex
	samples map[int]sample
}

func NewCPUTracker() *CPUTracker {
	return &CPUTracker{samples: map[int]sample{}}
}

func (t *CPUTracker) observe(pid int, ticks uint64, now time.Time) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev, ok := t.samples[pid]
	t.samples[pid] = sample{ticks: ticks, at: now}
	if !ok || ticks < prev.ticks {
		return 0
	}
	elapsed := now.Sub(prev.at).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(ticks-prev.ticks) / clockTicks / elapsed * 100
}

// Forget drops samples for pids not in keep.
func (t *CPUTracker) Forget(keep []int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	live := make(map[int]struct{}, len(keep))
	for _, pid := range keep {
		live[pid] = struct{}{}
	}
	for pid := range t.samples {
		if _, ok := live[pid]; !ok {
			delete(t.samples, pid)
		}
	}
}

// ReadStats samples /proc/<pid>/stat. tracker may be nil, in which case CPU stays 0.
func ReadStats(pid int, tracker *CPUTracker) (*Stats, error) {
	if pid <= 0 {
		return nil, errors.New("invalid pid")
	}
	b, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat"))
	if err != nil {
		return nil, errors.Wrap(err, "read stat")
	}

	// comm may contain spaces, fields restart after the last ')'.
	s := string(b)
	i := strings.LastIndexByte(s, ')')
	if i < 0 {
		return nil, errors.New("malformed stat")
	}
	f := strings.Fields(s[i+1:])
	if len(f) < 22 {
		return nil, errors.Errorf("malformed stat: %d fields", len(f))
	}

	utime, err := strconv.ParseUint(f[11], 10, 64)
	if err != nil {
		return nil, errors.Wrap(err, "parse utime")
	}
	stime, err := strconv.ParseUint(f[12], 10, 64)
	if err != nil {
		return nil, errors.Wrap(err, "parse stime")
	}
	threads, err := strconv.Atoi(f[17])
	if err != nil {
		return nil, errors.Wrap(err, "parse threads")
	}
	rssPages, err := strconv.ParseInt(f[21], 10, 64)
	if err != nil {
		return nil, errors.Wrap(err, "parse rss")
	}

	st := &Stats{
		PID:      pid,
		State:    f[0],
		Threads:  threads,
		MemoryMB: rssPages * int64(os.Getpagesize()) / (1 << 20),
	}
	if tracker != nil {
		st.CPUPercent = tracker.observe(pid, utime+stime, time.Now())
	}
	return st, nil
}

// ReadAllStats skips pids that vanished between listing and reading.
func ReadAllStats(pids []int, tracker *CPUTracker) map[int]*Stats {
	out := make(map[int]*Stats, len(pids))
	for _, pid := range pids {
		if st, err := ReadStats(pid, tracker); err == nil {
			out[pid] = st
		}
	}
	return out
}
