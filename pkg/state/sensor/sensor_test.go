package sensor

import (
	"testing"
	"time"

	"courier/pkg/timeutil"
)

type fakeProbe struct {
	disk float64
	mem  float64
}

func (f *fakeProbe) diskUsedPct(string) (float64, error) { return f.disk, nil }
func (f *fakeProbe) memUsedPct() float64                 { return f.mem }

func TestDiskPressureHysteresis(t *testing.T) {
	clock := timeutil.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	defer timeutil.SetClock(clock)()

	p := &fakeProbe{disk: 50, mem: 10}
	s := NewSensor(MonitorConfig{PollInterval: time.Second, DiskHighPct: 90, DiskLowPct: 80, MemHighPct: 95, RecoveryWindow: 10 * time.Second})
	s.probe = p

	s.check()
	if s.DiskPressure() {
		t.Fatalf("no pressure expected at 50%%")
	}

	p.disk = 95
	s.check()
	if !s.DiskPressure() {
		t.Fatalf("pressure expected at 95%%")
	}

	// between low and high marks the alert holds
	p.disk = 85
	clock.Advance(time.Minute)
	s.check()
	if !s.DiskPressure() {
		t.Fatalf("pressure should hold above the low mark")
	}

	// below low mark, but not yet for the full window
	p.disk = 70
	s.check()
	clock.Advance(5 * time.Second)
	s.check()
	if !s.DiskPressure() {
		t.Fatalf("pressure should hold during recovery window")
	}

	clock.Advance(6 * time.Second)
	s.check()
	if s.DiskPressure() {
		t.Fatalf("pressure should clear after recovery window")
	}
	if d, m := s.Usage(); d != 70 || m != 10 {
		t.Fatalf("usage = %v, %v", d, m)
	}
}

func TestStartStop(t *testing.T) {
	s := NewSensor(MonitorConfig{Path: t.TempDir(), PollInterval: 10 * time.Millisecond, DiskHighPct: 99, DiskLowPct: 98, MemHighPct: 101})
	s.Start()
	time.Sleep(30 * time.Millisecond)
	s.Stop()
	s.Stop()
}
