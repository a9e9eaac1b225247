package flow

import (
	"testing"
	"time"
)

func TestSpawn_RespectsIntervalAndStorage(t *testing.T) {
	g := newTestGrid(t, 0)
	s := &Spawner{Progress: ProgressCenter, IDs: &IDSeq{}}
	start := time.Unix(0, 0)
	interval := 5 * time.Second

	ds, last, delta := s.Spawn(g, nil, start, start.Add(interval), interval, 10)
	if len(ds) != 0 || last != start || delta != 0 {
		t.Fatalf("spawned at exactly one interval: %d droplets", len(ds))
	}

	now := start.Add(interval + time.Millisecond)
	ds, last, delta = s.Spawn(g, nil, start, now, interval, 10)
	if len(ds) != 1 || !last.Equal(now) || delta != -1 {
		t.Fatalf("spawn = %d droplets, last=%v delta=%v", len(ds), last, delta)
	}
	d := ds[0]
	if d.Pos != testSource || d.Progress != ProgressCenter || d.To != South || d.From != North || d.HasPaid {
		t.Fatalf("droplet = %+v", d)
	}
	if d.ID != 1 {
		t.Fatalf("id = %d", d.ID)
	}
}

func TestSpawn_SkipsWhenTankEmpty(t *testing.T) {
	g := newTestGrid(t, 0)
	s := &Spawner{Progress: ProgressCenter, IDs: &IDSeq{}}
	start := time.Unix(0, 0)

	ds, last, delta := s.Spawn(g, nil, start, start.Add(time.Minute), time.Second, 0.5)
	if len(ds) != 0 || last != start || delta != 0 {
		t.Fatalf("spawned without water")
	}
}

func TestSpawn_NoSource(t *testing.T) {
	g, err := NewGrid(GridConfig{Size: 5, LockedFromRow: 2})
	if err != nil {
		t.Fatalf("NewGrid: %v", err)
	}
	s := &Spawner{IDs: &IDSeq{}}
	start := time.Unix(0, 0)
	if ds, _, _ := s.Spawn(g, nil, start, start.Add(time.Hour), time.Second, 100); len(ds) != 0 {
		t.Fatalf("depot spawned %d droplets", len(ds))
	}
}

func TestSpawn_LeavesInputAlone(t *testing.T) {
	g := newTestGrid(t, 0)
	s := &Spawner{Progress: ProgressCenter, IDs: &IDSeq{}}
	in := make([]Droplet, 1, 4)
	in[0] = Droplet{ID: 99}
	start := time.Unix(0, 0)
	out, _, _ := s.Spawn(g, in, start, start.Add(time.Hour), time.Second, 1)
	if len(out) != 2 || len(in) != 1 {
		t.Fatalf("len(out)=%d len(in)=%d", len(out), len(in))
	}
	if in[:2][1].ID != 0 {
		t.Fatalf("spawn wrote into the caller's backing array")
	}
}

func TestSpawnInterval(t *testing.T) {
	if got := SpawnInterval(5*time.Second, 0); got != 5*time.Second {
		t.Fatalf("zero multiplier = %v", got)
	}
	if got := SpawnInterval(5*time.Second, 2); got != 2500*time.Millisecond {
		t.Fatalf("double speed = %v", got)
	}
}
