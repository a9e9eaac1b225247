package flow

import "time"

// Spawner releases droplets from the source. It is a leaky-bucket gate: an eligible
// tick without stored water is skipped, not queued.
type Spawner struct {
	// Progress is where a new droplet starts inside the source tile.
	Progress int
	IDs      *IDSeq
}

// SpawnInterval divides the base interval by the speed multiplier. Non-positive
// multipliers leave the base interval unchanged.
func SpawnInterval(base time.Duration, multiplier float64) time.Duration {
	if multiplier <= 0 {
		return base
	}
	return time.Duration(float64(base) / multiplier)
}

// Spawn creates one droplet at the source when more than interval has elapsed since
// lastSpawn and at least one unit of water is stored. It returns the new collection,
// the new last-spawn time and the change to stored water (0 or -1).
func (s *Spawner) Spawn(g *Grid, in []Droplet, lastSpawn, now time.Time, interval time.Duration, stored float64) ([]Droplet, time.Time, float64) {
	src, ok := g.Source()
	if !ok {
		return in, lastSpawn, 0
	}
	if now.Sub(lastSpawn) <= interval || stored < 1 {
		return in, lastSpawn, 0
	}
	t, _ := g.At(src)
	exits := g.Ports().DropletOutputs(t.Kind, t.Rotation, NoDir).Dirs()
	to := NoDir
	if len(exits) > 0 {
		to = exits[0]
	}

	out := make([]Droplet, len(in), len(in)+1)
	copy(out, in)
	out = append(out, Droplet{
		ID:       s.IDs.Next(),
		Pos:      src,
		Progress: s.Progress,
		From:     to.Opposite(),
		To:       to,
	})
	return out, now, -1
}
