package game

import (
	"context"
	"fmt"
	"time"

	"aquaflow.game/internal/persistence/snapshot"
	"aquaflow.game/internal/sim/economy"
	"aquaflow.game/internal/sim/encoding"
	"aquaflow.game/internal/sim/flow"
)

type snapResp struct {
	snap snapshot.SnapshotV1
	err  error
}

// Save captures the running session between ticks.
func (s *Session) Save(ctx context.Context) (snapshot.SnapshotV1, error) {
	resp := make(chan snapResp, 1)
	select {
	case s.snapReq <- resp:
	case <-ctx.Done():
		return snapshot.SnapshotV1{}, ctx.Err()
	case <-s.done:
		return snapshot.SnapshotV1{}, ErrStopped
	}
	select {
	case r := <-resp:
		return r.snap, r.err
	case <-ctx.Done():
		return snapshot.SnapshotV1{}, ctx.Err()
	case <-s.done:
		return snapshot.SnapshotV1{}, ErrStopped
	}
}

// ExportSnapshot captures the whole run. Use Save while Run is active.
func (s *Session) ExportSnapshot() (snapshot.SnapshotV1, error) {
	main, err := exportBoard(s.main)
	if err != nil {
		return snapshot.SnapshotV1{}, fmt.Errorf("main board: %w", err)
	}
	depot, err := exportBoard(s.depot)
	if err != nil {
		return snapshot.SnapshotV1{}, fmt.Errorf("depot board: %w", err)
	}

	snap := snapshot.SnapshotV1{
		Header:        snapshot.Header{Version: snapshot.Version, RunID: s.runID, Tick: s.tick},
		Seed:          s.cfg.Seed,
		Resets:        s.resets,
		Paused:        s.paused,
		Money:         s.wallet.Balance(),
		Water:         s.tank.Stored,
		LastSpawnMs:   -1,
		LastDropletID: uint64(s.ids.Last()),
		Main:          main,
		Depot:         depot,
		Droplets:      make([]snapshot.DropletV1, 0, len(s.droplets)),
	}
	if !s.lastSpawn.IsZero() {
		snap.LastSpawnMs = s.lastSpawn.Sub(epoch).Milliseconds()
	}
	for _, d := range s.droplets {
		snap.Droplets = append(snap.Droplets, snapshot.DropletV1{
			ID:       uint64(d.ID),
			X:        d.Pos.X,
			Y:        d.Pos.Y,
			Progress: d.Progress,
			From:     uint8(d.From),
			To:       uint8(d.To),
			HasPaid:  d.HasPaid,
		})
	}
	for _, o := range s.drafter.Slots() {
		snap.Draft = append(snap.Draft, snapshot.OfferV1{ID: o.ID, Kind: o.Kind.String(), Level: o.Level})
	}
	c := s.counters.clone()
	snap.Counters = snapshot.CountersV1{
		Spawned:  c.Spawned,
		Moved:    c.Moved,
		Splits:   c.Splits,
		Payments: c.Payments,
		Income:   c.Income,
		Dropped:  c.Dropped,
		Commands: c.Commands,
		Rejected: c.Rejected,
	}
	return snap, nil
}

func exportBoard(g *flow.Grid) (snapshot.BoardV1, error) {
	codes, err := g.PackTiles()
	if err != nil {
		return snapshot.BoardV1{}, err
	}
	return snapshot.BoardV1{Size: g.Size(), Tiles: encoding.EncodeRuns(codes)}, nil
}

// Restore replaces the current run with a saved one. Call it before Run. Nothing
// changes when the snapshot does not fit the session's configuration.
func (s *Session) Restore(snap snapshot.SnapshotV1) error {
	if snap.Header.Version != snapshot.Version {
		return fmt.Errorf("restore: snapshot version %d", snap.Header.Version)
	}
	if snap.Header.RunID == "" {
		return fmt.Errorf("restore: snapshot has no run id")
	}
	if snap.Money < 0 || snap.Water < 0 {
		return fmt.Errorf("restore: negative money or water")
	}
	t := s.cfg.Tuning
	src := flow.Pos{X: t.Board.Source.X, Y: t.Board.Source.Y}
	main, err := restoreBoard(snap.Main, flow.GridConfig{
		Size:          t.Board.Size,
		LockedFromRow: t.Board.LockedFromRow,
		Source:        &src,
		Ports:         s.cfg.Items.Ports,
	})
	if err != nil {
		return fmt.Errorf("restore main board: %w", err)
	}
	depot, err := restoreBoard(snap.Depot, flow.GridConfig{
		Size:          t.Depot.Size,
		LockedFromRow: t.Depot.LockedFromRow,
		Ports:         s.cfg.Items.Ports,
	})
	if err != nil {
		return fmt.Errorf("restore depot board: %w", err)
	}

	drafter, err := economy.NewDrafter(s.cfg.Items, t.Draft.Slots, snap.Seed+snap.Resets+int64(snap.Header.Tick))
	if err != nil {
		return err
	}
	offers := make([]economy.Offer, 0, len(snap.Draft))
	for _, o := range snap.Draft {
		k, err := flow.ParseKind(o.Kind)
		if err != nil {
			return fmt.Errorf("restore draft: %w", err)
		}
		offers = append(offers, economy.Offer{ID: o.ID, Kind: k, Level: o.Level})
	}
	if err := drafter.Restore(offers); err != nil {
		return fmt.Errorf("restore: %w", err)
	}

	lastID := flow.DropletID(snap.LastDropletID)
	droplets := make([]flow.Droplet, 0, len(snap.Droplets))
	for _, d := range snap.Droplets {
		p := flow.Pos{X: d.X, Y: d.Y}
		from, to := flow.Dir(d.From), flow.Dir(d.To)
		if !main.In(p) || d.Progress < 0 || d.Progress > 100 || !validDir(from) || !validDir(to) {
			return fmt.Errorf("restore: bad droplet %+v", d)
		}
		id := flow.DropletID(d.ID)
		if id > lastID {
			lastID = id
		}
		droplets = append(droplets, flow.Droplet{ID: id, Pos: p, Progress: d.Progress, From: from, To: to, HasPaid: d.HasPaid})
	}

	s.cfg.Seed = snap.Seed
	s.runID = snap.Header.RunID
	s.resets = snap.Resets
	s.main = main
	s.depot = depot
	s.droplets = droplets
	s.ids.Resume(lastID)
	s.wallet = economy.NewWallet(snap.Money)
	s.bonus = economy.ComputeDepotBonus(s.cfg.Items, depot)
	s.tank.Stored = min(snap.Water, s.tank.Capacity(s.bonus))
	s.drafter = drafter
	s.tick = snap.Header.Tick
	s.paused = snap.Paused
	s.lastSpawn = time.Time{}
	if snap.LastSpawnMs >= 0 {
		s.lastSpawn = epoch.Add(time.Duration(snap.LastSpawnMs) * time.Millisecond)
	}
	s.counters = Counters{
		Spawned:  snap.Counters.Spawned,
		Moved:    snap.Counters.Moved,
		Splits:   snap.Counters.Splits,
		Payments: snap.Counters.Payments,
		Income:   snap.Counters.Income,
		Dropped:  map[string]uint64{},
		Commands: snap.Counters.Commands,
		Rejected: snap.Counters.Rejected,
	}
	for k, v := range snap.Counters.Dropped {
		s.counters.Dropped[k] = v
	}
	s.boardDirty = true
	s.log.Printf("restored run %s at tick %d", s.runID, s.tick)
	return nil
}

func restoreBoard(b snapshot.BoardV1, cfg flow.GridConfig) (*flow.Grid, error) {
	if b.Size != cfg.Size {
		return nil, fmt.Errorf("saved size %d, configured %d", b.Size, cfg.Size)
	}
	codes, err := encoding.DecodeRuns(b.Tiles, cfg.Size*cfg.Size)
	if err != nil {
		return nil, err
	}
	return flow.Restore(cfg, codes)
}

func validDir(d flow.Dir) bool { return d.Valid() || d == flow.NoDir }
