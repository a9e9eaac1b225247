package game

import (
	"time"

	"aquaflow.game/internal/protocol"
	"aquaflow.game/internal/sim/economy"
	"aquaflow.game/internal/sim/flow"
)

// StepDroplets runs one fast tick: spawn, then advance every droplet. It does nothing
// while paused.
func (s *Session) StepDroplets() flow.TickReport {
	if s.paused {
		return flow.TickReport{}
	}
	s.tick++

	interval := flow.SpawnInterval(s.cfg.Tuning.Clock.SpawnInterval(), s.bonus.SpawnMultiplier())
	var delta float64
	s.droplets, s.lastSpawn, delta = s.spawner.Spawn(s.main, s.droplets, s.lastSpawn, s.now(), interval, s.tank.Stored)
	if delta != 0 {
		s.tank.Draw(delta)
		s.counters.Spawned++
	}

	next, rep := s.transport.Advance(s.main, s.droplets)
	s.droplets = next
	s.wallet.Earn(rep.Income)

	s.counters.Moved += uint64(rep.Moved)
	s.counters.Splits += uint64(rep.Splits)
	s.counters.Payments += uint64(len(rep.Payments))
	s.counters.Income += rep.Income
	for r, n := range rep.Dropped {
		if n > 0 {
			s.counters.Dropped[flow.DropReason(r).String()] += uint64(n)
		}
	}

	s.publish(rep.Income)
	return rep
}

// StepResources runs one resource tick: refill the tank and record stats. It does
// nothing while paused.
func (s *Session) StepResources() {
	if s.paused {
		return
	}
	s.tank.Refill(s.bonus)

	if s.statsLogger != nil {
		var dropped uint64
		for _, n := range s.counters.Dropped {
			dropped += n
		}
		entry := StatsEntry{
			RunID:     s.runID,
			Tick:      s.tick,
			GameMs:    s.gameMs(),
			At:        time.Now().UTC(),
			Money:     s.wallet.Balance(),
			Water:     s.tank.Stored,
			Capacity:  s.tank.Capacity(s.bonus),
			Refill:    s.tank.RefillRate(s.bonus),
			IncomeEst: economy.EstimatedIncome(s.main, s.cfg.Tuning.Econ.BaseIncome),
			Droplets:  len(s.droplets),
			Spawned:   s.counters.Spawned,
			Dropped:   dropped,
			Income:    s.counters.Income,
		}
		if err := s.statsLogger.WriteStats(entry); err != nil {
			s.log.Printf("stats log: %v", err)
		}
	}
}

func (s *Session) publish(income int64) {
	if len(s.observers) == 0 {
		s.boardDirty = false
		return
	}
	f := s.frame(income, s.boardDirty)
	s.boardDirty = false
	for _, ch := range s.observers {
		sendLatest(ch, f)
	}
}

func (s *Session) frame(income int64, withBoard bool) Frame {
	f := Frame{
		Tick:     s.tick,
		Paused:   s.paused,
		Money:    s.wallet.Balance(),
		Water:    s.tank.Stored,
		Capacity: s.tank.Capacity(s.bonus),
		Income:   income,
		Droplets: s.droplets,
	}
	if withBoard {
		b := s.boardMsg()
		f.Board = &b
	}
	return f
}

func (s *Session) boardMsg() protocol.BoardMsg {
	return protocol.BoardMsg{
		Type:            protocol.TypeBoard,
		ProtocolVersion: protocol.Version,
		Tick:            s.tick,
		Main:            s.main.Rows(),
		Depot:           s.depot.Rows(),
		Draft:           s.draftOffers(),
		Costs:           s.costs(),
	}
}

func (s *Session) buildings() int { return economy.Buildings(s.main, s.depot) }

func (s *Session) draftOffers() []protocol.DraftOffer {
	n := s.buildings()
	slots := s.drafter.Slots()
	out := make([]protocol.DraftOffer, 0, len(slots))
	for i, o := range slots {
		out = append(out, protocol.DraftOffer{
			Slot:  i,
			ID:    o.ID,
			Kind:  o.Kind.String(),
			Level: o.Level,
			Cost:  s.pricing.PlaceCost(o.Kind, n),
		})
	}
	return out
}

// costs lists the current price of every buildable kind plus the flat fees.
func (s *Session) costs() map[string]int64 {
	n := s.buildings()
	out := map[string]int64{
		"UNLOCK":        s.pricing.ExpansionCost,
		"REFRESH_DRAFT": s.pricing.RefreshCost,
	}
	for _, k := range s.cfg.Items.Order {
		if k == flow.KindSource {
			continue
		}
		out[k.String()] = s.pricing.PlaceCost(k, n)
	}
	return out
}

// State returns a copy of the session state. Boards and droplets are value copies.
func (s *Session) State() State {
	droplets := make([]flow.Droplet, len(s.droplets))
	copy(droplets, s.droplets)
	mult := s.bonus.SpawnMultiplier()
	return State{
		RunID:           s.runID,
		Tick:            s.tick,
		GameMs:          s.gameMs(),
		Paused:          s.paused,
		Money:           s.wallet.Balance(),
		Water:           s.tank.Stored,
		Capacity:        s.tank.Capacity(s.bonus),
		Refill:          s.tank.RefillRate(s.bonus),
		SpawnMultiplier: mult,
		ConsumptionRate: economy.ConsumptionRate(mult, s.cfg.Tuning.Clock.SpawnInterval()),
		EstimatedIncome: economy.EstimatedIncome(s.main, s.cfg.Tuning.Econ.BaseIncome),
		Main:            s.main.Rows(),
		Depot:           s.depot.Rows(),
		Droplets:        droplets,
		Draft:           s.draftOffers(),
		Costs:           s.costs(),
		Counters:        s.counters.clone(),
	}
}
