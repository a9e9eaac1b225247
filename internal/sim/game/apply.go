package game

import (
	"errors"

	"aquaflow.game/internal/protocol"
	"aquaflow.game/internal/sim/economy"
	"aquaflow.game/internal/sim/flow"
)

// Apply executes one command against the session. Every structural change is
// followed by a full propagation; the result and an audit entry are produced for
// accepted and rejected commands alike.
func (s *Session) Apply(cmd Command) Result {
	res, audit := s.apply(cmd)
	res.Ref = cmd.Ref
	res.Tick = s.tick

	s.counters.Commands++
	if !res.Accepted {
		s.counters.Rejected++
	}

	audit.RunID = s.runID
	audit.Tick = s.tick
	audit.Action = cmd.Type
	audit.Board = cmd.Board.String()
	audit.X, audit.Y = cmd.Pos.X, cmd.Pos.Y
	audit.Accepted = res.Accepted
	audit.Code = res.Code
	audit.Cost = res.Cost
	audit.Refund = res.Refund
	if s.auditLogger != nil {
		if err := s.auditLogger.WriteAudit(audit); err != nil {
			s.log.Printf("audit log: %v", err)
		}
	}

	if res.Accepted {
		s.publish(0)
	}
	return res
}

func (s *Session) apply(cmd Command) (Result, AuditEntry) {
	var audit AuditEntry
	switch cmd.Type {
	case protocol.CmdPause:
		s.paused = true
		return accepted(), audit
	case protocol.CmdResume:
		s.paused = false
		return accepted(), audit
	case protocol.CmdReset:
		s.resets++
		prev := s.runID
		if err := s.reset(""); err != nil {
			return rejected(err), audit
		}
		s.log.Printf("run %s reset, new run %s", prev, s.runID)
		if s.onReset != nil {
			s.onReset(s.runID)
		}
		return accepted(), audit
	}
	if s.paused {
		return rejected(ErrPaused), audit
	}

	switch cmd.Type {
	case protocol.CmdPlace:
		return s.place(cmd)
	case protocol.CmdMove:
		return s.mutate(cmd, func(g *flow.Grid) (flow.MutationResult, error) { return g.Move(cmd.Pos, cmd.To) })
	case protocol.CmdRotate:
		return s.mutate(cmd, func(g *flow.Grid) (flow.MutationResult, error) { return g.Rotate(cmd.Pos) })
	case protocol.CmdDelete:
		return s.demolish(cmd)
	case protocol.CmdUnlock:
		return s.unlock(cmd)
	case protocol.CmdUpgrade:
		return s.upgrade(cmd)
	case protocol.CmdRefreshDraft:
		if err := s.wallet.Spend(s.pricing.RefreshCost); err != nil {
			return rejected(err), audit
		}
		s.drafter.Refresh()
		s.boardDirty = true
		r := accepted()
		r.Cost = s.pricing.RefreshCost
		return r, audit
	}
	return rejected(ErrBadCommand), audit
}

func (s *Session) grid(b Board) *flow.Grid {
	if b == BoardDepot {
		return s.depot
	}
	return s.main
}

// commit installs a mutated grid and refreshes everything derived from it.
func (s *Session) commit(b Board, g *flow.Grid) {
	if b == BoardDepot {
		s.depot = g
		s.bonus = economy.ComputeDepotBonus(s.cfg.Items, g)
	} else {
		s.main = g
	}
	s.boardDirty = true
}

func (s *Session) place(cmd Command) (Result, AuditEntry) {
	var audit AuditEntry
	kind, level := cmd.Kind, 1
	if cmd.Board == BoardMain {
		offer, err := s.drafter.Slot(cmd.Slot)
		if err != nil {
			return rejected(err), audit
		}
		kind, level = offer.Kind, offer.Level
	}
	audit.Kind, audit.Level = kind.String(), level

	if err := s.pricing.CheckBoard(kind, cmd.Board == BoardDepot); err != nil {
		return rejected(err), audit
	}
	mr, err := s.grid(cmd.Board).Place(cmd.Pos, kind, level)
	if err != nil {
		return rejected(err), audit
	}
	cost := s.pricing.PlaceCost(kind, s.buildings())
	if err := s.wallet.Spend(cost); err != nil {
		r := rejected(err)
		r.Cost = cost
		return r, audit
	}
	s.commit(cmd.Board, mr.Grid)
	if cmd.Board == BoardMain {
		if _, err := s.drafter.Take(cmd.Slot); err != nil {
			s.log.Printf("draft slot %d: %v", cmd.Slot, err)
		}
	}
	r := accepted()
	r.Cost = cost
	r.Merged = mr.Merged
	return r, audit
}

func (s *Session) mutate(cmd Command, fn func(*flow.Grid) (flow.MutationResult, error)) (Result, AuditEntry) {
	var audit AuditEntry
	mr, err := fn(s.grid(cmd.Board))
	if err != nil {
		return rejected(err), audit
	}
	if t, ok := mr.Grid.At(cmd.Pos); ok && t.Kind != flow.KindEmpty {
		audit.Kind, audit.Level = t.Kind.String(), t.Level
	} else if cmd.Type == protocol.CmdMove {
		if t, ok := mr.Grid.At(cmd.To); ok {
			audit.Kind, audit.Level = t.Kind.String(), t.Level
		}
	}
	s.commit(cmd.Board, mr.Grid)
	r := accepted()
	r.Merged = mr.Merged
	return r, audit
}

func (s *Session) demolish(cmd Command) (Result, AuditEntry) {
	var audit AuditEntry
	mr, err := s.grid(cmd.Board).Remove(cmd.Pos)
	if err != nil {
		return rejected(err), audit
	}
	audit.Kind, audit.Level = mr.Prev.Kind.String(), mr.Prev.Level
	refund := s.pricing.Refund(mr.Prev.Kind)
	s.commit(cmd.Board, mr.Grid)
	s.wallet.Earn(refund)
	r := accepted()
	r.Refund = refund
	return r, audit
}

func (s *Session) unlock(cmd Command) (Result, AuditEntry) {
	var audit AuditEntry
	mr, err := s.grid(cmd.Board).Unlock(cmd.Pos)
	if err != nil {
		return rejected(err), audit
	}
	cost := s.pricing.ExpansionCost
	if err := s.wallet.Spend(cost); err != nil {
		r := rejected(err)
		r.Cost = cost
		return r, audit
	}
	s.commit(cmd.Board, mr.Grid)
	r := accepted()
	r.Cost = cost
	return r, audit
}

func (s *Session) upgrade(cmd Command) (Result, AuditEntry) {
	var audit AuditEntry
	mr, err := s.grid(cmd.Board).Upgrade(cmd.Pos)
	if err != nil {
		return rejected(err), audit
	}
	audit.Kind, audit.Level = mr.Prev.Kind.String(), mr.Prev.Level+1
	cost := s.pricing.UpgradeCost(mr.Prev.Kind, mr.Prev.Level)
	if err := s.wallet.Spend(cost); err != nil {
		r := rejected(err)
		r.Cost = cost
		return r, audit
	}
	s.commit(cmd.Board, mr.Grid)
	r := accepted()
	r.Cost = cost
	return r, audit
}

func accepted() Result { return Result{Accepted: true} }

func rejected(err error) Result {
	return Result{Code: CodeFor(err), Message: err.Error()}
}

// CodeFor maps an error from the flow, economy or game packages to a protocol code.
func CodeFor(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, flow.ErrOutOfBounds):
		return protocol.ErrOutOfBounds
	case errors.Is(err, flow.ErrLocked):
		return protocol.ErrLocked
	case errors.Is(err, flow.ErrOccupied):
		return protocol.ErrOccupied
	case errors.Is(err, flow.ErrImmutable):
		return protocol.ErrImmutable
	case errors.Is(err, flow.ErrNotRotatable):
		return protocol.ErrNotRotatable
	case errors.Is(err, flow.ErrEmptyTile):
		return protocol.ErrEmptyTile
	case errors.Is(err, flow.ErrNotLocked):
		return protocol.ErrNotLocked
	case errors.Is(err, flow.ErrSameTile):
		return protocol.ErrSameTile
	case errors.Is(err, flow.ErrMaxLevel):
		return protocol.ErrMaxLevel
	case errors.Is(err, economy.ErrInsufficientFunds):
		return protocol.ErrNoFunds
	case errors.Is(err, economy.ErrWrongBoard):
		return protocol.ErrWrongBoard
	case errors.Is(err, economy.ErrBadSlot):
		return protocol.ErrBadSlot
	case errors.Is(err, ErrPaused):
		return protocol.ErrPaused
	case errors.Is(err, ErrBadCommand), errors.Is(err, flow.ErrBadKind), errors.Is(err, flow.ErrBadLevel),
		errors.Is(err, economy.ErrUnknownItem):
		return protocol.ErrBadRequest
	}
	return protocol.ErrInternal
}
