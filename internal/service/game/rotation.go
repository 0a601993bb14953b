package game

// nextSeat walks clockwise from `from` (exclusive) over n seats and
// returns the first index accepted by ok. `from` itself is checked last,
// so a lone match is still found. from may be noSeat to start at 0.
func nextSeat(n, from int, ok func(int) bool) int {
	for k := 1; k <= n; k++ {
		idx := (from + k) % n
		if idx < 0 {
			idx += n
		}
		if ok(idx) {
			return idx
		}
	}
	return noSeat
}

func (s *TableState) nextEligibleSeat(from int) int {
	return nextSeat(len(s.Seats), from, func(i int) bool { return s.Seats[i].eligible() })
}

// nextToAct returns the next ACTIVE player after `from` who still owes an
// action this round, falling back to the next ACTIVE player. It is noSeat
// when fewer than two players remain in the hand.
func (s *TableState) nextToAct(from int) int {
	h := s.CurrentHand
	if len(h.live()) < 2 {
		return noSeat
	}
	active := func(i int) bool {
		ps := h.player(i)
		return ps != nil && ps.Status == StatusActive
	}
	pending := func(i int) bool {
		ps := h.player(i)
		return ps != nil && ps.Status == StatusActive && (!ps.HasActed || ps.CurrentBet < h.Betting.CurrentBet)
	}
	if idx := nextSeat(len(s.Seats), from, pending); idx != noSeat {
		return idx
	}
	return nextSeat(len(s.Seats), from, active)
}

// setToAct moves the turn and refreshes the derived call amount.
func (h *HandState) setToAct(seatIndex int) {
	h.ToActSeatIndex = seatIndex
	h.Betting.ToActSeatIndex = seatIndex
	h.CallAmount = 0
	if ps := h.player(seatIndex); ps != nil {
		h.CallAmount = h.owed(ps)
	}
}
