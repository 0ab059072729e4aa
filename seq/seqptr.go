package seq

import "go.uber.org/zap"

// Ptr is a cursor into a track: a position (cell plus tics consumed within
// the cell's delta) and the state list of everything strictly before it.
// Like a tape head it only moves forward; reading primitives are the only
// way to move, because the state list has to stay in step.
//
// There can be any number of reading cursors on a track, but as soon as
// one writes, it must be the only cursor on that track. Events may only be
// appended at the end of track, except during a full rewrite where every
// cell is deleted and re-put in one pass; that is the only consistent way
// of modifying a track in place. When rewriting, keep the erased events in
// a separate list obtained with Dup, so the cursor's own list tracks what
// is being written.
type Ptr struct {
	pos    *SeqEv
	delta  uint
	tic    uint
	States *StateList
	debug  bool
}

// NewPtr returns a cursor at the beginning of the track. The debug mode
// in effect at construction decides whether invariant violations on this
// cursor panic or are dropped.
func NewPtr(t *Track) *Ptr {
	return &Ptr{pos: t.first(), States: NewStateList(), debug: debug}
}

func (sp *Ptr) panicf(msg string, fields ...zap.Field) {
	logger.Error(msg, fields...)
	if sp.debug {
		panic("seq: " + msg)
	}
}

// Done releases the cursor, warning about unterminated frames.
func (sp *Ptr) Done() {
	sp.States.Done()
	sp.pos = nil
}

// Tic returns the absolute tic of the cursor.
func (sp *Ptr) Tic() uint {
	return sp.tic
}

// EOT reports whether the end of track is reached.
func (sp *Ptr) EOT() bool {
	return sp.pos.Ev.Cmd == CmdNull && sp.delta == sp.pos.Delta
}

// EvAvail reports whether an event is available within the current tic.
func (sp *Ptr) EvAvail() bool {
	return sp.pos.Delta == sp.delta && sp.pos.Ev.Cmd != CmdNull
}

// EvGet reads the next available event, updates the state list and
// advances over it. Returns nil if there is no event in the current tic.
// This is the only primitive that moves the cursor over an event.
func (sp *Ptr) EvGet() *State {
	if sp.delta != sp.pos.Delta || sp.pos.Ev.Cmd == CmdNull {
		return nil
	}
	st := sp.States.Update(sp.pos.Ev)
	if st.Phase&PhaseFirst != 0 {
		st.Pos = sp.pos
		st.Tic = sp.tic
	}
	sp.pos = sp.pos.next
	sp.delta = 0
	return st
}

// EvDel deletes the next available event from the track. The cursor's own
// state list is not touched, since the position does not change; if slist
// is non-nil it is updated as if the event had been read, so a rewrite can
// keep the state of what it erases.
func (sp *Ptr) EvDel(slist *StateList) *State {
	if sp.delta != sp.pos.Delta || sp.pos.Ev.Cmd == CmdNull {
		return nil
	}
	var st *State
	if slist != nil {
		st = slist.Update(sp.pos.Ev)
	}
	next := sp.pos.next
	next.Delta += sp.pos.Delta
	next.prev = sp.pos.prev
	sp.pos.prev.next = next
	sp.pos = next
	return st
}

// EvPut inserts an event at the current position and leaves the cursor
// just after it, updating the state list; the state of the new event is
// returned. Only call this at the end of track, or while rewriting a track
// whose events have all been deleted up to this position.
func (sp *Ptr) EvPut(ev Event) *State {
	se := &SeqEv{Delta: sp.delta, Ev: ev}
	sp.pos.Delta -= sp.delta
	se.next = sp.pos
	se.prev = sp.pos.prev
	se.prev.next = se
	sp.pos.prev = se
	sp.pos = se
	return sp.EvGet()
}

// TicSkip moves forward until the next event, but not more than max tics,
// and returns the number of tics moved. Terminated frames are purged from
// the state list.
func (sp *Ptr) TicSkip(max uint) uint {
	ntics := sp.pos.Delta - sp.delta
	if ntics > max {
		ntics = max
	}
	if ntics > 0 {
		sp.delta += ntics
		sp.tic += ntics
		sp.States.Outdate()
	}
	return ntics
}

// TicDel removes blank space at the current position, with the same
// measurement as TicSkip. The optional slist is outdated whenever max is
// non-zero, even when no tics are removed.
func (sp *Ptr) TicDel(max uint, slist *StateList) uint {
	ntics := sp.pos.Delta - sp.delta
	if ntics > max {
		ntics = max
	}
	sp.pos.Delta -= ntics
	if slist != nil && max > 0 {
		slist.Outdate()
	}
	return ntics
}

// TicPut inserts blank space at the current position and advances over it.
func (sp *Ptr) TicPut(ntics uint) {
	if ntics > 0 {
		sp.pos.Delta += ntics
		sp.delta += ntics
		sp.tic += ntics
		sp.States.Outdate()
	}
}

// NextDelta returns the number of blank tics between the cursor and the
// next event, or the remaining blank of the track at the last event.
func (sp *Ptr) NextDelta() uint {
	return sp.pos.Delta - sp.delta
}

// Skip moves forward ntics, reading. If the end of track is reached the
// number of remaining tics is returned.
func (sp *Ptr) Skip(ntics uint) uint {
	for {
		if sp.EOT() || ntics == 0 {
			break
		}
		for sp.EvGet() != nil {
		}
		ntics -= sp.TicSkip(ntics)
	}
	return ntics
}

// Seek moves forward ntics, filling with blank space if the end of track
// is reached. Used for writing on a track.
func (sp *Ptr) Seek(ntics uint) {
	ntics = sp.Skip(ntics)
	if ntics > 0 {
		sp.TicPut(ntics)
	}
}

// Cancel emits the events that suspend the given frame at the current
// position and reports whether any were emitted. The events are put
// through the cursor, so they update the cursor's own state list; pass a
// state from another list (such as one obtained with Dup) to keep it
// unchanged. Note frames cannot be cancelled; callers cut them
// structurally instead.
func (sp *Ptr) Cancel(st *State) bool {
	if !st.canSuspend() {
		return false
	}
	evs := st.cancelEvs()
	if len(evs) == 0 {
		return false
	}
	for _, ev := range evs {
		sp.EvPut(ev)
	}
	return true
}

// Restore emits the events that re-establish the given frame at its
// current value and reports whether any were emitted. Dual of Cancel.
func (sp *Ptr) Restore(st *State) bool {
	if !st.canSuspend() {
		return false
	}
	evs := st.restoreEvs()
	if len(evs) == 0 {
		return false
	}
	for _, ev := range evs {
		sp.EvPut(ev)
	}
	return true
}

// RmLast erases the most recent event of the frame between the frame
// start and the cursor, as if it never existed; the blank space stays. If
// it was the only event of the frame, the state is dropped and nil is
// returned, else the updated state.
func (sp *Ptr) RmLast(st *State) *State {
	logger.Debug("removing last event", zap.Stringer("ev", st.Ev))
	if st.Pos == nil {
		sp.panicf("rmlast: state has no track position", zap.Stringer("ev", st.Ev))
		sp.States.Rm(st)
		return nil
	}
	// walk from the frame start to the cursor; cur ends up on the event
	// to delete, prev on the previous event of the same frame
	i, cur := st.Pos, st.Pos
	var prev *SeqEv
	for {
		i = i.next
		if i == sp.pos {
			break
		}
		if st.Match(i.Ev) {
			prev = cur
			cur = i
		}
	}
	// unlink cur, donating its delta to the successor
	next := cur.next
	next.Delta += cur.Delta
	if next == sp.pos {
		sp.delta += cur.Delta
	}
	next.prev = cur.prev
	cur.prev.next = next
	if prev == nil {
		// that was the frame's only event
		sp.States.Rm(st)
		return nil
	}
	st.Ev = prev.Ev
	if st.Pos == prev {
		st.Phase = PhaseFirst
	} else {
		st.Phase = PhaseNext
	}
	return st
}

// RmPrev erases every event of the frame between the frame start and the
// cursor and drops the state, as if the frame never existed. Always
// returns nil, for symmetry with RmLast.
func (sp *Ptr) RmPrev(st *State) *State {
	logger.Debug("removing whole frame", zap.Stringer("ev", st.Ev))
	if st.Pos == nil {
		sp.panicf("rmprev: state has no track position", zap.Stringer("ev", st.Ev))
		sp.States.Rm(st)
		return nil
	}
	i := st.Pos
	for {
		if st.Match(i.Ev) {
			next := i.next
			next.Delta += i.Delta
			if next == sp.pos {
				sp.delta += i.Delta
			}
			next.prev = i.prev
			i.prev.next = next
			i = next
		} else {
			i = i.next
		}
		if i == sp.pos {
			break
		}
	}
	sp.States.Rm(st)
	return nil
}

// GetSign returns the time signature in effect at the cursor, falling
// back to the defaults, along with the timesig state if present.
func (sp *Ptr) GetSign() (bpm, tpb uint, st *State) {
	st = sp.States.Lookup(Event{Cmd: CmdTimeSig})
	bpm, tpb = DefaultBPM, DefaultTPB
	if st != nil {
		bpm, tpb = uint(st.Ev.Num), uint(st.Ev.Val)
	}
	return bpm, tpb, st
}

// GetTempo returns the tempo in effect at the cursor, falling back to the
// default, along with the tempo state if present.
func (sp *Ptr) GetTempo() (usec24 uint32, st *State) {
	st = sp.States.Lookup(Event{Cmd: CmdTempo})
	usec24 = DefaultUSec24
	if st != nil {
		usec24 = st.Ev.Val
	}
	return usec24, st
}

// SkipMeasure moves meas measures forward, reading the measure length from
// the live time signature. The cursor must be at the beginning of a
// measure. On premature end of track the number of remaining tics is
// returned.
func (sp *Ptr) SkipMeasure(meas uint) uint {
	for m := uint(0); m < meas; m++ {
		for sp.EvGet() != nil {
		}
		bpm, tpb, _ := sp.GetSign()
		ticsPerMeas := bpm * tpb
		delta := sp.Skip(ticsPerMeas)
		if delta > 0 {
			return (meas-m-1)*ticsPerMeas + delta
		}
	}
	return 0
}
