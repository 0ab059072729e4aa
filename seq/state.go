package seq

import "go.uber.org/zap"

// State flags.
const (
	// StateNew is set by every update and cleared by the next outdate.
	StateNew uint8 = 1 << iota
	// StateChanged marks an update that modified the value of the frame.
	StateChanged
	// StateBogus marks an out-of-order event: a terminating or continuing
	// event with no open frame to belong to. Bogus events are kept in the
	// list but never re-emitted by editors.
	StateBogus
	// StateNested marks a frame that was opened again while still open
	// (note-on during the same sounding note). Treated like bogus for
	// emission.
	StateNested
)

// revMax bounds the number of events cancel/restore synthesis may produce
// for one frame.
const revMax = 4

// State collapses all prior events of one frame into a single record: the
// last event seen, its phase, and where the frame started on the track.
// Tag is scratch storage for whichever editor is walking the track; it is
// deliberately not copied by Dup.
type State struct {
	Ev    Event
	Phase uint8
	Flags uint8
	Tag   uint
	Pos   *SeqEv // cell of the frame-start event; weak, owned by the track
	Tic   uint   // absolute tic of the frame start

	next, prev *State
}

// Match reports whether ev belongs to the same frame as the state.
func (st *State) Match(ev Event) bool {
	return keyOf(st.Ev) == keyOf(ev)
}

// Eq reports whether ev equals the state's current event, payload included.
func (st *State) Eq(ev Event) bool {
	return st.Ev == ev
}

// canSuspend reports whether the frame can be suspended and later
// re-established by synthesised events. Notes cannot; neither can frames
// that already terminated.
func (st *State) canSuspend() bool {
	return !st.Ev.IsNote() && st.Phase != PhaseLast
}

func ctlEv(dev, ch uint8, num uint16, val uint32) Event {
	return Event{Cmd: CmdCtl, Dev: dev, Ch: ch, Num: num, Val: val}
}

// cancelEvs synthesises the events that suspend the frame: controllers go
// to their default value, pitch-bend recenters, RPN/NRPN selection is
// parked at 127/127. Frames with no neutral value (programs, tempo,
// timesig) and note frames synthesise nothing.
func (st *State) cancelEvs() []Event {
	e := st.Ev
	evs := make([]Event, 0, revMax)
	switch e.Cmd {
	case CmdCtl:
		num := keyOf(e).num
		if st.Phase&PhaseLast == 0 {
			// open 14-bit pair: close it at the LSB default
			evs = append(evs, ctlEv(e.Dev, e.Ch, num+32, uint32(CtlDefault(uint8(num+32)))))
		} else {
			evs = append(evs, ctlEv(e.Dev, e.Ch, num, uint32(CtlDefault(uint8(num)))))
		}
	case CmdXCtl:
		val := uint32(CtlDefault(uint8(e.Num)))<<7 | uint32(CtlDefault(uint8(e.Num)+32))
		evs = append(evs, Event{Cmd: CmdXCtl, Dev: e.Dev, Ch: e.Ch, Num: e.Num, Val: val})
	case CmdBend:
		evs = append(evs, Event{Cmd: CmdBend, Dev: e.Dev, Ch: e.Ch, Val: BendCenter})
	case CmdChanAft:
		evs = append(evs, Event{Cmd: CmdChanAft, Dev: e.Dev, Ch: e.Ch})
	case CmdRPN:
		evs = append(evs, ctlEv(e.Dev, e.Ch, 101, 127), ctlEv(e.Dev, e.Ch, 100, 127))
	case CmdNRPN:
		evs = append(evs, ctlEv(e.Dev, e.Ch, 99, 127), ctlEv(e.Dev, e.Ch, 98, 127))
	}
	return evs
}

// restoreEvs synthesises the events that re-establish the frame at its
// current value. Note frames synthesise nothing.
func (st *State) restoreEvs() []Event {
	if st.Ev.IsNote() {
		return nil
	}
	evs := make([]Event, 0, revMax)
	evs = append(evs, st.Ev)
	return evs
}

// StateList is the set of live frames at some position of a track, keyed
// by frame identity. Iteration follows insertion order so that editors
// emit synthesised events deterministically.
type StateList struct {
	first, last *State
	index       map[frameKey]*State
}

// NewStateList returns an empty list.
func NewStateList() *StateList {
	return &StateList{index: make(map[frameKey]*State)}
}

// Dup copies the behavioural fields of every state of src into a fresh
// list: event, phase and flags except NEW and CHANGED. Tags and track
// positions are not copied; tag states only after duplicating.
func (sl *StateList) Dup() *StateList {
	dup := NewStateList()
	for st := sl.first; st != nil; st = st.next {
		cp := &State{
			Ev:    st.Ev,
			Phase: st.Phase,
			Flags: st.Flags &^ (StateNew | StateChanged),
		}
		dup.add(cp)
	}
	return dup
}

func (sl *StateList) add(st *State) {
	st.prev = sl.last
	st.next = nil
	if sl.last != nil {
		sl.last.next = st
	} else {
		sl.first = st
	}
	sl.last = st
	sl.index[keyOf(st.Ev)] = st
}

// Rm removes the state from the list.
func (sl *StateList) Rm(st *State) {
	if st.prev != nil {
		st.prev.next = st.next
	} else {
		sl.first = st.next
	}
	if st.next != nil {
		st.next.prev = st.prev
	} else {
		sl.last = st.prev
	}
	delete(sl.index, keyOf(st.Ev))
	st.next, st.prev = nil, nil
}

// Lookup returns the state of the frame ev belongs to, or nil.
func (sl *StateList) Lookup(ev Event) *State {
	return sl.index[keyOf(ev)]
}

// All returns the states in insertion order. The slice is a snapshot;
// callers may remove states while iterating it.
func (sl *StateList) All() []*State {
	var states []*State
	for st := sl.first; st != nil; st = st.next {
		states = append(states, st)
	}
	return states
}

// Len returns the number of live states.
func (sl *StateList) Len() int {
	return len(sl.index)
}

// Update folds ev into the list: it finds or creates the state of the
// frame, refines the event's phase against it, and maintains the NEW,
// CHANGED, BOGUS and NESTED flags. The state is returned.
func (sl *StateList) Update(ev Event) *State {
	phase := ev.Phase()
	st := sl.Lookup(ev)
	if st == nil {
		st = &State{Ev: ev, Flags: StateNew}
		if phase&PhaseFirst == 0 {
			// terminating or continuing event with no frame open
			st.Flags |= StateBogus
			st.Phase = PhaseLast
		} else {
			st.Phase = phase &^ PhaseNext
		}
		sl.add(st)
		return st
	}

	st.Flags |= StateNew
	st.Flags &^= StateBogus | StateNested
	switch {
	case phase&PhaseFirst != 0 && phase&PhaseLast != 0:
		if st.Ev != ev {
			st.Flags |= StateChanged
		}
		st.Ev = ev
		st.Phase = PhaseFirst | PhaseLast
	case phase&PhaseFirst != 0:
		if st.Phase&PhaseLast == 0 {
			// frame opened again while still open
			st.Flags |= StateNested
			st.Ev = ev
			st.Phase = PhaseNext
		} else {
			if st.Ev != ev {
				st.Flags |= StateChanged
			}
			st.Ev = ev
			st.Phase = PhaseFirst
		}
	case phase&PhaseLast != 0:
		if st.Phase&PhaseLast != 0 {
			// frame already terminated
			st.Flags |= StateBogus
		} else {
			if st.Ev != ev {
				st.Flags |= StateChanged
			}
			st.Ev = ev
			st.Phase = PhaseLast
		}
	default: // PhaseNext
		if st.Phase&PhaseLast != 0 {
			st.Flags |= StateBogus
		} else {
			if st.Ev != ev {
				st.Flags |= StateChanged
			}
			st.Ev = ev
			st.Phase = PhaseNext
		}
	}
	return st
}

// Outdate purges terminated frames and clears the per-window flags of the
// survivors. A frame whose phase is exactly LAST is gone once it is no
// longer NEW; one-shot FIRST|LAST frames stay as value memory.
func (sl *StateList) Outdate() {
	var next *State
	for st := sl.first; st != nil; st = next {
		next = st.next
		if st.Phase == PhaseLast && st.Flags&StateNew == 0 {
			sl.Rm(st)
			continue
		}
		st.Flags &^= StateNew | StateChanged
	}
}

// Empty drops every state without complaint.
func (sl *StateList) Empty() {
	for st := sl.first; st != nil; st = st.next {
		delete(sl.index, keyOf(st.Ev))
	}
	sl.first, sl.last = nil, nil
}

// Done releases the list, warning about frames that never terminated.
func (sl *StateList) Done() {
	for st := sl.first; st != nil; st = st.next {
		if st.Phase&PhaseLast == 0 {
			logger.Warn("unterminated frame", zap.Stringer("ev", st.Ev))
		} else if st.Flags&(StateBogus|StateNested) != 0 {
			logger.Warn("inconsistent frame", zap.Stringer("ev", st.Ev))
		}
	}
	sl.Empty()
}
