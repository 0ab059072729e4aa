package seq

// Shared test helpers: tracks are built and inspected as (tic, event)
// pairs with absolute tics.

type tev struct {
	tic uint
	ev  Event
}

func buildTrack(evs ...tev) *Track {
	t := NewTrack()
	sp := NewPtr(t)
	tic := uint(0)
	for _, e := range evs {
		sp.TicPut(e.tic - tic)
		tic = e.tic
		sp.EvPut(e.ev)
	}
	return t
}

func events(t *Track) []tev {
	out := []tev{}
	tic := uint(0)
	for se := t.first(); se != t.eot; se = se.next {
		tic += se.Delta
		out = append(out, tev{tic, se.Ev})
	}
	return out
}

func noteOn(ch, num, vel uint8) Event {
	return Event{Cmd: CmdNoteOn, Ch: ch, Num: uint16(num), Val: uint32(vel)}
}

func noteOff(ch, num uint8) Event {
	return Event{Cmd: CmdNoteOff, Ch: ch, Num: uint16(num)}
}

func ctl(ch, num, val uint8) Event {
	return Event{Cmd: CmdCtl, Ch: ch, Num: uint16(num), Val: uint32(val)}
}

func timesig(beats, tics uint) Event {
	return Event{Cmd: CmdTimeSig, Num: uint16(beats), Val: uint32(tics)}
}

func tempo(usec24 uint32) Event {
	return Event{Cmd: CmdTempo, Val: usec24}
}

func prog(ch, p uint8) Event {
	return Event{Cmd: CmdProg, Ch: ch, Val: uint32(p)}
}

func statesEqual(a, b *StateList) bool {
	if a.Len() != b.Len() {
		return false
	}
	for _, st := range a.All() {
		st2 := b.Lookup(st.Ev)
		if st2 == nil || st2.Ev != st.Ev || st2.Phase != st.Phase {
			return false
		}
	}
	return true
}
