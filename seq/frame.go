package seq

import "go.uber.org/zap"

// The editors below all follow the same rewrite idiom: walk the track
// deleting events into a side list holding the original state, while the
// cursor's own state list tracks what is being written back. Blank space
// is rewritten along with the events so both lists get outdated.

// evMerge1 merges a low-priority event: the event of state s1 is put back
// on the track unless it conflicts with the high-priority state s2, in
// which case its frame is tagged silent until it ends.
func evMerge1(pd *Ptr, s1, s2 *State) {
	if s1.Flags&(StateBogus|StateNested) != 0 {
		return
	}
	if s2 != nil && s2.Flags&(StateBogus|StateNested) != 0 {
		s2 = nil
	}
	if s1.Phase&PhaseFirst != 0 {
		// the frame is live iff there is no high-priority frame at the
		// same identity, or that frame already terminated; persistent
		// one-shot frames never terminate and keep suppressing
		if s2 == nil || s2.Phase == PhaseLast {
			s1.Tag = 1
		} else {
			s1.Tag = 0
			logger.Debug("frame started in silent state",
				zap.Stringer("ev", s1.Ev))
		}
	}
	if s1.Tag != 0 {
		pd.EvPut(s1.Ev)
	}
}

// evMerge2 merges a high-priority event: the event of state s2 is put on
// the track; if the original destination state s1 conflicts, the events
// already written for its frame are discarded, and when s2's frame ends
// the s1 frame is resumed at its original value.
func evMerge2(pd *Ptr, s1, s2 *State) {
	if s2.Flags&(StateBogus|StateNested) != 0 {
		return
	}
	if s1 != nil && s1.Flags&(StateBogus|StateNested) != 0 {
		s1 = nil
	}
	sd := pd.States.Lookup(s2.Ev)
	switch {
	case s2.Phase&PhaseFirst != 0:
		if s1 != nil && s1.Tag != 0 {
			if sd == nil {
				pd.panicf("merge: conflicting frame not on track",
					zap.Stringer("ev", s1.Ev))
			} else if s2.Ev.IsNote() {
				if s1.Phase&PhaseLast == 0 {
					sd = pd.RmPrev(sd)
				}
			} else if s1.Flags&StateChanged != 0 {
				sd = pd.RmLast(sd)
			}
			s1.Tag = 0
		}
		s2.Tag = 1
	case s2.Phase&PhaseNext != 0:
		// conflicts already handled on the frame's first event
	case s2.Phase&PhaseLast != 0:
		if s1 != nil {
			s2.Tag = 0
			if sd == nil || !sd.Eq(s1.Ev) {
				sd = pd.EvPut(s1.Ev)
			}
			s1.Tag = 1
		}
	}
	if s2.Tag != 0 && (sd == nil || !sd.Eq(s2.Ev)) {
		pd.EvPut(s2.Ev)
	}
}

// Merge overlays track src (high priority) onto dst (low priority),
// resolving all conflicts so that dst stays consistent: src wins on
// overlap, and suspended dst frames resume when the src frame ends.
func Merge(dst, src *Track) {
	pd := NewPtr(dst)
	p2 := NewPtr(src)
	orglist := NewStateList()

	for {
		// remove all events of dst at this tic and put them back merged
		// against the state of src; orglist keeps the exact state of the
		// original dst track
		for {
			s1 := pd.EvDel(orglist)
			if s1 == nil {
				break
			}
			s2 := p2.States.Lookup(s1.Ev)
			evMerge1(pd, s1, s2)
		}

		// move all events of src at this tic to dst, merged against the
		// original dst state
		for {
			s2 := p2.EvGet()
			if s2 == nil {
				break
			}
			s1 := orglist.Lookup(s2.Ev)
			evMerge2(pd, s1, s2)
		}

		// advance to the earlier of the two next events
		delta1 := pd.pos.Delta - pd.delta
		delta2 := p2.pos.Delta - p2.delta
		var deltad uint
		if delta1 > 0 {
			deltad = delta1
			if delta2 > 0 && delta2 < deltad {
				deltad = delta2
			}
		} else if delta2 > 0 {
			deltad = delta2
		} else {
			break
		}
		p2.TicSkip(deltad)
		pd.TicDel(deltad, orglist)
		pd.TicPut(deltad)
	}

	orglist.Done()
	p2.Done()
	pd.Done()
	dst.Chomp()
}

// Tags used by Move.
const (
	tagKeep uint = 1 << iota // frame is not erased from src
	tagCopy                  // frame is copied to dst
)

// Move copies and/or cuts the selector-matching frames of the region
// [start, start+len) of src. With copy set the selection lands in dst
// (which is cleared first); with blank set the selection is cleanly
// removed from src. Frames are always whole: notes are copied or erased
// completely, and frames that cross a boundary are suspended and restored
// by synthesised events, so the copy played alone sounds like the excerpt
// and the blanked src sounds like the original minus the selection.
func Move(src *Track, start, length uint, es EvSpec, dst *Track, copy, blank bool) {
	if length == 0 {
		return
	}
	var dp *Ptr
	if copy {
		dst.Clear()
		dp = NewPtr(dst)
	}
	sp := NewPtr(src)

	// go to the start position; every frame live there is tagged as kept
	// and not copied
	sp.Skip(start)
	slist := sp.States.Dup()
	live := make(map[*State]bool)
	for _, st := range slist.All() {
		st.Tag = tagKeep
		live[st] = true
	}

	// cancel and untag the frames that will be erased
	if blank {
		for _, st := range slist.All() {
			if es.MatchEv(st.Ev) && sp.Cancel(st) {
				st.Tag &^= tagKeep
			}
		}
	}

	// process the first tic of the region: frames starting here belong to
	// the region, and already-live frames get a last chance to terminate
	// before being restored into the copy
	for sp.EvAvail() {
		st := sp.EvDel(slist)
		if st.Phase&PhaseFirst != 0 || (st.Phase&PhaseNext != 0 && !st.Ev.IsNote()) {
			st.Tag &^= tagCopy
			if es.MatchEv(st.Ev) {
				st.Tag |= tagCopy
			}
		}
		if st.Phase&PhaseFirst != 0 {
			if es.MatchEv(st.Ev) {
				st.Tag &^= tagKeep
			} else {
				st.Tag |= tagKeep
			}
		}
		if copy && st.Tag&tagCopy != 0 {
			dp.EvPut(st.Ev)
		}
		if !blank || st.Tag&tagKeep != 0 {
			sp.EvPut(st.Ev)
		}
	}

	// in the copy, restore the frames the first tic did not update
	if copy {
		for _, st := range slist.All() {
			if !es.MatchEv(st.Ev) {
				continue
			}
			if st.Tag&tagCopy == 0 && dp.Restore(st) {
				st.Tag |= tagCopy
			}
		}
	}

	// tag, copy and erase frames during the region
	for {
		delta := sp.TicDel(length, slist)
		if copy {
			dp.TicPut(delta)
		}
		sp.TicPut(delta)
		length -= delta
		if length == 0 {
			break
		}
		st := sp.EvDel(slist)
		if st == nil {
			break
		}
		if st.Phase&PhaseFirst != 0 {
			if es.MatchEv(st.Ev) {
				st.Tag = tagCopy
			} else {
				st.Tag = tagKeep
			}
		}
		if copy && st.Tag&tagCopy != 0 {
			dp.EvPut(st.Ev)
		}
		if !blank || st.Tag&tagKeep != 0 {
			sp.EvPut(st.Ev)
		}
	}

	// cancel the copied frames still live at the region end; cancelled
	// frames are untagged so they stop being copied
	if copy {
		for _, st := range slist.All() {
			if st.Tag&tagCopy != 0 && dp.Cancel(st) {
				st.Tag &^= tagCopy
			}
		}
	}

	// process the first tic past the region: frames starting here are
	// kept, and erased frames get a last chance to terminate before being
	// restored by hand
	for sp.EvAvail() {
		st := sp.EvDel(slist)
		if st.Phase&PhaseFirst != 0 || (st.Phase&PhaseNext != 0 && !st.Ev.IsNote()) {
			st.Tag |= tagKeep
		}
		if st.Phase&PhaseFirst != 0 {
			st.Tag &^= tagCopy
		}
		if copy && st.Tag&tagCopy != 0 {
			dp.EvPut(st.Ev)
		}
		if !blank || st.Tag&tagKeep != 0 {
			sp.EvPut(st.Ev)
		}
	}

	// restore the erased frames that were live at the region start and
	// did not terminate
	for _, st := range slist.All() {
		if live[st] && st.Tag&tagKeep == 0 && sp.Restore(st) {
			st.Tag |= tagKeep
		}
	}

	// copy through the tail of the frames whose state could not be
	// cancelled (notes)
	for {
		delta := sp.TicDel(^uint(0), slist)
		if copy {
			dp.TicPut(delta)
		}
		sp.TicPut(delta)
		st := sp.EvDel(slist)
		if st == nil {
			break
		}
		if st.Phase&PhaseFirst != 0 {
			st.Tag &^= tagCopy
			st.Tag |= tagKeep
		}
		if copy && st.Tag&tagCopy != 0 {
			dp.EvPut(st.Ev)
		}
		if !blank || st.Tag&tagKeep != 0 {
			sp.EvPut(st.Ev)
		}
	}

	slist.Done()
	sp.Done()
	if copy {
		dp.Done()
		dst.Chomp()
	}
	if blank {
		src.Chomp()
	}
}

// Quantize snaps the note starts of the region [start, start+len) to the
// quant grid shifted by offset. rate is the strength in percent: 0 leaves
// positions unchanged, 100 moves notes fully onto the grid. The later
// events of a quantized note (such as its note-off) move with it on the
// same stretched time scale; events of other frames keep their positions.
func Quantize(src *Track, start, length, offset, quant, rate uint) {
	qt := NewTrack()
	sp := NewPtr(src)
	qp := NewPtr(qt)

	// go to the start position and untag everything; tagged frames are
	// the ones being quantized
	sp.Skip(start)
	slist := sp.States.Dup()
	for _, st := range slist.All() {
		st.Tag = 0
	}
	qp.Seek(start)
	tic := start
	ofs := 0
	fluct, notes := uint(0), uint(0)

	// copy the events to quantize during the region, stretching the time
	// scale in the scratch track
	for {
		delta := sp.TicDel(length, slist)
		tic += delta

		if tic >= start+length || !sp.EvAvail() {
			break
		}

		sp.TicPut(delta)

		d := int(delta) - ofs
		remaind := uint(0)
		if quant != 0 {
			remaind = (tic - start + offset) % quant
		}
		if remaind < quant/2 {
			ofs = -int((remaind*rate + 99) / 100)
		} else {
			ofs = int(((quant-remaind)*rate + 99) / 100)
		}
		d += ofs
		if d < 0 {
			panicf("quantize: note would move before the previous one",
				zap.Uint("tic", tic))
			d = 0
		}
		qp.TicPut(uint(d))

		st := sp.EvDel(slist)
		if st.Phase&PhaseFirst != 0 {
			if st.Ev.IsNote() {
				st.Tag = 1
				if ofs < 0 {
					fluct += uint(-ofs)
				} else {
					fluct += uint(ofs)
				}
				notes++
			} else {
				st.Tag = 0
			}
		}
		if st.Tag != 0 {
			qp.EvPut(st.Ev)
		} else {
			sp.EvPut(st.Ev)
		}
	}

	// finish the quantized frames
	for {
		delta := sp.TicDel(^uint(0), slist)
		sp.TicPut(delta)
		if !sp.EvAvail() {
			break
		}
		st := sp.EvDel(slist)
		if st.Phase&PhaseFirst != 0 {
			st.Tag = 0
		}
		qp.TicPut(delta)
		if st.Tag != 0 {
			qp.EvPut(st.Ev)
		} else {
			sp.EvPut(st.Ev)
		}
	}

	Merge(src, qt)
	slist.Done()
	sp.Done()
	qp.Done()
	if notes > 0 {
		logger.Debug("quantize",
			zap.Uint("fluct", fluct),
			zap.Uint("notes", notes),
			zap.Uint("avgPercent", 100*fluct/notes))
	}
}

// Transpose shifts the pitch of every note of the region [start,
// start+len) by halftones, modulo 128.
func Transpose(src *Track, start, length uint, halftones int) {
	qt := NewTrack()
	sp := NewPtr(src)
	qp := NewPtr(qt)

	sp.Skip(start)
	slist := sp.States.Dup()
	for _, st := range slist.All() {
		st.Tag = 0
	}
	qp.Seek(start)
	tic := start

	for {
		delta := sp.TicDel(length, slist)
		sp.TicPut(delta)
		qp.TicPut(delta)
		tic += delta

		if tic >= start+length || !sp.EvAvail() {
			break
		}

		st := sp.EvDel(slist)
		if st.Phase&PhaseFirst != 0 {
			if st.Ev.IsNote() {
				st.Tag = 1
			} else {
				st.Tag = 0
			}
		}
		if st.Tag != 0 {
			ev := st.Ev
			ev.Num = uint16((int(ev.Num) + halftones) & 0x7f)
			qp.EvPut(ev)
		} else {
			sp.EvPut(st.Ev)
		}
	}

	// finish the transposed frames
	for {
		delta := sp.TicDel(^uint(0), slist)
		sp.TicPut(delta)
		qp.TicPut(delta)
		if !sp.EvAvail() {
			break
		}
		st := sp.EvDel(slist)
		if st.Phase&PhaseFirst != 0 {
			st.Tag = 0
		}
		if st.Tag != 0 {
			ev := st.Ev
			ev.Num = uint16((int(ev.Num) + halftones) & 0x7f)
			qp.EvPut(ev)
		} else {
			sp.EvPut(st.Ev)
		}
	}

	Merge(src, qt)
	slist.Done()
	sp.Done()
	qp.Done()
}

// Check rewrites the track dropping bogus, nested and duplicate events,
// and erases frames that never terminate, so the result is consistent.
func Check(src *Track) {
	sp := NewPtr(src)
	slist := NewStateList()

	for {
		delta := sp.TicDel(^uint(0), slist)
		sp.TicPut(delta)

		st := sp.EvDel(slist)
		if st == nil {
			break
		}
		if st.Flags&StateNew != 0 {
			switch {
			case st.Flags&StateBogus != 0:
				logger.Debug("dropping bogus event", zap.Stringer("ev", st.Ev))
				st.Tag = 0
			case st.Flags&StateNested != 0:
				logger.Debug("dropping nested event", zap.Stringer("ev", st.Ev))
				st.Tag = 0
			default:
				st.Tag = 1
			}
		}
		if st.Tag != 0 {
			// don't duplicate value-equal events
			dst := sp.States.Lookup(st.Ev)
			if dst == nil || !dst.Eq(st.Ev) {
				sp.EvPut(st.Ev)
			} else {
				logger.Debug("dropping duplicate event", zap.Stringer("ev", st.Ev))
			}
		}
	}

	// erase the frames that never terminated
	for _, st := range sp.States.All() {
		if st.Phase&PhaseLast == 0 {
			logger.Debug("erasing unterminated frame", zap.Stringer("ev", st.Ev))
			sp.RmPrev(st)
		}
	}

	// the bugs are fixed on the track, so drop the erased state without
	// the usual warnings
	slist.Empty()
	slist.Done()
	sp.Done()
}

// FindMeasure converts a measure number to a tic number using the timesig
// frames of the track. Measures past the end of track are extrapolated
// with the last signature.
func FindMeasure(t *Track, meas uint) uint {
	sp := NewPtr(t)
	tic := sp.SkipMeasure(meas)
	tic += sp.Tic()
	sp.States.Empty()
	sp.Done()
	logger.Debug("findmeasure", zap.Uint("measure", meas), zap.Uint("tic", tic))
	return tic
}

// TimeInfo returns the absolute tic, the tempo and the time signature at
// the given measure.
func TimeInfo(t *Track, meas uint) (abs uint, usec24 uint32, bpm, tpb uint) {
	sp := NewPtr(t)
	abs = sp.SkipMeasure(meas)
	abs += sp.Tic()

	// drain the current tic so all meta frames enter the state list
	for sp.EvGet() != nil {
	}
	bpm, tpb, _ = sp.GetSign()
	usec24, _ = sp.GetTempo()
	sp.States.Empty()
	sp.Done()
	return abs, usec24, bpm, tpb
}

// SetTempo sets the tempo (beats per minute) at the given measure,
// extending the track with blank space if necessary and collapsing runs
// of identical tempo events after the insertion point.
func SetTempo(t *Track, measure, tempo uint) {
	sp := NewPtr(t)
	tic := sp.SkipMeasure(measure)
	if tic > 0 {
		sp.TicPut(tic)
	}
	slist := sp.States.Dup()

	// remove tempo events at the current tic
	for {
		st := sp.EvDel(slist)
		if st == nil {
			break
		}
		if st.Ev.Cmd != CmdTempo {
			sp.EvPut(st.Ev)
		}
	}

	// insert the new tempo, if it changes anything
	_, tpb, _ := sp.GetSign()
	usec24 := TempoToUSec24(tempo, tpb)
	old, _ := sp.GetTempo()
	if usec24 != old {
		sp.EvPut(Event{Cmd: CmdTempo, Val: usec24})
	}

	// move the rest of the track, skipping duplicate tempos
	for {
		delta := sp.TicDel(^uint(0), slist)
		sp.TicPut(delta)
		st := sp.EvDel(slist)
		if st == nil {
			break
		}
		if st.Ev.Cmd == CmdTempo {
			if st.Ev.Val == usec24 {
				continue
			}
			usec24 = st.Ev.Val
		}
		sp.EvPut(st.Ev)
	}
	slist.Done()
	sp.Done()
}

// TimeIns inserts amount measures of the given signature at the given
// measure, restoring the previous signature after the insertion if it
// differed.
func TimeIns(t *Track, measure, amount, bpm, tpb uint) {
	sp := NewPtr(t)
	delta := sp.SkipMeasure(measure)
	if delta > 0 {
		sp.TicPut(delta)
	}
	slist := sp.States.Dup()

	// append the new signature and the blank space
	saveBPM, saveTPB, _ := sp.GetSign()
	if bpm != saveBPM || tpb != saveTPB {
		sp.EvPut(Event{Cmd: CmdTimeSig, Num: uint16(bpm), Val: uint32(tpb)})
	}
	sp.TicPut(bpm * tpb * amount)

	// move the events of the current tic, skipping duplicate signature
	// changes; this restores the old signature if nothing else does
	for {
		st := sp.EvDel(slist)
		if st == nil {
			if bpm != saveBPM || tpb != saveTPB {
				sp.EvPut(Event{Cmd: CmdTimeSig, Num: uint16(saveBPM), Val: uint32(saveTPB)})
			}
			break
		}
		if st.Ev.Cmd == CmdTimeSig {
			if uint(st.Ev.Num) != bpm || uint(st.Ev.Val) != tpb {
				sp.EvPut(st.Ev)
			}
			break
		}
		sp.EvPut(st.Ev)
	}

	// move the rest of the track
	for {
		delta := sp.TicDel(^uint(0), slist)
		sp.TicPut(delta)
		st := sp.EvDel(slist)
		if st == nil {
			break
		}
		sp.EvPut(st.Ev)
	}
	slist.Done()
	sp.Done()
}

// TimeRm deletes amount measures starting at the given measure. Frames
// live at the cut are restored just past it, unless events there restore
// them already.
func TimeRm(t *Track, measure, amount uint) {
	// locate the region to delete
	sp := NewPtr(t)
	if residual := sp.SkipMeasure(measure); residual != 0 {
		// measure past the end of track, nothing to remove
		logger.Debug("measure past end of track", zap.Uint("measure", measure))
		sp.States.Empty()
		sp.Done()
		return
	}
	tic := sp.Tic()
	sp.SkipMeasure(amount)
	length := sp.Tic() - tic
	sp.States.Empty()
	sp.Done()

	logger.Debug("timerm", zap.Uint("tic", tic), zap.Uint("len", length))

	// go to the start position and tag all frames
	sp = NewPtr(t)
	sp.Skip(tic)
	slist := sp.States.Dup()
	for _, st := range slist.All() {
		st.Tag = 1
	}

	// remove everything during the region
	for {
		length -= sp.TicDel(length, slist)
		if length == 0 {
			break
		}
		if !sp.EvAvail() {
			break
		}
		st := sp.EvDel(slist)
		st.Tag = 0
	}

	// process the next tic: frames that restore themselves here don't
	// need to be restored by hand
	for sp.EvAvail() {
		st := sp.EvDel(slist)
		ost := sp.States.Lookup(st.Ev)
		if ost == nil || !ost.Eq(st.Ev) {
			sp.EvPut(st.Ev)
		}
		st.Tag = 1
	}

	// restore the untagged frames
	for _, st := range slist.All() {
		if st.Tag == 0 {
			ost := sp.States.Lookup(st.Ev)
			if ost == nil || !ost.Eq(st.Ev) {
				sp.EvPut(st.Ev)
			}
			st.Tag = 1
		}
	}

	// copy the rest of the track
	for {
		delta := sp.TicDel(^uint(0), slist)
		sp.TicPut(delta)
		if !sp.EvAvail() {
			break
		}
		st := sp.EvDel(slist)
		st.Tag = 1
		ost := sp.States.Lookup(st.Ev)
		if ost == nil || !ost.Eq(st.Ev) {
			sp.EvPut(st.Ev)
		}
	}
	slist.Done()
	sp.Done()
}

// ConfEv folds ev into a config track: a track of one-shot frames holding
// persistent setup. The frame's previous event, if any, is replaced, and
// the relative update order of all other frames is preserved.
func ConfEv(src *Track, ev Event) {
	if ev.Phase() != PhaseFirst|PhaseLast {
		panicf("confev: not a one-shot event, ignored", zap.Stringer("ev", ev))
		return
	}
	sp := NewPtr(src)
	slist := NewStateList()

	// delete the whole track, numbering each frame in update order
	tagmax := uint(0)
	for {
		sp.TicDel(^uint(0), slist)
		st := sp.EvDel(slist)
		if st == nil {
			break
		}
		st.Tag = tagmax
		tagmax++
	}

	// fold in the new event; its frame becomes the most recent
	st := slist.Update(ev)
	st.Tag = tagmax
	tagmax++

	// dump the frames back, oldest first, skipping values the rebuilt
	// state already has
	for tagmin := uint(0); tagmin < tagmax; {
		var best *State
		tag := tagmax
		for _, s := range slist.All() {
			if s.Tag >= tagmin && s.Tag < tag {
				best = s
				tag = s.Tag
			}
		}
		if best == nil {
			break
		}
		for _, rev := range best.restoreEvs() {
			cur := sp.States.Lookup(rev)
			if cur != nil && cur.Eq(rev) {
				continue
			}
			sp.EvPut(rev)
		}
		tagmin = tag + 1
	}
	slist.Done()
	sp.Done()
}
