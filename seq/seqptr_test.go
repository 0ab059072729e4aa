package seq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvGetAdvances(t *testing.T) {
	trk := buildTrack(
		tev{0, ctl(0, 7, 1)},
		tev{0, ctl(0, 10, 2)},
		tev{10, ctl(0, 7, 3)},
	)
	sp := NewPtr(trk)
	require.True(t, sp.EvAvail())
	st := sp.EvGet()
	require.NotNil(t, st)
	assert.Equal(t, ctl(0, 7, 1), st.Ev)
	st = sp.EvGet()
	require.NotNil(t, st)
	assert.Equal(t, ctl(0, 10, 2), st.Ev)
	// no more events in this tic
	assert.Nil(t, sp.EvGet())
	assert.Equal(t, uint(10), sp.TicSkip(^uint(0)))
	st = sp.EvGet()
	require.NotNil(t, st)
	assert.Equal(t, ctl(0, 7, 3), st.Ev)
	assert.Equal(t, uint(10), sp.Tic())
	assert.True(t, sp.EOT())
}

func TestEvPutAtEnd(t *testing.T) {
	trk := NewTrack()
	sp := NewPtr(trk)
	sp.TicPut(100)
	st := sp.EvPut(noteOn(0, 60, 100))
	require.NotNil(t, st)
	assert.Equal(t, PhaseFirst, st.Phase)
	sp.TicPut(380)
	sp.EvPut(noteOff(0, 60))
	assert.Equal(t, []tev{
		{100, noteOn(0, 60, 100)},
		{480, noteOff(0, 60)},
	}, events(trk))
	assert.Equal(t, uint(480), trk.NumTics())
}

func TestEvDelTransfersDelta(t *testing.T) {
	trk := buildTrack(
		tev{10, ctl(0, 7, 1)},
		tev{30, ctl(0, 7, 2)},
	)
	sp := NewPtr(trk)
	sp.TicSkip(10)
	st := sp.EvDel(nil)
	require.Nil(t, st) // no erase list given
	assert.Equal(t, []tev{{30, ctl(0, 7, 2)}}, events(trk))
	assert.Equal(t, uint(30), trk.NumTics())
	// the cursor did not move in time
	assert.Equal(t, uint(10), sp.Tic())
}

func TestTicDelPut(t *testing.T) {
	trk := buildTrack(tev{100, ctl(0, 7, 1)})
	sp := NewPtr(trk)
	assert.Equal(t, uint(40), sp.TicDel(40, nil))
	assert.Equal(t, uint(60), trk.NumTics())
	sp.TicPut(40)
	assert.Equal(t, uint(100), trk.NumTics())
	assert.Equal(t, uint(40), sp.Tic())
}

func TestSkipResidual(t *testing.T) {
	trk := buildTrack(tev{100, ctl(0, 7, 1)})
	sp := NewPtr(trk)
	assert.Equal(t, uint(0), sp.Skip(50))
	assert.Equal(t, uint(150), sp.Skip(200))
	assert.True(t, sp.EOT())
}

func TestSeekExtends(t *testing.T) {
	trk := NewTrack()
	sp := NewPtr(trk)
	sp.Seek(250)
	assert.Equal(t, uint(250), sp.Tic())
	assert.Equal(t, uint(250), trk.NumTics())
}

func TestRmPrevErasesFrame(t *testing.T) {
	trk := buildTrack(
		tev{0, noteOn(0, 60, 100)},
		tev{50, Event{Cmd: CmdKeyAft, Num: 60, Val: 30}},
		tev{100, noteOff(0, 60)},
		tev{100, ctl(0, 7, 64)},
	)
	sp := NewPtr(trk)
	sp.Skip(100) // events at tic 100 not yet read
	st := sp.States.Lookup(noteOn(0, 60, 0))
	require.NotNil(t, st)
	assert.Nil(t, sp.RmPrev(st))
	assert.Nil(t, sp.States.Lookup(noteOn(0, 60, 0)))
	assert.Equal(t, []tev{
		{100, noteOff(0, 60)},
		{100, ctl(0, 7, 64)},
	}, events(trk))
	// the cursor still reads what follows
	got := sp.EvGet()
	require.NotNil(t, got)
	assert.Equal(t, noteOff(0, 60), got.Ev)
}

func TestRmLastDropsSingleEventFrame(t *testing.T) {
	trk := buildTrack(
		tev{0, ctl(0, 7, 10)},
		tev{50, ctl(0, 7, 20)},
	)
	sp := NewPtr(trk)
	sp.Seek(60)
	st := sp.States.Lookup(ctl(0, 7, 0))
	require.NotNil(t, st)
	// for one-shot frames the state tracks the latest event only, so
	// erasing it drops the state
	assert.Nil(t, sp.RmLast(st))
	assert.Nil(t, sp.States.Lookup(ctl(0, 7, 0)))
	assert.Equal(t, []tev{{0, ctl(0, 7, 10)}}, events(trk))
	assert.Equal(t, uint(60), sp.Tic())
}

func TestRmLastKeepsNoteFrame(t *testing.T) {
	trk := buildTrack(
		tev{0, noteOn(0, 60, 100)},
		tev{50, Event{Cmd: CmdKeyAft, Num: 60, Val: 30}},
	)
	sp := NewPtr(trk)
	sp.Skip(60)
	st := sp.States.Lookup(noteOn(0, 60, 0))
	require.NotNil(t, st)
	st = sp.RmLast(st)
	require.NotNil(t, st)
	assert.Equal(t, noteOn(0, 60, 100), st.Ev)
	assert.Equal(t, PhaseFirst, st.Phase)
	assert.Equal(t, []tev{{0, noteOn(0, 60, 100)}}, events(trk))
}

func TestCancelRestoreController(t *testing.T) {
	trk := buildTrack(tev{0, ctl(0, 7, 42)})
	sp := NewPtr(trk)
	sp.Seek(10)
	// take the state from a copy: the events put by Cancel update the
	// cursor's own list
	st := sp.States.Dup().Lookup(ctl(0, 7, 0))
	require.NotNil(t, st)
	assert.True(t, sp.Cancel(st))
	assert.True(t, sp.Restore(st))
	assert.Equal(t, []tev{
		{0, ctl(0, 7, 42)},
		{10, ctl(0, 7, 100)}, // default value
		{10, ctl(0, 7, 42)},
	}, events(trk))
}

func TestCancelNoteFails(t *testing.T) {
	trk := buildTrack(tev{0, noteOn(0, 60, 100)})
	sp := NewPtr(trk)
	sp.Seek(10)
	st := sp.States.Lookup(noteOn(0, 60, 0))
	require.NotNil(t, st)
	assert.False(t, sp.Cancel(st))
	assert.False(t, sp.Restore(st))
	assert.Equal(t, 1, trk.NumEv())
}

func TestGetSignAndTempo(t *testing.T) {
	trk := buildTrack(
		tev{0, timesig(3, 120)},
		tev{0, tempo(250000)},
	)
	sp := NewPtr(trk)
	// defaults before anything is read
	bpm, tpb, st := sp.GetSign()
	assert.Equal(t, uint(DefaultBPM), bpm)
	assert.Equal(t, uint(DefaultTPB), tpb)
	assert.Nil(t, st)
	for sp.EvGet() != nil {
	}
	bpm, tpb, st = sp.GetSign()
	assert.Equal(t, uint(3), bpm)
	assert.Equal(t, uint(120), tpb)
	assert.NotNil(t, st)
	usec24, st := sp.GetTempo()
	assert.Equal(t, uint32(250000), usec24)
	assert.NotNil(t, st)
}

func TestSkipMeasure(t *testing.T) {
	trk := buildTrack(tev{0, timesig(4, 120)})
	sp := NewPtr(trk)
	sp.Seek(4 * 4 * 120) // make the track long enough
	sp = NewPtr(trk)
	assert.Equal(t, uint(0), sp.SkipMeasure(2))
	assert.Equal(t, uint(960), sp.Tic())
}

func TestStateListFollowsCursor(t *testing.T) {
	trk := buildTrack(
		tev{0, ctl(0, 7, 10)},
		tev{0, noteOn(0, 60, 100)},
		tev{100, noteOff(0, 60)},
		tev{200, noteOn(0, 64, 90)},
	)
	// extend the track through the cursor
	sp := NewPtr(trk)
	sp.Seek(400)
	sp.EvPut(noteOff(0, 64))
	sp.TicPut(10)
	sp.EvPut(ctl(0, 7, 20))

	// a fresh cursor walked to the same position sees the same state
	sp2 := NewPtr(trk)
	assert.Equal(t, uint(0), sp2.Skip(sp.Tic()))
	for sp2.EvGet() != nil {
	}
	assert.True(t, statesEqual(sp.States, sp2.States))
}
