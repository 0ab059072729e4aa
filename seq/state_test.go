package seq

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPhaseNotes(t *testing.T) {
	assert.Equal(t, PhaseFirst, noteOn(0, 60, 100).Phase())
	assert.Equal(t, PhaseLast, noteOff(0, 60).Phase())
	// a note-on with zero velocity is a note-off
	assert.Equal(t, PhaseLast, noteOn(0, 60, 0).Phase())
	kat := Event{Cmd: CmdKeyAft, Num: 60, Val: 30}
	assert.Equal(t, PhaseNext, kat.Phase())
}

func TestPhaseOneShots(t *testing.T) {
	assert.Equal(t, PhaseFirst|PhaseLast, ctl(0, 7, 100).Phase())
	assert.Equal(t, PhaseFirst|PhaseLast, prog(0, 5).Phase())
	assert.Equal(t, PhaseFirst|PhaseLast, tempo(125000).Phase())
	assert.Equal(t, PhaseFirst|PhaseLast, timesig(4, 96).Phase())
}

func TestPhaseFinePair(t *testing.T) {
	SetFineCtl(1, true)
	defer SetFineCtl(1, false)
	assert.Equal(t, PhaseFirst, ctl(0, 1, 10).Phase())
	assert.Equal(t, PhaseLast, ctl(0, 33, 20).Phase())
	// other controllers are unaffected
	assert.Equal(t, PhaseFirst|PhaseLast, ctl(0, 2, 10).Phase())
	assert.Equal(t, PhaseFirst|PhaseLast, ctl(0, 34, 10).Phase())
}

func TestFramePairIdentity(t *testing.T) {
	SetFineCtl(1, true)
	defer SetFineCtl(1, false)
	sl := NewStateList()
	st := sl.Update(ctl(0, 1, 10))
	assert.Equal(t, PhaseFirst, st.Phase)
	// the LSB terminates the MSB's frame
	st2 := sl.Update(ctl(0, 33, 20))
	assert.Same(t, st, st2)
	assert.Equal(t, PhaseLast, st.Phase)
}

func TestUpdateBogus(t *testing.T) {
	sl := NewStateList()
	st := sl.Update(noteOff(0, 60))
	assert.NotZero(t, st.Flags&StateBogus)
	assert.Equal(t, PhaseLast, st.Phase)

	// double note-off
	sl2 := NewStateList()
	sl2.Update(noteOn(0, 60, 100))
	sl2.Update(noteOff(0, 60))
	st = sl2.Update(noteOff(0, 60))
	assert.NotZero(t, st.Flags&StateBogus)
}

func TestUpdateNested(t *testing.T) {
	sl := NewStateList()
	st := sl.Update(noteOn(0, 60, 100))
	assert.Zero(t, st.Flags&StateNested)
	st = sl.Update(noteOn(0, 60, 90))
	assert.NotZero(t, st.Flags&StateNested)
	// the off terminates the frame and is not nested itself
	st = sl.Update(noteOff(0, 60))
	assert.Zero(t, st.Flags&StateNested)
	assert.Equal(t, PhaseLast, st.Phase)
}

func TestUpdateChanged(t *testing.T) {
	sl := NewStateList()
	st := sl.Update(ctl(0, 7, 10))
	assert.Zero(t, st.Flags&StateChanged)
	st = sl.Update(ctl(0, 7, 20))
	assert.NotZero(t, st.Flags&StateChanged)
	sl.Outdate()
	assert.Zero(t, st.Flags&StateChanged)
	st = sl.Update(ctl(0, 7, 20))
	assert.Zero(t, st.Flags&StateChanged)
}

func TestOutdate(t *testing.T) {
	sl := NewStateList()
	sl.Update(noteOn(0, 60, 100))
	sl.Update(ctl(0, 7, 64))
	sl.Update(noteOff(0, 60))

	// the closed note survives one outdate (still NEW), then goes away;
	// the controller state persists as value memory
	sl.Outdate()
	assert.NotNil(t, sl.Lookup(noteOff(0, 60)))
	sl.Outdate()
	assert.Nil(t, sl.Lookup(noteOff(0, 60)))
	assert.NotNil(t, sl.Lookup(ctl(0, 7, 0)))
}

func TestDup(t *testing.T) {
	sl := NewStateList()
	st := sl.Update(ctl(0, 7, 64))
	st.Tag = 7
	st.Tic = 99

	dup := sl.Dup()
	cp := dup.Lookup(ctl(0, 7, 0))
	assert.NotNil(t, cp)
	assert.Equal(t, st.Ev, cp.Ev)
	assert.Equal(t, st.Phase, cp.Phase)
	// tags, positions and per-window flags are not copied
	assert.Zero(t, cp.Tag)
	assert.Zero(t, cp.Tic)
	assert.Nil(t, cp.Pos)
	assert.Zero(t, cp.Flags&StateNew)
}

func TestCancelSynthesis(t *testing.T) {
	sl := NewStateList()

	st := sl.Update(ctl(0, 7, 42))
	assert.Equal(t, []Event{ctl(0, 7, 100)}, st.cancelEvs())

	st = sl.Update(Event{Cmd: CmdBend, Ch: 3, Val: 0x1000})
	assert.Equal(t, []Event{{Cmd: CmdBend, Ch: 3, Val: BendCenter}}, st.cancelEvs())

	st = sl.Update(Event{Cmd: CmdRPN, Ch: 1, Num: 0, Val: 2})
	assert.Equal(t, []Event{ctl(1, 101, 127), ctl(1, 100, 127)}, st.cancelEvs())

	st = sl.Update(Event{Cmd: CmdNRPN, Ch: 1, Num: 5, Val: 2})
	assert.Equal(t, []Event{ctl(1, 99, 127), ctl(1, 98, 127)}, st.cancelEvs())

	// frames without a neutral value synthesise nothing
	st = sl.Update(prog(0, 5))
	assert.Empty(t, st.cancelEvs())
	st = sl.Update(tempo(125000))
	assert.Empty(t, st.cancelEvs())
}

func TestRestoreSynthesis(t *testing.T) {
	sl := NewStateList()
	st := sl.Update(ctl(0, 7, 42))
	assert.Equal(t, []Event{ctl(0, 7, 42)}, st.restoreEvs())
	st = sl.Update(prog(0, 5))
	assert.Equal(t, []Event{prog(0, 5)}, st.restoreEvs())
	st = sl.Update(noteOn(0, 60, 100))
	assert.Empty(t, st.restoreEvs())
}

func TestCanSuspend(t *testing.T) {
	sl := NewStateList()
	st := sl.Update(noteOn(0, 60, 100))
	assert.False(t, st.canSuspend())
	st = sl.Update(ctl(0, 7, 42))
	assert.True(t, st.canSuspend())
	st = sl.Update(noteOff(0, 60))
	assert.False(t, st.canSuspend())
}
