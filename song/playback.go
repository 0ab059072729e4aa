package song

import (
	"time"

	"gitlab.com/gomidi/midi/writer"

	"github.com/jangler/seqed/seq"
)

// Player walks all tracks of a song in lockstep and writes their events
// to a MIDI output. The meta track drives the sleep intervals through its
// live tempo state; stopping mid-song cuts every sounding note so nothing
// is left hanging.
type Player struct {
	song     *Song
	out      writer.ChannelWriter
	realtime bool

	stop    chan struct{}
	stopped chan struct{}
}

// NewPlayer returns a player for the song. With realtime unset the song
// is written as fast as possible (for export-style runs).
func NewPlayer(s *Song, out writer.ChannelWriter, realtime bool) *Player {
	return &Player{
		song:     s,
		out:      out,
		realtime: realtime,
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// durationFromTics converts a tic count to wall time using the wire tempo
// unit (microseconds per 24 tics).
func durationFromTics(n uint, usec24 uint32) time.Duration {
	return time.Duration(uint64(n) * uint64(usec24) / 24 * uint64(time.Microsecond))
}

// Run plays the song to the end, or until Stop is called. It blocks; call
// it from its own goroutine when stopping matters.
func (p *Player) Run() error {
	defer close(p.stopped)

	mp := seq.NewPtr(p.song.Meta.Seq)
	cursors := make([]*seq.Ptr, len(p.song.Tracks))
	for i, t := range p.song.Tracks {
		cursors[i] = seq.NewPtr(t.Seq)
	}

	// play the config events first
	cp := seq.NewPtr(p.song.Config.Seq)
	for st := cp.EvGet(); st != nil; st = cp.EvGet() {
		if err := writeVoiceEvent(p.out, st.Ev); err != nil {
			return err
		}
	}

	for {
		// all events of the current tic: meta first so tempo changes
		// take effect before the following delay
		for mp.EvGet() != nil {
		}
		for _, sp := range cursors {
			for st := sp.EvGet(); st != nil; st = sp.EvGet() {
				if err := writeVoiceEvent(p.out, st.Ev); err != nil {
					p.cutNotes(cursors)
					return err
				}
			}
		}

		// distance to the next event on any track
		delta, eot := ^uint(0), true
		for _, sp := range append(cursors, mp) {
			if sp.EOT() {
				continue
			}
			eot = false
			if d := sp.NextDelta(); d < delta {
				delta = d
			}
		}
		if eot {
			return nil
		}

		if p.realtime {
			usec24, _ := mp.GetTempo()
			select {
			case <-p.stop:
				p.cutNotes(cursors)
				return nil
			case <-time.After(durationFromTics(delta, usec24)):
			}
		} else {
			select {
			case <-p.stop:
				p.cutNotes(cursors)
				return nil
			default:
			}
		}

		mp.TicSkip(delta)
		for _, sp := range cursors {
			sp.TicSkip(delta)
		}
	}
}

// Stop interrupts Run and waits until it returns.
func (p *Player) Stop() {
	close(p.stop)
	<-p.stopped
}

// cutNotes sends a note-off for every note still sounding at the cursors.
func (p *Player) cutNotes(cursors []*seq.Ptr) {
	for _, sp := range cursors {
		for _, st := range sp.States.All() {
			if st.Ev.IsNote() && st.Phase&seq.PhaseLast == 0 {
				p.out.SetChannel(st.Ev.Ch)
				writer.NoteOff(p.out, uint8(st.Ev.Num))
			}
		}
	}
}
