package song

import (
	"gitlab.com/gomidi/midi/smf"
	"gitlab.com/gomidi/midi/writer"

	"github.com/jangler/seqed/seq"
)

// BPMFromUSec24 converts the wire tempo unit back to beats per minute at
// the given resolution.
func BPMFromUSec24(usec24 uint32, tpb uint) float64 {
	return 24.0 * 60000000.0 / (float64(usec24) * float64(tpb))
}

// ExportSMF exports the song as a type-1 standard MIDI file: the meta
// track first, then one SMF track per voice track. The config track's
// events are emitted at the start of the first voice track.
func (s *Song) ExportSMF(path string) error {
	ntrk := uint16(1 + len(s.Tracks))
	return writer.WriteSMF(path, ntrk, func(wr *writer.SMF) error {
		if err := s.writeMetaTrack(wr); err != nil {
			return err
		}
		// the writer reports the end of the last track with ErrFinished
		if err := writer.EndOfTrack(wr); err != nil && err != smf.ErrFinished {
			return err
		}
		for i, t := range s.Tracks {
			if i == 0 {
				if err := s.writeTrackEvents(wr, s.Config.Seq); err != nil {
					return err
				}
			}
			if err := s.writeTrackEvents(wr, t.Seq); err != nil {
				return err
			}
			if err := writer.EndOfTrack(wr); err != nil && err != smf.ErrFinished {
				return err
			}
		}
		return nil
	})
}

func (s *Song) writeMetaTrack(wr *writer.SMF) error {
	sp := seq.NewPtr(s.Meta.Seq)
	delta := uint(0)
	for {
		if st := sp.EvGet(); st != nil {
			wr.SetDelta(uint32(delta))
			delta = 0
			switch st.Ev.Cmd {
			case seq.CmdTempo:
				if err := writer.TempoBPM(wr, BPMFromUSec24(st.Ev.Val, s.TicsPerBeat)); err != nil {
					return err
				}
			case seq.CmdTimeSig:
				if err := writer.Meter(wr, uint8(st.Ev.Num), 4); err != nil {
					return err
				}
			}
			continue
		}
		n := sp.TicSkip(^uint(0))
		if n == 0 {
			return nil
		}
		delta += n
	}
}

func (s *Song) writeTrackEvents(wr *writer.SMF, t *seq.Track) error {
	sp := seq.NewPtr(t)
	delta := uint(0)
	for {
		if st := sp.EvGet(); st != nil {
			if !st.Ev.IsVoice() {
				continue
			}
			wr.SetDelta(uint32(delta))
			delta = 0
			if err := writeVoiceEvent(wr, st.Ev); err != nil {
				return err
			}
			continue
		}
		n := sp.TicSkip(^uint(0))
		if n == 0 {
			return nil
		}
		delta += n
	}
}

// writeVoiceEvent lowers one channel voice event onto a writer. 14-bit
// controllers and NRPNs become controller pairs; RPNs use the writer's
// RPN helper.
func writeVoiceEvent(wr writer.ChannelWriter, ev seq.Event) error {
	wr.SetChannel(ev.Ch)
	switch ev.Cmd {
	case seq.CmdNoteOn:
		return writer.NoteOn(wr, uint8(ev.Num), uint8(ev.Val))
	case seq.CmdNoteOff:
		return writer.NoteOff(wr, uint8(ev.Num))
	case seq.CmdKeyAft:
		return writer.PolyAftertouch(wr, uint8(ev.Num), uint8(ev.Val))
	case seq.CmdCtl:
		return writer.ControlChange(wr, uint8(ev.Num), uint8(ev.Val))
	case seq.CmdProg:
		return writer.ProgramChange(wr, uint8(ev.Val))
	case seq.CmdChanAft:
		return writer.Aftertouch(wr, uint8(ev.Val))
	case seq.CmdBend:
		return writer.Pitchbend(wr, int16(int32(ev.Val)-seq.BendCenter))
	case seq.CmdXCtl:
		if err := writer.ControlChange(wr, uint8(ev.Num), uint8(ev.Val>>7)); err != nil {
			return err
		}
		return writer.ControlChange(wr, uint8(ev.Num)+32, uint8(ev.Val&0x7f))
	case seq.CmdRPN:
		return writer.RPN(wr, uint8(ev.Num>>7), uint8(ev.Num&0x7f),
			uint8(ev.Val>>7), uint8(ev.Val&0x7f))
	case seq.CmdNRPN:
		for _, cc := range [][2]uint8{
			{99, uint8(ev.Num >> 7)},
			{98, uint8(ev.Num & 0x7f)},
			{6, uint8(ev.Val >> 7)},
			{38, uint8(ev.Val & 0x7f)},
		} {
			if err := writer.ControlChange(wr, cc[0], cc[1]); err != nil {
				return err
			}
		}
	}
	return nil
}
