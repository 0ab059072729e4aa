// Package song ties sequencer tracks into savable songs, with standard
// MIDI file export and realtime playback.
package song

import (
	"compress/zlib"
	"encoding/json"
	"io"
	"os"

	"github.com/jangler/seqed/seq"
)

// fields in these types are exported to expose them to the JSON encoder

// Song is a set of voice tracks plus the meta track holding tempo and
// time signature frames and the config track holding persistent one-shot
// setup (controller values, program selections).
type Song struct {
	Title       string `json:",omitempty"`
	TicsPerBeat uint
	Meta        *Track
	Config      *Track
	Tracks      []*Track
}

// New returns a song with a single empty voice track.
func New() *Song {
	return &Song{
		TicsPerBeat: seq.DefaultTPB,
		Meta:        NewTrack("meta", 0),
		Config:      NewTrack("config", 0),
		Tracks:      []*Track{NewTrack("trk0", 0)},
	}
}

// Read decodes song data; if successful, the current song data is
// replaced.
func (s *Song) Read(r io.Reader) error {
	comp, err := zlib.NewReader(r)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(comp)
	newSong := &Song{}
	if err := dec.Decode(newSong); err != nil {
		return err
	}
	if err := comp.Close(); err != nil {
		return err
	}
	*s = *newSong
	if s.TicsPerBeat == 0 {
		s.TicsPerBeat = seq.DefaultTPB
	}
	if s.Meta == nil {
		s.Meta = NewTrack("meta", 0)
	}
	if s.Config == nil {
		s.Config = NewTrack("config", 0)
	}
	return nil
}

// Write encodes the song data.
func (s *Song) Write(w io.Writer) error {
	comp := zlib.NewWriter(w)
	enc := json.NewEncoder(comp)
	if err := enc.Encode(s); err != nil {
		return err
	}
	return comp.Close()
}

// Load reads a song from the file at path.
func Load(path string) (*Song, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	s := &Song{}
	if err := s.Read(f); err != nil {
		return nil, err
	}
	return s, nil
}

// Save writes the song to the file at path.
func (s *Song) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := s.Write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Track is a named sequencer track.
type Track struct {
	Name    string `json:",omitempty"`
	Channel uint8  `json:",omitempty"`
	Seq     *seq.Track
}

// NewTrack returns an empty named track.
func NewTrack(name string, channel uint8) *Track {
	return &Track{Name: name, Channel: channel, Seq: seq.NewTrack()}
}

// TrackEvent is the serialized form of one track cell.
type TrackEvent struct {
	Delta uint   `json:"delta"`
	Cmd   uint8  `json:"cmd"`
	Dev   uint8  `json:"dev,omitempty"`
	Ch    uint8  `json:"ch,omitempty"`
	Num   uint16 `json:"num,omitempty"`
	Val   uint32 `json:"val,omitempty"`
}

type trackJSON struct {
	Name    string       `json:",omitempty"`
	Channel uint8        `json:",omitempty"`
	Events  []TrackEvent `json:",omitempty"`
	Rest    uint         `json:",omitempty"` // trailing blank tics
}

// MarshalJSON serializes the track as a list of (delta, event) pairs.
func (t *Track) MarshalJSON() ([]byte, error) {
	tj := trackJSON{Name: t.Name, Channel: t.Channel}
	sp := seq.NewPtr(t.Seq)
	delta := uint(0)
	for {
		if st := sp.EvGet(); st != nil {
			ev := st.Ev
			tj.Events = append(tj.Events, TrackEvent{
				Delta: delta,
				Cmd:   uint8(ev.Cmd),
				Dev:   ev.Dev,
				Ch:    ev.Ch,
				Num:   ev.Num,
				Val:   ev.Val,
			})
			delta = 0
			continue
		}
		n := sp.TicSkip(^uint(0))
		if n == 0 {
			break
		}
		delta += n
	}
	tj.Rest = delta
	return json.Marshal(tj)
}

// UnmarshalJSON rebuilds the track through a cursor, so loaded data goes
// through the same consistency machinery as live edits.
func (t *Track) UnmarshalJSON(data []byte) error {
	var tj trackJSON
	if err := json.Unmarshal(data, &tj); err != nil {
		return err
	}
	t.Name, t.Channel = tj.Name, tj.Channel
	t.Seq = seq.NewTrack()
	sp := seq.NewPtr(t.Seq)
	for _, te := range tj.Events {
		sp.TicPut(te.Delta)
		sp.EvPut(seq.Event{
			Cmd: seq.Cmd(te.Cmd),
			Dev: te.Dev,
			Ch:  te.Ch,
			Num: te.Num,
			Val: te.Val,
		})
	}
	sp.TicPut(tj.Rest)
	return nil
}

// CheckAll repairs inconsistencies on every voice track.
func (s *Song) CheckAll() {
	for _, t := range s.Tracks {
		seq.Check(t.Seq)
	}
}

// Track returns the voice track with the given name, or nil.
func (s *Song) Track(name string) *Track {
	for _, t := range s.Tracks {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// Length returns the length in tics of the longest track, the meta track
// included.
func (s *Song) Length() uint {
	max := s.Meta.Seq.NumTics()
	for _, t := range s.Tracks {
		if n := t.Seq.NumTics(); n > max {
			max = n
		}
	}
	return max
}
