package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/pflag"
	"gitlab.com/gomidi/midi/writer"
	driver "gitlab.com/gomidi/rtmididrv"
	"go.uber.org/zap"

	"github.com/jangler/seqed/seq"
	"github.com/jangler/seqed/song"
)

var logger *log.Logger

const usage = `usage: seqed [flags] <command> [args]

commands:
  ports                                     list MIDI output ports
  new <file>                                create an empty song
  info <file>                               print song information
  dump <file>                               dump the song structure
  check <file>                              repair inconsistent tracks
  quantize <file> <track> <meas> <amount>   quantize a range of measures
  transpose <file> <track> <meas> <amount> <halftones>
  merge <file> <dst-track> <src-track>      merge one track into another
  settempo <file> <meas> <bpm>              set the tempo at a measure
  timeins <file> <meas> <amount>            insert measures
  timerm <file> <meas> <amount>             remove measures
  export <file> <out.mid>                   export a standard MIDI file
  play <file>                               play through a MIDI output
`

func main() {
	logger = log.New(os.Stdout, "", log.Ldate|log.Ltime)

	var (
		verbose bool
		quant   uint
		rate    uint
		offset  uint
		beats   uint
		tpb     uint
		port    int
	)
	pflag.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	pflag.UintVar(&quant, "quant", 0, "quantization step in tics (0 = one beat)")
	pflag.UintVar(&rate, "rate", 100, "quantization strength in percent")
	pflag.UintVar(&offset, "offset", 0, "quantization grid offset in tics")
	pflag.UintVar(&beats, "beats", seq.DefaultBPM, "beats per measure for timeins")
	pflag.UintVar(&tpb, "tpb", seq.DefaultTPB, "tics per beat for timeins")
	pflag.IntVarP(&port, "port", "p", -1, "MIDI output port number")
	pflag.Parse()

	if verbose {
		zl, err := zap.NewDevelopment()
		if err != nil {
			logger.Fatalf("failed to build logger: %v", err)
		}
		defer zl.Sync()
		seq.SetLogger(zl)
	}

	cfg, err := LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	cfg.Apply()

	args := pflag.Args()
	if len(args) == 0 {
		fmt.Print(usage)
		os.Exit(2)
	}

	cmd, args := args[0], args[1:]
	switch cmd {
	case "ports":
		listPorts()
	case "new":
		s := song.New()
		s.TicsPerBeat = cfg.TicsPerBeat
		mustSave(s, arg(args, 0))
	case "info":
		printInfo(mustLoad(arg(args, 0)))
	case "dump":
		spew.Dump(mustLoad(arg(args, 0)))
	case "check":
		s := mustLoad(arg(args, 0))
		s.CheckAll()
		mustSave(s, arg(args, 0))
	case "quantize":
		s := mustLoad(arg(args, 0))
		t := mustTrack(s, arg(args, 1))
		start, length := measureRange(s, argUint(args, 2), argUint(args, 3))
		q := quant
		if q == 0 {
			q = s.TicsPerBeat
		}
		seq.Quantize(t.Seq, start, length, offset, q, rate)
		mustSave(s, arg(args, 0))
	case "transpose":
		s := mustLoad(arg(args, 0))
		t := mustTrack(s, arg(args, 1))
		start, length := measureRange(s, argUint(args, 2), argUint(args, 3))
		half, err := strconv.Atoi(arg(args, 4))
		if err != nil {
			logger.Fatalf("bad halftone count: %v", err)
		}
		seq.Transpose(t.Seq, start, length, half)
		mustSave(s, arg(args, 0))
	case "merge":
		s := mustLoad(arg(args, 0))
		dst := mustTrack(s, arg(args, 1))
		src := mustTrack(s, arg(args, 2))
		seq.Merge(dst.Seq, src.Seq)
		for i, t := range s.Tracks {
			if t == src {
				s.Tracks = append(s.Tracks[:i], s.Tracks[i+1:]...)
				break
			}
		}
		mustSave(s, arg(args, 0))
	case "settempo":
		s := mustLoad(arg(args, 0))
		seq.SetTempo(s.Meta.Seq, argUint(args, 1), argUint(args, 2))
		mustSave(s, arg(args, 0))
	case "timeins":
		s := mustLoad(arg(args, 0))
		seq.TimeIns(s.Meta.Seq, argUint(args, 1), argUint(args, 2), beats, tpb)
		mustSave(s, arg(args, 0))
	case "timerm":
		s := mustLoad(arg(args, 0))
		seq.TimeRm(s.Meta.Seq, argUint(args, 1), argUint(args, 2))
		mustSave(s, arg(args, 0))
	case "export":
		s := mustLoad(arg(args, 0))
		if err := s.ExportSMF(arg(args, 1)); err != nil {
			logger.Fatalf("export failed: %v", err)
		}
	case "play":
		play(mustLoad(arg(args, 0)), cfg, port)
	default:
		logger.Fatalf("unknown command %q", cmd)
	}
}

func arg(args []string, i int) string {
	if i >= len(args) {
		fmt.Print(usage)
		os.Exit(2)
	}
	return args[i]
}

func argUint(args []string, i int) uint {
	n, err := strconv.ParseUint(arg(args, i), 10, 32)
	if err != nil {
		logger.Fatalf("bad number %q: %v", args[i], err)
	}
	return uint(n)
}

func mustLoad(path string) *song.Song {
	s, err := song.Load(path)
	if err != nil {
		logger.Fatalf("failed to load %s: %v", path, err)
	}
	return s
}

func mustSave(s *song.Song, path string) {
	if err := s.Save(path); err != nil {
		logger.Fatalf("failed to save %s: %v", path, err)
	}
}

func mustTrack(s *song.Song, name string) *song.Track {
	if t := s.Track(name); t != nil {
		return t
	}
	logger.Fatalf("no track named %q", name)
	return nil
}

// measureRange converts a measure range to a tic range using the meta
// track.
func measureRange(s *song.Song, meas, amount uint) (start, length uint) {
	start = seq.FindMeasure(s.Meta.Seq, meas)
	length = seq.FindMeasure(s.Meta.Seq, meas+amount) - start
	return start, length
}

func printInfo(s *song.Song) {
	fmt.Printf("title: %s\n", s.Title)
	fmt.Printf("tics per beat: %d\n", s.TicsPerBeat)
	fmt.Printf("length: %d tics\n", s.Length())
	_, usec24, bpm, tpb := seq.TimeInfo(s.Meta.Seq, 0)
	fmt.Printf("signature: %d/%d tics, tempo: %.1f bpm\n",
		bpm, tpb, song.BPMFromUSec24(usec24, tpb))
	for _, t := range s.Tracks {
		fmt.Printf("track %-12s ch %2d  %5d events  %6d tics\n",
			t.Name, t.Channel, t.Seq.NumEv(), t.Seq.NumTics())
	}
}

func listPorts() {
	drv, err := driver.New()
	if err != nil {
		logger.Fatalf("failed to open MIDI driver: %v", err)
	}
	defer drv.Close()
	outs, err := drv.Outs()
	if err != nil {
		logger.Fatalf("failed to list outputs: %v", err)
	}
	for _, p := range outs {
		fmt.Printf("[%v] %s\n", p.Number(), p)
	}
}

func play(s *song.Song, cfg *Config, port int) {
	drv, err := driver.New()
	if err != nil {
		logger.Fatalf("failed to open MIDI driver: %v", err)
	}
	defer drv.Close()
	outs, err := drv.Outs()
	if err != nil {
		logger.Fatalf("failed to list outputs: %v", err)
	}
	if len(outs) == 0 {
		logger.Fatalf("no MIDI output ports")
	}
	out := outs[0]
	if port >= 0 {
		if port >= len(outs) {
			logger.Fatalf("port %d out of range [0, %d]", port, len(outs)-1)
		}
		out = outs[port]
	} else if cfg.PortName != "" {
		for _, o := range outs {
			if o.String() == cfg.PortName {
				out = o
				break
			}
		}
	}
	if err := out.Open(); err != nil {
		logger.Fatalf("failed to open port: %v", err)
	}
	defer out.Close()

	p := song.NewPlayer(s, writer.New(out), true)
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	go func() {
		<-sig
		p.Stop()
	}()
	logger.Printf("playing on [%v] %s", out.Number(), out)
	if err := p.Run(); err != nil {
		logger.Fatalf("playback error: %v", err)
	}
}
