package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"gridseq/audio"
	"gridseq/clock"
	"gridseq/config"
	"gridseq/debug"
	"gridseq/midi"
	"gridseq/sequencer"
	"gridseq/surface"
	"gridseq/theme"
	"gridseq/tui"
)

func main() {
	configPath := flag.String("config", "", "config file (default ~/.config/gridseq/config.yaml)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Load()
	}
	return config.LoadFile(path)
}

func run(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logPath, err := cfg.LogPath()
	if err != nil {
		return err
	}
	if logPath != "" {
		if err := debug.Enable(logPath, cfg.Log.Level); err != nil {
			return err
		}
		defer debug.Disable()
	} else {
		debug.Disable()
	}

	var palette *theme.Palette
	if cfg.UI.Palette != "" {
		if palette, err = theme.LoadGPL(cfg.UI.Palette); err != nil {
			return err
		}
	}
	th := theme.New(palette)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp := clock.New(clock.WithLookahead(cfg.Lookahead))
	go tp.Run(ctx)

	sr := beep.SampleRate(cfg.Audio.SampleRate)
	engine := audio.NewEngine(sr)
	if err := speaker.Init(sr, sr.N(cfg.Audio.Buffer)); err != nil {
		return fmt.Errorf("audio output: %w", err)
	}
	defer speaker.Close()
	speaker.Play(engine)

	synths, err := synthBackend(cfg, engine)
	if err != nil {
		return err
	}

	tracks := sequencer.NewTracks(sequencer.Backends{Synths: synths, Samples: engine})
	defer tracks.Close()

	// failed declarations are listed in the UI
	declared, declErr := cfg.Declare()
	if declErr != nil {
		debug.Error("main", declErr, "track config")
	}
	if err := tracks.Reconcile(declared); err != nil {
		// failed tracks are listed in the UI
		debug.Error("main", err, "reconcile")
	}

	sess := sequencer.NewSession(tracks, sequencer.FromTransport(tp))
	defer sess.Close()
	sess.SetBPM(cfg.Tempo)

	var names []string
	for _, c := range cfg.AutoConnectControllers() {
		names = append(names, c.PortName)
	}
	deviceMgr := midi.NewDeviceManager(names...)
	go deviceMgr.Run(ctx)

	m := tui.NewModel(tracks, sess, deviceMgr, th).
		WithBeatSize(cfg.UI.ShowBeatCells).
		WithDeclareErrors(declErr)
	m.OnController = func(c midi.Controller) {
		go func() {
			if err := surface.New(c, tracks, sess, th).Run(ctx); err != nil && ctx.Err() == nil {
				debug.Error("surface", err, "%s", c.ID())
			}
		}()
	}

	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err = p.Run()
	return err
}

// synthBackend picks where synth tracks sound: the built-in engine or an
// external synth on a MIDI port.
func synthBackend(cfg *config.Config, engine *audio.Engine) (sequencer.SynthEngine, error) {
	if cfg.SynthOutput.Backend != config.BackendMIDI {
		return engine, nil
	}
	send, err := midi.NewOutputs().Sender(cfg.SynthOutput.PortName)
	if err != nil {
		return nil, err
	}
	synths, err := midi.NewSynths(send, cfg.SynthOutput.Channel)
	if err != nil {
		return nil, err
	}
	debug.Log("main", "synths on %s channel %d", cfg.SynthOutput.PortName, cfg.SynthOutput.Channel)
	return synths, nil
}
