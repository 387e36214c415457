// Command trackmix is the operator console: it loads tracks, drives the
// MIDI clock, timecode and cue triggers, and serves video surfaces over
// WebSocket.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os/signal"
	"slices"
	"strconv"
	"syscall"
	"time"

	"github.com/chzyer/readline"
	"github.com/leandrodaf/trackmix/internal/config"
	"github.com/leandrodaf/trackmix/internal/logger"
	"github.com/leandrodaf/trackmix/internal/sink"
	"github.com/leandrodaf/trackmix/internal/timing"
	"github.com/leandrodaf/trackmix/internal/trigger"
	"github.com/leandrodaf/trackmix/internal/videosync"
	"github.com/leandrodaf/trackmix/sdk/console"
	"github.com/leandrodaf/trackmix/sdk/contracts"
	"github.com/leandrodaf/trackmix/sdk/midi"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.Load()

	log := logger.NewZapLogger()
	level := contracts.ParseLogLevel(cfg.LogLevel)
	log.SetLevel(level)
	if cfg.LogFile != "" {
		// Before any Named child is taken, so every component follows.
		log.SetDestination(contracts.FileLog, cfg.LogFile)
	}
	logOpts := []contracts.Option{contracts.WithLogger(log), contracts.WithLogLevel(level)}

	for _, err := range multierr.Errors(cfg.Validate()) {
		log.Warn("Configuration corrected", log.Field().Error("error", err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	loop := timing.NewLoop()
	hub := videosync.NewHub(loop, log.Named("surface"))
	out := sinks{log: log}
	defer out.Close()

	opts := append(slices.Clone(logOpts),
		contracts.WithClock(loop),
		contracts.WithSurfaceFactory(hub),
		contracts.WithMediaPublisher(hub.Media()),
		contracts.WithSettleDelay(cfg.SettleDelay),
		contracts.WithSampleInterval(cfg.SampleInterval),
	)
	opts = append(opts, out.open(ctx, cfg, logOpts)...)

	c, err := console.NewConsole(opts...)
	if err != nil {
		log.Fatal("Failed to initialize console", log.Field().Error("error", err))
	}
	configure(c, cfg)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := c.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: routes(c, hub), ReadHeaderTimeout: 10 * time.Second}
	g.Go(func() error {
		log.Info("Surface hub listening", log.Field().String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		return srv.Shutdown(shutdownCtx)
	})

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "trackmix> ",
		AutoComplete:    completer(),
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		log.Fatal("Failed to open terminal", log.Field().Error("error", err))
	}
	sh := &shell{console: c, out: rl.Stdout(), midi: out.midi, udp: out.udp}
	g.Go(func() error {
		defer cancel()
		return sh.run(gctx, rl)
	})
	g.Go(func() error {
		<-gctx.Done()
		return rl.Close()
	})

	if err := g.Wait(); err != nil {
		log.Error("Console stopped", log.Field().Error("error", err))
	}
	// The loop has stopped; nothing else touches the console now.
	c.Close()
	log.Info("Bye")
}

// configure applies the startup configuration. It runs before the loop starts.
func configure(c *console.Console, cfg config.Config) {
	log := c.Logger()

	c.SetLoop(cfg.Loop)

	clk := c.Clock()
	clk.SetBPM(cfg.BPM)
	clk.SetBeatsPerBar(cfg.BeatsPerBar)
	clk.SetStartOffset(cfg.StartOffset)
	clk.SetEnabled(cfg.MIDIEnabled)
	clk.OnClick(func(inBar int) {
		log.Debug("Click", log.Field().Int("beat", inBar), log.Field().Bool("accent", inBar == 1))
	})

	tc := c.Timecode()
	if err := tc.SetFPS(cfg.FPS); err != nil {
		log.Warn("Timecode rate rejected", log.Field().Error("error", err))
	}
	tc.SetEnabled(cfg.ArtNetEnabled)

	if cfg.OSCEnabled && cfg.OSCTime >= 0 {
		cue := trigger.Config{
			Name:      "osc",
			Time:      cfg.OSCTime,
			Sink:      "osc",
			Address:   cfg.OSCAddress,
			DataType:  contracts.TriggerDataType(cfg.OSCType),
			OnRestart: cfg.OSCOnRestart,
		}
		if cue.DataType == contracts.TriggerString {
			cue.Text = cfg.OSCValue
		} else if v, err := strconv.ParseFloat(cfg.OSCValue, 64); err == nil {
			cue.Number = v
		} else {
			log.Warn("OSC value is not a number; using default",
				log.Field().String("value", cfg.OSCValue), log.Field().Float64("default", trigger.DefaultValue))
			cue.Number = trigger.DefaultValue
		}
		addCue(c, cue)
	}
	if cfg.UDPEnabled && cfg.UDPTime >= 0 {
		addCue(c, trigger.Config{
			Name:      "udp",
			Time:      cfg.UDPTime,
			Sink:      "udp",
			DataType:  contracts.TriggerString,
			Text:      cfg.UDPMessage,
			OnRestart: cfg.UDPOnRestart,
		})
	}
}

func addCue(c *console.Console, cue trigger.Config) {
	if _, err := c.Triggers().Add(cue); err != nil {
		log := c.Logger()
		log.Warn("Cue not registered", log.Field().String("name", cue.Name), log.Field().Error("error", err))
	}
}

func routes(c *console.Console, hub *videosync.Hub) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, r *http.Request) {
		var st console.Status
		if err := c.Do(r.Context(), func() { st = c.Status() }); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(st)
	})
	mux.Handle("/", hub)
	return mux
}

// sinks owns every outbound protocol endpoint.
type sinks struct {
	log     contracts.Logger
	midi    contracts.MIDIOutput
	udp     *sink.UDPText
	closers []func() error
}

// open creates the configured endpoints and returns the console options
// routing to them. Endpoints that fail to open are logged and skipped.
func (s *sinks) open(ctx context.Context, cfg config.Config, logOpts []contracts.Option) []contracts.Option {
	trace := sink.Log{Logger: s.log.Named("out")}
	timecode := &sink.Fanout{Timecode: []contracts.TimecodeSink{trace}}
	transport := &sink.Fanout{Transport: []contracts.TransportSink{trace}}
	opts := []contracts.Option{
		contracts.WithTimecodeSink(timecode),
		contracts.WithTransportSink(transport),
		contracts.WithTriggerSink("log", trace),
	}

	if cfg.ArtNetEnabled {
		an, err := sink.NewArtNet(ctx, cfg.ArtNetIP, cfg.ArtNetPort)
		if err != nil {
			s.log.Warn("Art-Net timecode unavailable", s.log.Field().Error("error", err))
		} else {
			timecode.Timecode = append(timecode.Timecode, an)
			s.closers = append(s.closers, an.Close)
			s.log.Info("Art-Net timecode target", s.log.Field().String("target", an.Target()))
		}
	}
	if cfg.OSCEnabled {
		o, err := sink.NewOSC(ctx, cfg.OSCIP, cfg.OSCPort)
		if err != nil {
			s.log.Warn("OSC trigger unavailable", s.log.Field().Error("error", err))
		} else {
			opts = append(opts, contracts.WithTriggerSink("osc", &sink.Fanout{Triggers: []contracts.TriggerSink{o, trace}}))
			s.closers = append(s.closers, o.Close)
		}
	}
	if cfg.UDPEnabled {
		u, err := sink.NewUDPText(ctx, cfg.UDPIP, cfg.UDPPort, cfg.UDPMessage)
		if err != nil {
			s.log.Warn("UDP trigger unavailable", s.log.Field().Error("error", err))
		} else {
			s.udp = u
			opts = append(opts, contracts.WithTriggerSink("udp", &sink.Fanout{Triggers: []contracts.TriggerSink{u, trace}}))
			s.closers = append(s.closers, u.Close)
		}
	}

	out, err := midi.NewMIDIOutput(append(slices.Clone(logOpts), contracts.WithLogger(s.log.Named("midi")))...)
	switch {
	case errors.Is(err, midi.ErrUnsupportedOS):
		s.log.Warn("No MIDI driver for this platform; clock bytes are only logged")
		return opts
	case err != nil:
		s.log.Warn("MIDI output unavailable", s.log.Field().Error("error", err))
		return opts
	}
	s.midi = out
	s.closers = append(s.closers, out.Stop)
	if err := out.SelectDevice(cfg.MIDIDevice); err != nil {
		s.log.Warn("MIDI destination not opened", s.log.Field().Int("device", cfg.MIDIDevice), s.log.Field().Error("error", err))
	}
	transport.Transport = append(transport.Transport, out)
	return opts
}

func (s *sinks) Close() {
	var errs error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = multierr.Append(errs, s.closers[i]())
	}
	if errs != nil {
		s.log.Warn("Closing outputs", s.log.Field().Error("error", errs))
	}
}
