package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/leandrodaf/trackmix/internal/router"
	"github.com/leandrodaf/trackmix/internal/sink"
	"github.com/leandrodaf/trackmix/internal/trigger"
	"github.com/leandrodaf/trackmix/sdk/console"
	"github.com/leandrodaf/trackmix/sdk/contracts"
)

const help = `load <slot> <path> [seconds]     load a file; seconds is required unless it is a WAV
unload <slot>
play                             toggle play/pause for every track
restart                          rewind every track and resume together
reset                            stop every track at 0
loop on|off
seek <seconds>
channel <slot> <mono|left|right> <n>
device <slot> <device id>
gain <slot> <mono|left|right> <db> [mute]
master <db> [mute]
bpm <value>
midi on|off|start|stop|devices|select <n>|offset <s>|beats <n>
timecode on|off|fps <rate>
trigger add <sink> <seconds> [float|integer|string] [value] [address]
trigger rm <id> | fire <id> [stop] | list | restart <id> on|off
udp <message>                    set the plain UDP trigger text
status
devices
quit`

var errUsage = fmt.Errorf("%w: usage", contracts.ErrValidation)

// shell runs operator commands on the console loop.
type shell struct {
	console *console.Console
	out     io.Writer
	midi    contracts.MIDIOutput // nil when no driver is available
	udp     *sink.UDPText        // nil when the UDP trigger is disabled
}

func completer() *readline.PrefixCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem("load"), readline.PcItem("unload"),
		readline.PcItem("play"), readline.PcItem("restart"), readline.PcItem("reset"),
		readline.PcItem("loop", readline.PcItem("on"), readline.PcItem("off")),
		readline.PcItem("seek"), readline.PcItem("channel"), readline.PcItem("device"),
		readline.PcItem("gain"), readline.PcItem("master"), readline.PcItem("bpm"),
		readline.PcItem("midi",
			readline.PcItem("on"), readline.PcItem("off"), readline.PcItem("start"), readline.PcItem("stop"),
			readline.PcItem("devices"), readline.PcItem("select"), readline.PcItem("offset"), readline.PcItem("beats")),
		readline.PcItem("timecode", readline.PcItem("on"), readline.PcItem("off"), readline.PcItem("fps")),
		readline.PcItem("trigger",
			readline.PcItem("add"), readline.PcItem("rm"), readline.PcItem("fire"),
			readline.PcItem("list"), readline.PcItem("restart")),
		readline.PcItem("udp"), readline.PcItem("status"), readline.PcItem("devices"),
		readline.PcItem("help"), readline.PcItem("quit"),
	)
}

// run reads commands until quit, EOF or ctx ends.
func (s *shell) run(ctx context.Context, rl *readline.Instance) error {
	fmt.Fprintln(s.out, "trackmix ready. Type help for commands.")
	for {
		line, err := rl.Readline()
		switch {
		case errors.Is(err, readline.ErrInterrupt):
			if line == "" {
				return nil
			}
			continue
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			return err
		}
		quit, err := s.exec(ctx, line)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(s.out, "error: %v\n", err)
		}
		if quit {
			return nil
		}
	}
}

// exec parses one line and runs it on the console loop.
func (s *shell) exec(ctx context.Context, line string) (quit bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	switch fields[0] {
	case "quit", "exit":
		return true, nil
	case "help":
		fmt.Fprintln(s.out, help)
		return false, nil
	}
	var cmdErr error
	if err := s.console.Do(ctx, func() { cmdErr = s.dispatch(fields) }); err != nil {
		return false, err
	}
	return false, cmdErr
}

func (s *shell) dispatch(f []string) error {
	c := s.console
	switch f[0] {
	case "load":
		slot, err := argInt(f, 1)
		if err != nil || len(f) < 3 {
			return fmt.Errorf("%w: load <slot> <path> [seconds]", errUsage)
		}
		var seconds float64
		if len(f) > 3 {
			if seconds, err = argFloat(f, 3); err != nil {
				return err
			}
		}
		if err := c.Load(slot, f[2], seconds); err != nil {
			return err
		}
		s.printf("slot %d: %s\n", slot, f[2])

	case "unload":
		slot, err := argInt(f, 1)
		if err != nil {
			return err
		}
		return c.Unload(slot)

	case "play":
		playing, err := c.TogglePlay()
		if err != nil {
			return err
		}
		s.printf("playing: %v\n", playing)

	case "restart":
		c.Restart()

	case "reset":
		c.Reset()

	case "loop":
		on, err := argOnOff(f, 1)
		if err != nil {
			return err
		}
		c.SetLoop(on)

	case "seek":
		t, err := argFloat(f, 1)
		if err != nil {
			return err
		}
		return c.Seek(t)

	case "channel":
		slot, err1 := argInt(f, 1)
		ch, err2 := argInt(f, 3)
		if err1 != nil || err2 != nil {
			return fmt.Errorf("%w: channel <slot> <mono|left|right> <n>", errUsage)
		}
		applied, corrected, err := c.Router().SetChannel(slot, router.ParseSide(f[2]), ch)
		if err != nil {
			return err
		}
		if corrected {
			s.printf("channel %d not available, using %d\n", ch, applied)
		}

	case "device":
		slot, err := argInt(f, 1)
		if err != nil || len(f) < 3 {
			return fmt.Errorf("%w: device <slot> <device id>", errUsage)
		}
		res, err := c.Router().SetDevice(slot, f[2])
		if err != nil {
			return err
		}
		s.printf("slot %d on %s (rebuilt %v)\n", slot, res.DeviceID, res.Rebuilt)
		for _, side := range res.Corrected {
			s.printf("  %s stage moved to channel 0\n", side)
		}

	case "gain":
		slot, err1 := argInt(f, 1)
		db, err2 := argFloat(f, 3)
		if err1 != nil || err2 != nil {
			return fmt.Errorf("%w: gain <slot> <mono|left|right> <db> [mute]", errUsage)
		}
		return c.Router().SetGain(slot, router.ParseSide(f[2]), db, len(f) > 4 && f[4] == "mute")

	case "master":
		db, err := argFloat(f, 1)
		if err != nil {
			return err
		}
		c.SetMaster(db, len(f) > 2 && f[2] == "mute")

	case "bpm":
		bpm, err := argFloat(f, 1)
		if err != nil {
			return err
		}
		c.Clock().SetBPM(bpm)

	case "midi":
		return s.midiCommand(f)

	case "timecode":
		return s.timecodeCommand(f)

	case "trigger":
		return s.triggerCommand(f)

	case "udp":
		if s.udp == nil {
			return fmt.Errorf("%w: UDP trigger disabled", contracts.ErrDevice)
		}
		if len(f) < 2 {
			s.printf("udp message: %s\n", s.udp.Message())
			return nil
		}
		s.udp.SetMessage(strings.Join(f[1:], " "))
		s.printf("udp message: %s\n", s.udp.Message())

	case "status":
		s.printStatus(c.Status())

	case "devices":
		devices, err := c.Devices()
		if err != nil {
			return err
		}
		for _, d := range devices {
			s.printf("%-20s %-30s %d ch\n", d.ID, d.Label, d.MaxChannels)
		}

	default:
		return fmt.Errorf("%w: unknown command %q (try help)", contracts.ErrValidation, f[0])
	}
	return nil
}

func (s *shell) midiCommand(f []string) error {
	clk := s.console.Clock()
	if len(f) < 2 {
		return fmt.Errorf("%w: midi on|off|start|stop|devices|select <n>|offset <s>|beats <n>", errUsage)
	}
	switch f[1] {
	case "on", "off":
		clk.SetEnabled(f[1] == "on")
	case "start":
		clk.Start()
	case "stop":
		clk.Stop()
	case "offset":
		sec, err := argFloat(f, 2)
		if err != nil || sec < 0 {
			return fmt.Errorf("%w: midi offset <seconds>", errUsage)
		}
		clk.SetStartOffset(sec)
	case "beats":
		n, err := argInt(f, 2)
		if err != nil {
			return err
		}
		clk.SetBeatsPerBar(n)
	case "devices", "select":
		if s.midi == nil {
			return fmt.Errorf("%w: no MIDI output on this platform", contracts.ErrDevice)
		}
		if f[1] == "select" {
			n, err := argInt(f, 2)
			if err != nil {
				return err
			}
			return s.midi.SelectDevice(n)
		}
		devices, err := s.midi.ListDevices()
		if err != nil {
			return err
		}
		for i, d := range devices {
			s.printf("%2d  %s (%s)\n", i, d.Name, d.Manufacturer)
		}
	default:
		return fmt.Errorf("%w: unknown midi command %q", errUsage, f[1])
	}
	return nil
}

func (s *shell) timecodeCommand(f []string) error {
	tc := s.console.Timecode()
	if len(f) < 2 {
		return fmt.Errorf("%w: timecode on|off|fps <rate>", errUsage)
	}
	switch f[1] {
	case "on", "off":
		tc.SetEnabled(f[1] == "on")
	case "fps":
		fps, err := argFloat(f, 2)
		if err != nil {
			return err
		}
		return tc.SetFPS(fps)
	default:
		return fmt.Errorf("%w: unknown timecode command %q", errUsage, f[1])
	}
	return nil
}

func (s *shell) triggerCommand(f []string) error {
	sched := s.console.Triggers()
	if len(f) < 2 {
		return fmt.Errorf("%w: trigger add|rm|fire|list|restart", errUsage)
	}
	switch f[1] {
	case "add":
		t, err := argFloat(f, 3)
		if err != nil {
			return fmt.Errorf("%w: trigger add <sink> <seconds> [type] [value] [address]", errUsage)
		}
		cfg := trigger.Config{Name: f[2], Sink: f[2], Time: t}
		if len(f) > 4 {
			cfg.DataType = contracts.TriggerDataType(f[4])
		}
		if len(f) > 5 {
			if cfg.DataType == contracts.TriggerString {
				cfg.Text = f[5]
			} else if cfg.Number, err = strconv.ParseFloat(f[5], 64); err != nil {
				return fmt.Errorf("%w: trigger value %q", contracts.ErrValidation, f[5])
			}
		} else if cfg.DataType != contracts.TriggerString {
			cfg.Number = trigger.DefaultValue
		}
		if len(f) > 6 {
			cfg.Address = f[6]
		}
		tr, err := sched.Add(cfg)
		if err != nil {
			return err
		}
		s.printf("trigger %s at %.2fs -> %s\n", tr.ID[:8], tr.Time, tr.Sink)
	case "rm":
		if len(f) < 3 {
			return fmt.Errorf("%w: trigger rm <id>", errUsage)
		}
		tr, err := s.findTrigger(f[2])
		if err != nil {
			return err
		}
		return sched.Remove(tr.ID)
	case "fire":
		if len(f) < 3 {
			return fmt.Errorf("%w: trigger fire <id> [stop]", errUsage)
		}
		action := contracts.ActionStart
		if len(f) > 3 && f[3] == "stop" {
			action = contracts.ActionStop
		}
		return sched.Fire(f[2], action, s.console.Position())
	case "restart":
		on, err := argOnOff(f, 3)
		if err != nil || len(f) < 3 {
			return fmt.Errorf("%w: trigger restart <id> on|off", errUsage)
		}
		tr, err := s.findTrigger(f[2])
		if err != nil {
			return err
		}
		cfg := tr.Config
		cfg.OnRestart = on
		return sched.Update(tr.ID, cfg)
	case "list":
		for _, tr := range sched.List() {
			s.printf("%s  %-8s %-6s %7.2fs  restart=%-5v fired=%d failed=%d\n",
				tr.ID[:8], tr.Name, tr.Sink, tr.Time, tr.OnRestart, tr.Fired, tr.Failed)
		}
	default:
		return fmt.Errorf("%w: unknown trigger command %q", errUsage, f[1])
	}
	return nil
}

// findTrigger resolves an id or an id prefix of at least 8 characters.
func (s *shell) findTrigger(id string) (trigger.Trigger, error) {
	for _, tr := range s.console.Triggers().List() {
		if tr.ID == id || (len(id) >= 8 && strings.HasPrefix(tr.ID, id)) {
			return tr, nil
		}
	}
	return trigger.Trigger{}, fmt.Errorf("%w: %s", contracts.ErrUnknownTrigger, id)
}

func (s *shell) printStatus(st console.Status) {
	s.printf("%s  loop=%v  %s / %s  master=%.1fdB muted=%v\n",
		st.State, st.Loop, clockTime(st.Position), clockTime(st.Duration), st.MasterDB, st.MasterMuted)
	for _, t := range st.Tracks {
		mark := " "
		if t.Reference {
			mark = "*"
		}
		state := "paused"
		switch {
		case t.Waiting:
			state = "waiting"
		case t.Playing:
			state = "playing"
		}
		s.printf("%s%2d %-5s %-30s %s / %s %-8s %s", mark, t.Slot, t.Kind, t.Name,
			clockTime(t.Time), clockTime(t.Duration), state, t.Device)
		if t.Video {
			s.printf(" video ready=%v", t.VideoReady)
		}
		s.printf("\n")
	}
	ck := st.Clock
	s.printf("midi: enabled=%v running=%v bpm=%.1f valid=%v %d/%d sent=%d failed=%d\n",
		ck.Enabled, ck.Playing, ck.BPM, ck.Valid, ck.Beat, ck.BeatsPerBar, ck.Sent, ck.Failed)
	tc := st.Timecode
	s.printf("timecode: enabled=%v fps=%v last=%s sent=%d failed=%d\n", tc.Enabled, tc.FPS, tc.Last, tc.Sent, tc.Failed)
	s.printf("triggers: %d\n", len(st.Triggers))
}

func (s *shell) printf(format string, args ...any) {
	fmt.Fprintf(s.out, format, args...)
}

func clockTime(sec float64) string {
	total := int(sec)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, total/60%60, total%60)
}

func argInt(f []string, i int) (int, error) {
	if len(f) <= i {
		return 0, fmt.Errorf("%w: missing argument %d", errUsage, i)
	}
	n, err := strconv.Atoi(f[i])
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not an integer", contracts.ErrValidation, f[i])
	}
	return n, nil
}

func argFloat(f []string, i int) (float64, error) {
	if len(f) <= i {
		return 0, fmt.Errorf("%w: missing argument %d", errUsage, i)
	}
	v, err := strconv.ParseFloat(f[i], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", contracts.ErrValidation, f[i])
	}
	return v, nil
}

func argOnOff(f []string, i int) (bool, error) {
	if len(f) <= i {
		return false, fmt.Errorf("%w: missing on|off", errUsage)
	}
	switch f[i] {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("%w: %q is not on or off", contracts.ErrValidation, f[i])
}
