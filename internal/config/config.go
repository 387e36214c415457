package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/leandrodaf/trackmix/internal/clock"
	"github.com/leandrodaf/trackmix/internal/timecode"
	"github.com/leandrodaf/trackmix/sdk/contracts"
	"go.uber.org/multierr"
)

// Broadcast as an IP value resolves to the broadcast address of the local network.
const Broadcast = "broadcast"

// Config holds all runtime configuration, loaded from environment variables.
type Config struct {
	// Server
	HTTPAddr string

	// Logging
	LogLevel string
	LogFile  string

	// Playback
	Loop           bool
	SettleDelay    time.Duration
	SampleInterval time.Duration

	// MIDI clock
	MIDIEnabled bool
	MIDIDevice  int
	BPM         float64
	BeatsPerBar int
	StartOffset float64 // seconds

	// Art-Net timecode
	ArtNetEnabled bool
	ArtNetIP      string
	ArtNetPort    int
	FPS           float64

	// OSC trigger
	OSCEnabled   bool
	OSCIP        string
	OSCPort      int
	OSCAddress   string
	OSCType      string // float, integer or string
	OSCValue     string
	OSCTime      float64 // seconds; negative disables the cue
	OSCOnRestart bool

	// Plain UDP trigger
	UDPEnabled   bool
	UDPIP        string
	UDPPort      int
	UDPMessage   string
	UDPTime      float64
	UDPOnRestart bool
}

// Load reads configuration from environment variables with sane defaults.
func Load() Config {
	return Config{
		HTTPAddr: envStr("TRACKMIX_HTTP_ADDR", "127.0.0.1:8080"),

		LogLevel: envStr("TRACKMIX_LOG_LEVEL", "info"),
		LogFile:  envStr("TRACKMIX_LOG_FILE", ""),

		Loop:           envBool("TRACKMIX_LOOP", false),
		SettleDelay:    time.Duration(envInt("TRACKMIX_SETTLE_MS", 100)) * time.Millisecond,
		SampleInterval: time.Duration(envInt("TRACKMIX_SAMPLE_MS", 250)) * time.Millisecond,

		MIDIEnabled: envBool("TRACKMIX_MIDI_ENABLED", false),
		MIDIDevice:  envInt("TRACKMIX_MIDI_DEVICE", 0),
		BPM:         envFloat("TRACKMIX_BPM", clock.DefaultBPM),
		BeatsPerBar: envInt("TRACKMIX_BEATS_PER_BAR", 4),
		StartOffset: envFloat("TRACKMIX_START_OFFSET", 0),

		ArtNetEnabled: envBool("TRACKMIX_ARTNET_ENABLED", false),
		ArtNetIP:      envStr("TRACKMIX_ARTNET_IP", "127.0.0.1"),
		ArtNetPort:    envInt("TRACKMIX_ARTNET_PORT", 6454),
		FPS:           envFloat("TRACKMIX_FPS", timecode.DefaultFPS),

		OSCEnabled:   envBool("TRACKMIX_OSC_ENABLED", false),
		OSCIP:        envStr("TRACKMIX_OSC_IP", "127.0.0.1"),
		OSCPort:      envInt("TRACKMIX_OSC_PORT", 7000),
		OSCAddress:   envStr("TRACKMIX_OSC_ADDRESS", "/trigger/start"),
		OSCType:      envStr("TRACKMIX_OSC_TYPE", "float"),
		OSCValue:     envStr("TRACKMIX_OSC_VALUE", "1.0"),
		OSCTime:      envFloat("TRACKMIX_OSC_TIME", -1),
		OSCOnRestart: envBool("TRACKMIX_OSC_ON_RESTART", true),

		UDPEnabled:   envBool("TRACKMIX_UDP_ENABLED", false),
		UDPIP:        envStr("TRACKMIX_UDP_IP", Broadcast),
		UDPPort:      envInt("TRACKMIX_UDP_PORT", 9998),
		UDPMessage:   envStr("TRACKMIX_UDP_MESSAGE", "START"),
		UDPTime:      envFloat("TRACKMIX_UDP_TIME", -1),
		UDPOnRestart: envBool("TRACKMIX_UDP_ON_RESTART", true),
	}
}

// Validate corrects every invalid value to its safe default and returns
// one ErrValidation-wrapped error per correction, combined.
func (c *Config) Validate() error {
	var errs error
	fix := func(format string, args ...any) {
		errs = multierr.Append(errs, fmt.Errorf("%w: "+format, append([]any{contracts.ErrValidation}, args...)...))
	}

	if !clock.ValidBPM(c.BPM) {
		fix("bpm %v outside [%v, %v], using %v", c.BPM, clock.MinBPM, clock.MaxBPM, clock.DefaultBPM)
		c.BPM = clock.DefaultBPM
	}
	if c.BeatsPerBar < 1 || c.BeatsPerBar > 16 {
		fix("beats per bar %d, using 4", c.BeatsPerBar)
		c.BeatsPerBar = 4
	}
	if c.StartOffset < 0 {
		fix("start offset %v, using 0", c.StartOffset)
		c.StartOffset = 0
	}
	if c.MIDIDevice < 0 {
		fix("midi device %d, using 0", c.MIDIDevice)
		c.MIDIDevice = 0
	}
	if !timecode.ValidFPS(c.FPS) {
		fix("fps %v not in %v, using %v", c.FPS, timecode.Rates, timecode.DefaultFPS)
		c.FPS = timecode.DefaultFPS
	}
	if c.SettleDelay <= 0 {
		fix("settle delay %v, using 100ms", c.SettleDelay)
		c.SettleDelay = 100 * time.Millisecond
	}
	if c.SampleInterval <= 0 {
		fix("sample interval %v, using 250ms", c.SampleInterval)
		c.SampleInterval = 250 * time.Millisecond
	}

	c.ArtNetIP = ip("artnet", c.ArtNetIP, "127.0.0.1", fix)
	c.OSCIP = ip("osc", c.OSCIP, "127.0.0.1", fix)
	c.UDPIP = ip("udp", c.UDPIP, BroadcastAddress(LocalIPv4()), fix)
	c.ArtNetPort = port("artnet", c.ArtNetPort, 6454, fix)
	c.OSCPort = port("osc", c.OSCPort, 7000, fix)
	c.UDPPort = port("udp", c.UDPPort, 9998, fix)

	if !strings.HasPrefix(c.OSCAddress, "/") {
		fix("osc address %q must start with /, using /trigger/start", c.OSCAddress)
		c.OSCAddress = "/trigger/start"
	}
	switch c.OSCType {
	case string(contracts.TriggerFloat), string(contracts.TriggerInteger), string(contracts.TriggerString):
	default:
		fix("osc type %q, using float", c.OSCType)
		c.OSCType = string(contracts.TriggerFloat)
	}
	return errs
}

func ip(name, v, fallback string, fix func(string, ...any)) string {
	if v == Broadcast {
		return BroadcastAddress(LocalIPv4())
	}
	if !IsValidIPv4(v) {
		fix("%s ip %q, using %s", name, v, fallback)
		return fallback
	}
	return v
}

func port(name string, v, fallback int, fix func(string, ...any)) int {
	if !IsValidPort(v) {
		fix("%s port %d outside 1-65535, using %d", name, v, fallback)
		return fallback
	}
	return v
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
