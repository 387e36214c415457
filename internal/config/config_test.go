package config

import (
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/leandrodaf/trackmix/sdk/contracts"
	"go.uber.org/multierr"
)

func TestLoadDefaults(t *testing.T) {
	for _, kv := range os.Environ() {
		if k, _, _ := strings.Cut(kv, "="); strings.HasPrefix(k, "TRACKMIX_") {
			os.Unsetenv(k)
		}
	}

	cfg := Load()
	if cfg.HTTPAddr != "127.0.0.1:8080" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.BPM != 120 || cfg.BeatsPerBar != 4 {
		t.Errorf("BPM %v beats %d", cfg.BPM, cfg.BeatsPerBar)
	}
	if cfg.FPS != 25 || cfg.ArtNetPort != 6454 || cfg.ArtNetIP != "127.0.0.1" {
		t.Errorf("artnet = %s:%d @%v", cfg.ArtNetIP, cfg.ArtNetPort, cfg.FPS)
	}
	if cfg.OSCPort != 7000 || cfg.OSCAddress != "/trigger/start" || cfg.OSCValue != "1.0" {
		t.Errorf("osc = %d %s %s", cfg.OSCPort, cfg.OSCAddress, cfg.OSCValue)
	}
	if cfg.UDPPort != 9998 || cfg.UDPMessage != "START" || cfg.UDPIP != Broadcast {
		t.Errorf("udp = %s:%d %s", cfg.UDPIP, cfg.UDPPort, cfg.UDPMessage)
	}
	if cfg.SampleInterval != 250*time.Millisecond || cfg.SettleDelay != 100*time.Millisecond {
		t.Errorf("intervals = %v %v", cfg.SampleInterval, cfg.SettleDelay)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults need correction: %v", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("TRACKMIX_BPM", "98.5")
	t.Setenv("TRACKMIX_LOOP", "true")
	t.Setenv("TRACKMIX_UDP_PORT", "not-a-number")
	t.Setenv("TRACKMIX_SAMPLE_MS", "100")

	cfg := Load()
	if cfg.BPM != 98.5 || !cfg.Loop {
		t.Errorf("BPM %v loop %v", cfg.BPM, cfg.Loop)
	}
	if cfg.UDPPort != 9998 {
		t.Errorf("unparsable port should fall back, got %d", cfg.UDPPort)
	}
	if cfg.SampleInterval != 100*time.Millisecond {
		t.Errorf("SampleInterval = %v", cfg.SampleInterval)
	}
}

func TestValidateCorrects(t *testing.T) {
	cfg := Load()
	cfg.BPM = 500
	cfg.FPS = 60
	cfg.ArtNetIP = "10.0.0.256"
	cfg.OSCPort = 70000
	cfg.OSCAddress = "trigger"
	cfg.OSCType = "blob"
	cfg.UDPIP = "192.168.4.20"

	err := cfg.Validate()
	if got := len(multierr.Errors(err)); got != 6 {
		t.Fatalf("got %d corrections: %v", got, err)
	}
	for _, e := range multierr.Errors(err) {
		if !errors.Is(e, contracts.ErrValidation) {
			t.Errorf("%v is not a validation error", e)
		}
	}
	if cfg.BPM != 120 || cfg.FPS != 25 || cfg.ArtNetIP != "127.0.0.1" || cfg.OSCPort != 7000 {
		t.Errorf("not corrected: %+v", cfg)
	}
	if cfg.OSCAddress != "/trigger/start" || cfg.OSCType != "float" || cfg.UDPIP != "192.168.4.20" {
		t.Errorf("not corrected: %+v", cfg)
	}
}

func TestIsValidIPv4(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1":       true,
		"255.255.255.255": true,
		"0.0.0.0":         true,
		"256.0.0.1":       false,
		"1.2.3":           false,
		"1.2.3.4.5":       false,
		"a.b.c.d":         false,
		"1..2.3":          false,
		"+1.2.3.4":        false,
		"-1.2.3.4":        false,
		"":                false,
	}
	for ip, want := range cases {
		if got := IsValidIPv4(ip); got != want {
			t.Errorf("IsValidIPv4(%q) = %v", ip, got)
		}
	}
}

func TestBroadcastAddress(t *testing.T) {
	cases := map[string]string{
		"192.168.178.20": "192.168.178.255",
		"10.1.2.3":       "10.1.2.255",
		"":               DefaultBroadcast,
		"fe80::1":        DefaultBroadcast,
	}
	for ip, want := range cases {
		if got := BroadcastAddress(ip); got != want {
			t.Errorf("BroadcastAddress(%q) = %q, want %q", ip, got, want)
		}
	}
	if got := BroadcastAddress(LocalIPv4()); !IsValidIPv4(got) {
		t.Errorf("local broadcast %q is not an IPv4 address", got)
	}
}
