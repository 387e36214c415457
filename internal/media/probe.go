package media

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	"github.com/leandrodaf/trackmix/sdk/contracts"
)

var extensions = map[string]contracts.TrackKind{
	".wav":  contracts.KindAudio,
	".mp3":  contracts.KindAudio,
	".ogg":  contracts.KindAudio,
	".flac": contracts.KindAudio,
	".aac":  contracts.KindAudio,
	".m4a":  contracts.KindAudio,
	".mp4":  contracts.KindVideo,
	".webm": contracts.KindVideo,
	".mov":  contracts.KindVideo,
	".mkv":  contracts.KindVideo,
}

// Info is what the console needs to know about a file before loading it.
type Info struct {
	Path     string
	Name     string
	Kind     contracts.TrackKind
	Duration float64 // seconds; 0 when the container is not probed
}

// KindOf classifies a file by extension.
func KindOf(path string) (contracts.TrackKind, error) {
	kind, ok := extensions[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return 0, fmt.Errorf("%w: unsupported file type %q", contracts.ErrValidation, filepath.Ext(path))
	}
	return kind, nil
}

// Probe classifies path and reads its duration where the container allows it.
func Probe(path string) (Info, error) {
	kind, err := KindOf(path)
	if err != nil {
		return Info{}, err
	}
	info := Info{Path: path, Name: filepath.Base(path), Kind: kind}
	if !strings.EqualFold(filepath.Ext(path), ".wav") {
		return info, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return Info{}, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return Info{}, fmt.Errorf("%w: %s is not a valid WAV file", contracts.ErrValidation, info.Name)
	}
	d, err := dec.Duration()
	if err != nil {
		return Info{}, fmt.Errorf("reading duration of %s: %w", info.Name, err)
	}
	info.Duration = d.Seconds()
	return info, nil
}
