package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/oshokin/alarm-klaxon/internal/playback"
)

// SampleRate is the rate of every clip.
const SampleRate = 44100

var (
	// ErrSoundNotFound is returned when a reference resolves to nothing.
	ErrSoundNotFound = errors.New("sound not found")
	// errInvalidClip is returned for files that are not whole stereo frames.
	errInvalidClip = errors.New("invalid pcm clip")
)

// Clip is interleaved stereo PCM.
type Clip struct {
	// Name is the reference the clip was loaded from.
	Name string
	// Samples holds interleaved left/right samples.
	Samples []int16
}

// Library resolves sound references.
type Library struct {
	// dir is where relative references are looked up.
	dir string
	// once guards builtins.
	once sync.Once
	// builtins holds the generated clips.
	builtins map[string]*Clip
}

// NewLibrary creates a Library reading files from dir.
func NewLibrary(dir string) *Library {
	return &Library{dir: dir}
}

// Load returns the clip for ref. Empty ref means the default alarm sound.
func (l *Library) Load(ref string) (*Clip, error) {
	l.once.Do(l.generate)

	if ref == "" {
		ref = playback.DefaultSound
	}

	if clip, ok := l.builtins[ref]; ok {
		return clip, nil
	}

	path := ref
	if !filepath.IsAbs(path) {
		if l.dir == "" {
			return nil, fmt.Errorf("%w: %q", ErrSoundNotFound, ref)
		}

		path = filepath.Join(l.dir, path)
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %q", ErrSoundNotFound, ref)
		}

		return nil, fmt.Errorf("read sound %q: %w", ref, err)
	}

	// One stereo frame is two 16-bit samples.
	if len(contents) == 0 || len(contents)%4 != 0 {
		return nil, fmt.Errorf("%w: %q has %d bytes", errInvalidClip, ref, len(contents))
	}

	samples := make([]int16, len(contents)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(contents[i*2:])) //nolint:gosec // PCM reinterpretation.
	}

	return &Clip{Name: ref, Samples: samples}, nil
}

// generate builds the built-in clips.
func (l *Library) generate() {
	alarmClip := append(tone(880, 0.25, 0.8), silence(0.1)...)
	alarmClip = append(alarmClip, tone(660, 0.25, 0.8)...)
	alarmClip = append(alarmClip, silence(0.4)...)

	inCall := append(tone(440, 0.2, 0.5), silence(1.8)...)

	l.builtins = map[string]*Clip{
		playback.DefaultSound: {Name: playback.DefaultSound, Samples: alarmClip},
		playback.InCallSound:  {Name: playback.InCallSound, Samples: inCall},
	}
}

// tone generates a stereo sine wave with a short fade at both ends.
func tone(freq, seconds, volume float64) []int16 {
	n := int(SampleRate * seconds)
	fade := n / 20
	samples := make([]int16, n*2)

	for i := range n {
		envelope := 1.0
		if i < fade {
			envelope = float64(i) / float64(fade)
		} else if i > n-fade {
			envelope = float64(n-i) / float64(fade)
		}

		t := float64(i) / SampleRate
		s := int16(math.Sin(2*math.Pi*freq*t) * math.MaxInt16 * volume * envelope)
		samples[i*2] = s
		samples[i*2+1] = s
	}

	return samples
}

func silence(seconds float64) []int16 {
	return make([]int16, int(SampleRate*seconds)*2)
}
