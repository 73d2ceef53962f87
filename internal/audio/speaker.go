package audio

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
)

const (
	speakerRate = beep.SampleRate(44100)

	// ToneDuration is the default length of one tile tone.
	ToneDuration = 450 * time.Millisecond

	// chimeNote is the length of one note in a feedback chime.
	chimeNote = 160 * time.Millisecond

	toneGain   = 0.16 // tone peak after the attack ramp
	toneAttack = 20 * time.Millisecond
	decayFloor = 0.001 // near-silence target of the exponential decay
	sampleGain = 0.9
)

// Speaker plays tones, decoded samples and feedback chimes through the
// system output. Starting any sound preempts whatever is playing.
type Speaker struct {
	mu     sync.Mutex
	inited bool

	// OnPlayback, if set, is called with (label, true) when playback starts
	// and (label, false) when it ends naturally. Preempted or cleared sounds
	// report no stop.
	OnPlayback func(label string, playing bool)
}

// NewSpeaker initializes the shared speaker output.
func NewSpeaker() (*Speaker, error) {
	if err := speaker.Init(speakerRate, speakerRate.N(time.Second/10)); err != nil {
		return nil, fmt.Errorf("init speaker: %w", err)
	}
	return &Speaker{inited: true}, nil
}

// Close shuts the speaker down. The Speaker must not be used afterwards.
func (s *Speaker) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.inited {
		return
	}
	speaker.Close()
	s.inited = false
}

// PlayTone plays a sine tone at freq Hz for dur, with a short linear attack
// and an exponential decay to near-silence. No-op when muted.
func (s *Speaker) PlayTone(freq float64, muted bool, dur time.Duration) {
	if muted {
		return
	}
	s.play(fmt.Sprintf("tone %.0fHz", freq), Tone(speakerRate, freq, dur))
}

// PlaySample plays a decoded buffer once at fixed gain. No-op when muted.
func (s *Speaker) PlaySample(buf *Buffer, muted bool) {
	if muted || buf == nil {
		return
	}
	st := withGain(buf.Streamer(), sampleGain)
	if buf.Rate != speakerRate {
		st = beep.Resample(4, buf.Rate, speakerRate, st)
	}
	s.play("sample", st)
}

// PlayChime plays a sequence of short tones back to back. No-op when muted.
func (s *Speaker) PlayChime(muted bool, freqs ...float64) {
	if muted || len(freqs) == 0 {
		return
	}
	notes := make([]beep.Streamer, 0, len(freqs))
	for _, f := range freqs {
		notes = append(notes, Tone(speakerRate, f, chimeNote))
	}
	s.play("chime", beep.Seq(notes...))
}

// StopAll stops any in-flight playback. Safe to call at any time, including
// when nothing is playing.
func (s *Speaker) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.inited {
		return
	}
	speaker.Clear()
}

func (s *Speaker) play(label string, st beep.Streamer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.inited {
		return
	}
	speaker.Clear()
	if s.OnPlayback != nil {
		s.OnPlayback(label, true)
		done := s.OnPlayback
		st = beep.Seq(st, beep.Callback(func() { done(label, false) }))
	}
	speaker.Play(st)
}

// Tone returns a streamer producing a sine wave at freq Hz for dur. The
// envelope ramps linearly to toneGain over toneAttack, then decays
// exponentially to decayFloor by the end of the tone.
func Tone(rate beep.SampleRate, freq float64, dur time.Duration) beep.Streamer {
	total := rate.N(dur)
	attack := rate.N(toneAttack)
	if attack > total {
		attack = total
	}
	decayRatio := decayFloor / toneGain
	step := 2 * math.Pi * freq / float64(rate)

	var phase float64
	pos := 0
	return beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		for i := range samples {
			if pos >= total {
				return i, false
			}
			gain := toneGain
			if pos < attack {
				gain = toneGain * float64(pos) / float64(attack)
			} else if total > attack {
				t := float64(pos-attack) / float64(total-attack)
				gain = toneGain * math.Pow(decayRatio, t)
			}
			v := math.Sin(phase) * gain
			samples[i][0] = v
			samples[i][1] = v
			phase += step
			pos++
		}
		return len(samples), true
	})
}

func withGain(s beep.Streamer, gain float64) beep.Streamer {
	return beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		n, ok := s.Stream(samples)
		for i := 0; i < n; i++ {
			samples[i][0] *= gain
			samples[i][1] *= gain
		}
		return n, ok
	})
}
