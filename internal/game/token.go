package game

import "soundpairs/internal/audio"

// Token is the sound identity assigned to a tile: either a built-in tone
// frequency or a reference to a decoded custom buffer.
type Token struct {
	freq float64
	buf  *audio.Buffer
}

// ToneToken returns a token for a built-in tone at freq Hz.
func ToneToken(freq float64) Token {
	return Token{freq: freq}
}

// SampleToken returns a token for a decoded custom buffer.
func SampleToken(buf *audio.Buffer) Token {
	return Token{buf: buf}
}

// IsTone reports whether the token is a built-in tone.
func (t Token) IsTone() bool { return t.buf == nil }

// Freq returns the tone frequency; zero for sample tokens.
func (t Token) Freq() float64 { return t.freq }

// Buffer returns the referenced sample buffer; nil for tone tokens.
func (t Token) Buffer() *audio.Buffer { return t.buf }

// Equal reports whether two tokens form a pair. Tones compare by frequency
// value; sample tokens compare by buffer identity, so two uploads that
// happen to decode to identical samples are still distinct sounds.
func (t Token) Equal(o Token) bool {
	if t.buf != nil || o.buf != nil {
		return t.buf == o.buf
	}
	return t.freq == o.freq
}
