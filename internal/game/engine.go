// Package game implements the memory-matching state machine: grid
// construction, the tile-click comparison cycle, attempt and accuracy
// counting, the session timer, and the end-of-game record check.
package game

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"soundpairs/internal/audio"
	"soundpairs/internal/records"
)

const (
	// PairCount is the number of distinct sounds per set.
	PairCount = 18
	// GridSize is the number of tiles on the board.
	GridSize = 2 * PairCount
)

// ToneFrequencies is the built-in tone set, in Hz.
var ToneFrequencies = [PairCount]float64{
	220, 246, 261, 293, 329, 349, 392, 440, 493,
	523, 587, 659, 698, 783, 880, 987, 1046, 1174,
}

// Feedback chimes: a two-note ascending confirmation on a match and a
// four-note ascending arpeggio on a win.
var (
	matchChime   = []float64{523.25, 659.25}
	victoryChime = []float64{523.25, 659.25, 783.99, 1046.5}
)

// SetID selects the active sound bank.
type SetID int

const (
	SetTones SetID = iota
	SetCustom1
	SetCustom2
)

func (id SetID) String() string {
	switch id {
	case SetTones:
		return "tones"
	case SetCustom1:
		return "custom1"
	case SetCustom2:
		return "custom2"
	}
	return fmt.Sprintf("set(%d)", int(id))
}

// Player is the playback side of the audio abstraction. Implementations
// must be non-blocking; starting any sound preempts the previous one.
type Player interface {
	PlayTone(freq float64, muted bool, dur time.Duration)
	PlaySample(buf *audio.Buffer, muted bool)
	PlayChime(muted bool, freqs ...float64)
	StopAll()
}

// SetSource supplies custom-set buffers and readiness. Readiness is checked
// at switch and build time, never cached by the engine.
type SetSource interface {
	Ready(slot int) bool
	Count(slot int) int
	Buffers(slot int) []*audio.Buffer
}

// Tile is one grid position. Identity (index) is fixed; Matched flips once.
type Tile struct {
	Token   Token
	Matched bool
}

// Summary describes a completed session.
type Summary struct {
	Set           SetID
	TimeSeconds   int
	Attempts      int
	Accuracy      int
	RecordUpdated bool
	Best          records.Best
}

type phase int

const (
	phaseIdle phase = iota
	phasePlaying
	phaseWon
)

// Engine owns all game state for one board. Construct one per board; there
// are no package-level singletons.
type Engine struct {
	mu      sync.Mutex
	player  Player
	records *records.Store
	sets    SetSource

	now func() time.Time
	rng *rand.Rand

	activeSet    SetID
	phase        phase
	tiles        []Tile
	matchedPairs int
	attempts     int
	first        int // pending first tile of a comparison, -1 when none
	muted        bool

	timerStarted bool
	running      bool
	suspended    bool
	startedAt    time.Time
	accumulated  time.Duration

	// OnWin, if set, receives the completion summary. Called without the
	// engine lock held.
	OnWin func(Summary)
}

// New returns an engine on the tone set with no grid built yet.
func New(player Player, recs *records.Store, src SetSource) *Engine {
	return &Engine{
		player:  player,
		records: recs,
		sets:    src,
		now:     time.Now,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		first:   -1,
	}
}

// BuildGrid lays out a fresh shuffled board for the active set. If a custom
// set is active but no longer ready, the engine falls back to tones.
func (e *Engine) BuildGrid() {
	e.mu.Lock()
	e.buildLocked()
	e.mu.Unlock()
}

func (e *Engine) buildLocked() {
	if e.activeSet != SetTones && !e.sets.Ready(int(e.activeSet)) {
		slog.Warn("active set no longer ready, falling back to tones",
			"set", e.activeSet, "count", e.sets.Count(int(e.activeSet)))
		e.activeSet = SetTones
	}

	var tokens []Token
	if e.activeSet == SetTones {
		for _, f := range ToneFrequencies {
			tokens = append(tokens, ToneToken(f))
		}
	} else {
		for _, buf := range e.sets.Buffers(int(e.activeSet)) {
			tokens = append(tokens, SampleToken(buf))
		}
	}

	tiles := make([]Tile, 0, GridSize)
	for _, tok := range tokens {
		tiles = append(tiles, Tile{Token: tok}, Tile{Token: tok})
	}
	e.shuffleLocked(tiles)
	e.tiles = tiles
	e.resetSessionLocked()
	e.phase = phasePlaying
	slog.Debug("grid built", "set", e.activeSet, "tiles", len(tiles))
}

// shuffleLocked is an unbiased Fisher–Yates shuffle.
func (e *Engine) shuffleLocked(tiles []Tile) {
	for i := len(tiles) - 1; i > 0; i-- {
		j := e.rng.Intn(i + 1)
		tiles[i], tiles[j] = tiles[j], tiles[i]
	}
}

func (e *Engine) resetSessionLocked() {
	e.matchedPairs = 0
	e.attempts = 0
	e.first = -1
	e.timerStarted = false
	e.running = false
	e.suspended = false
	e.accumulated = 0
}

// Click handles one tile click. Clicks on matched tiles are ignored. The
// first click of a session starts the timer. The tile's sound always plays;
// a completed comparison counts one attempt.
func (e *Engine) Click(i int) {
	e.mu.Lock()
	if e.phase != phasePlaying || i < 0 || i >= len(e.tiles) || e.tiles[i].Matched {
		e.mu.Unlock()
		return
	}

	switch {
	case !e.timerStarted:
		e.timerStarted = true
		e.running = true
		e.startedAt = e.now()
	case e.suspended:
		// A click while suspended means the player is back: restart the
		// clock without counting the hidden interval.
		e.startedAt = e.now()
		e.running = true
		e.suspended = false
	}

	tok := e.tiles[i].Token
	muted := e.muted
	matched := false
	var summary *Summary

	switch {
	case e.first == -1:
		e.first = i
	case e.first == i:
		// Re-click of the pending tile: not a comparison.
		e.first = -1
	default:
		e.attempts++
		if e.tiles[e.first].Token.Equal(tok) {
			e.tiles[e.first].Matched = true
			e.tiles[i].Matched = true
			e.matchedPairs++
			matched = true
			if e.matchedPairs == PairCount {
				summary = e.winLocked()
			}
		}
		e.first = -1
	}
	e.mu.Unlock()

	if tok.IsTone() {
		e.player.PlayTone(tok.Freq(), muted, audio.ToneDuration)
	} else {
		e.player.PlaySample(tok.Buffer(), muted)
	}
	if summary != nil {
		e.player.PlayChime(muted, victoryChime...)
		if e.OnWin != nil {
			e.OnWin(*summary)
		}
		return
	}
	if matched {
		e.player.PlayChime(muted, matchChime...)
	}
}

// winLocked freezes the timer, runs the record check and builds the summary.
func (e *Engine) winLocked() *Summary {
	// The running interval is already folded into accumulated when the
	// timer was stopped by Suspend.
	if e.running {
		e.accumulated += e.now().Sub(e.startedAt)
		e.running = false
	}
	e.suspended = false
	e.phase = phaseWon

	secs := int(e.accumulated / time.Second)
	accuracy := 100
	if e.attempts > 0 {
		accuracy = int(math.Round(float64(PairCount) / float64(e.attempts) * 100))
	}
	updated, best := e.records.CheckAndUpdate(int(e.activeSet), secs, e.attempts)

	slog.Info("game won", "set", e.activeSet, "time_s", secs,
		"attempts", e.attempts, "accuracy", accuracy, "record_updated", updated)
	return &Summary{
		Set:           e.activeSet,
		TimeSeconds:   secs,
		Attempts:      e.attempts,
		Accuracy:      accuracy,
		RecordUpdated: updated,
		Best:          best,
	}
}

// Scramble re-shuffles the existing token layout and resets the session, so
// the same sound set can be replayed with a new arrangement. With no grid
// built yet it behaves like BuildGrid.
func (e *Engine) Scramble() {
	e.mu.Lock()
	if len(e.tiles) == 0 {
		e.buildLocked()
		e.mu.Unlock()
		e.player.StopAll()
		return
	}
	tiles := make([]Tile, len(e.tiles))
	for i, t := range e.tiles {
		tiles[i] = Tile{Token: t.Token}
	}
	e.shuffleLocked(tiles)
	e.tiles = tiles
	e.resetSessionLocked()
	e.phase = phasePlaying
	e.mu.Unlock()
	e.player.StopAll()
}

// Reset rebuilds the board from the active set's canonical tokens.
// Idempotent from any state.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.buildLocked()
	e.mu.Unlock()
	e.player.StopAll()
}

// SwitchSet activates a sound set and rebuilds the grid. Selecting a custom
// slot that is not ready is rejected with a user-facing error and leaves
// the current game untouched.
func (e *Engine) SwitchSet(id SetID) error {
	e.mu.Lock()
	if id != SetTones && !e.sets.Ready(int(id)) {
		count := e.sets.Count(int(id))
		e.mu.Unlock()
		return fmt.Errorf("custom set %d needs exactly %d sounds, currently has %d", int(id), PairCount, count)
	}
	e.activeSet = id
	e.buildLocked()
	e.mu.Unlock()
	e.player.StopAll()
	return nil
}

// SetCleared tells the engine a custom slot was emptied. If that slot is
// active, the engine falls back to the tone set and rebuilds.
func (e *Engine) SetCleared(slot int) {
	e.mu.Lock()
	if int(e.activeSet) != slot {
		e.mu.Unlock()
		return
	}
	e.activeSet = SetTones
	e.buildLocked()
	e.mu.Unlock()
	e.player.StopAll()
}

// SetMuted toggles audio. Muting stops any in-flight playback.
func (e *Engine) SetMuted(muted bool) {
	e.mu.Lock()
	e.muted = muted
	e.mu.Unlock()
	if muted {
		e.player.StopAll()
	}
}

// Muted reports whether audio is muted.
func (e *Engine) Muted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.muted
}

// Suspend stops playback and pauses the session timer. Called when the tab
// loses visibility; pausing (rather than letting hidden time count) is a
// deliberate policy choice.
func (e *Engine) Suspend() {
	e.mu.Lock()
	if e.running {
		e.accumulated += e.now().Sub(e.startedAt)
		e.running = false
		e.suspended = true
	}
	e.mu.Unlock()
	e.player.StopAll()
}

// Resume restarts the timer after Suspend. No-op unless a session was
// actually suspended mid-play.
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.suspended || e.phase != phasePlaying {
		return
	}
	e.startedAt = e.now()
	e.running = true
	e.suspended = false
}

// Elapsed returns the authoritative session time, computed from start/stop
// instants rather than accumulated ticks.
func (e *Engine) Elapsed() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	d := e.accumulated
	if e.running {
		d += e.now().Sub(e.startedAt)
	}
	return d
}

// ElapsedSeconds returns Elapsed truncated to whole seconds, the unit used
// for display and records.
func (e *Engine) ElapsedSeconds() int {
	return int(e.Elapsed() / time.Second)
}

// Tiles returns a snapshot of the board.
func (e *Engine) Tiles() []Tile {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Tile, len(e.tiles))
	copy(out, e.tiles)
	return out
}

// Attempts returns the number of completed comparisons this session.
func (e *Engine) Attempts() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.attempts
}

// MatchedPairs returns how many of the 18 pairs are matched.
func (e *Engine) MatchedPairs() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.matchedPairs
}

// FirstSelection returns the pending first tile index, or -1.
func (e *Engine) FirstSelection() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.first
}

// ActiveSet returns the currently selected sound set.
func (e *Engine) ActiveSet() SetID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.activeSet
}

// Won reports whether the session has completed.
func (e *Engine) Won() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase == phaseWon
}

// TimerRunning reports whether the session timer is counting.
func (e *Engine) TimerRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}
