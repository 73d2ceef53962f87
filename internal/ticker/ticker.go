// Package ticker rotates the cosmetic status line: a greeting, a how-to
// hint, then random messages on a fixed interval. It never feeds back into
// the game engine; a broken rotator costs a status line, nothing more.
package ticker

import (
	"math/rand"
	"sync"
	"time"
)

// Default display texts, shown before any messages are loaded.
const (
	Greeting = "Welcome to the audio memory challenge!"
	HowTo    = "Click buttons to hear sounds, find matching pairs!"
)

// Rotator drives the staged message rotation. Configure the fields before
// Start; zero durations get the production defaults.
type Rotator struct {
	// Show displays one message. An empty string clears the line.
	Show func(text string)
	// Messages returns the current message list. Re-read on every rotation
	// so admin uploads take effect without a restart.
	Messages func() []string

	GreetingDelay time.Duration // greeting → hint
	RotateEvery   time.Duration // hint → rotation, and between rotations
	ClearAfter    time.Duration // how long each rotated message stays up

	mu      sync.Mutex
	rng     *rand.Rand
	stop    chan struct{}
	seq     int // generation counter so a stale clear never hides a newer message
	running bool
}

// Start begins the staged schedule. A running rotator is restarted.
func (r *Rotator) Start() {
	r.Stop()

	r.mu.Lock()
	if r.GreetingDelay == 0 {
		r.GreetingDelay = 10 * time.Second
	}
	if r.RotateEvery == 0 {
		r.RotateEvery = 20 * time.Second
	}
	if r.ClearAfter == 0 {
		r.ClearAfter = 10 * time.Second
	}
	if r.rng == nil {
		r.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	stop := make(chan struct{})
	r.stop = stop
	r.running = true
	r.mu.Unlock()

	go r.run(stop)
}

// Stop halts the rotation. Idempotent.
func (r *Rotator) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		close(r.stop)
		r.running = false
	}
}

func (r *Rotator) run(stop chan struct{}) {
	r.display(Greeting)

	if !r.sleep(stop, r.GreetingDelay) {
		return
	}
	r.display(HowTo)

	if !r.sleep(stop, r.RotateEvery) {
		return
	}

	// With nothing to rotate, the greeting stays up for good.
	if len(r.messages()) == 0 {
		r.display(Greeting)
		return
	}

	for {
		r.rotateOnce(stop)
		if !r.sleep(stop, r.RotateEvery) {
			return
		}
	}
}

func (r *Rotator) rotateOnce(stop chan struct{}) {
	msgs := r.messages()
	if len(msgs) == 0 {
		return
	}
	r.mu.Lock()
	msg := msgs[r.rng.Intn(len(msgs))]
	r.seq++
	shown := r.seq
	r.mu.Unlock()

	r.display(msg)

	// Clear after the display window unless a newer message superseded it.
	time.AfterFunc(r.ClearAfter, func() {
		select {
		case <-stop:
			return
		default:
		}
		r.mu.Lock()
		stale := r.seq != shown
		r.mu.Unlock()
		if !stale {
			r.display("")
		}
	})
}

func (r *Rotator) display(text string) {
	if r.Show != nil {
		r.Show(text)
	}
}

func (r *Rotator) messages() []string {
	if r.Messages == nil {
		return nil
	}
	return r.Messages()
}

// sleep waits for d, returning false if the rotator was stopped first.
func (r *Rotator) sleep(stop chan struct{}, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-stop:
		return false
	case <-t.C:
		return true
	}
}
