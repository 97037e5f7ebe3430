package relay

import (
	"math/rand/v2"
	"slices"
)

// sequence is the resolved playback order of one session.
type sequence struct {
	items  []string
	mode   PlaybackMode
	repeat bool
}

// resolveSequence applies the playback mode to a config's media. A random
// playlist is shuffled once here and keeps that order for the session.
func resolveSequence(cfg StreamConfig, rng *rand.Rand) (sequence, error) {
	mode := cfg.Mode
	if !mode.Valid() {
		mode = ModeLoop
	}

	var items []string
	for _, p := range cfg.Playlist {
		if p != "" {
			items = append(items, p)
		}
	}
	if len(items) == 0 {
		if cfg.Media == "" {
			return sequence{}, ErrNoMedia
		}
		items = []string{cfg.Media}
	}

	items = slices.Clone(items)
	if mode == ModeRandom && len(items) > 1 {
		shuffle(items, rng)
	}

	return sequence{items: items, mode: mode, repeat: cfg.RepeatPlaylist}, nil
}

// shuffle is a Fisher-Yates permutation of items in place.
func shuffle(items []string, rng *rand.Rand) {
	for i := len(items) - 1; i > 0; i-- {
		var j int
		if rng != nil {
			j = rng.IntN(i + 1)
		} else {
			j = rand.IntN(i + 1)
		}
		items[i], items[j] = items[j], items[i]
	}
}

// loopsInProcess reports whether the relay process itself should repeat the
// single input rather than the sequencer re-spawning it.
func (s sequence) loopsInProcess() bool {
	return s.mode == ModeLoop && len(s.items) == 1
}

// wraps reports whether exhausting the sequence starts it again.
func (s sequence) wraps() bool {
	if len(s.items) < 2 {
		return false
	}
	return s.mode == ModeLoop || s.repeat
}

// legAction is the sequencer's decision after a leg finishes.
type legAction int

const (
	// legEnd closes the session as idle.
	legEnd legAction = iota
	// legFail closes the session as error.
	legFail
	// legNext spawns the item at the returned index.
	legNext
)

// onLegFinished decides what follows the leg at index. A failed leg aborts the
// whole session without skipping ahead.
func (s sequence) onLegFinished(index int, exit Exit) (legAction, int) {
	if !exit.Clean() {
		return legFail, index
	}
	if s.loopsInProcess() {
		return legEnd, index
	}
	next := index + 1
	if next < len(s.items) {
		return legNext, next
	}
	if s.wraps() {
		return legNext, 0
	}
	return legEnd, index
}
