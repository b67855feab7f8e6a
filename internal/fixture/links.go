package fixture

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/tturner/canrig/internal/can/bus"
)

// Links opens each CAN interface at most once per run and shares it
// between the channel fixtures and controller discovery.
type Links struct {
	opener  bus.Opener
	bitrate int

	mu    sync.Mutex
	buses map[string]bus.Bus
	opens int
}

// NewLinks creates a link pool over opener.
func NewLinks(opener bus.Opener, bitrate int) *Links {
	return &Links{opener: opener, bitrate: bitrate, buses: make(map[string]bus.Bus)}
}

// Open returns the bus for channel, opening it on first use.
func (l *Links) Open(channel string) (bus.Bus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.buses[channel]; ok {
		return b, nil
	}
	if l.opener == nil {
		return nil, fmt.Errorf("open %s: no bus opener configured", channel)
	}
	b, err := l.opener(channel, l.bitrate)
	if err != nil {
		return nil, err
	}
	l.buses[channel] = b
	l.opens++
	return b, nil
}

// Opens returns how many interfaces were opened.
func (l *Links) Opens() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.opens
}

// Channels returns the opened interface names.
func (l *Links) Channels() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.buses))
	for ch := range l.buses {
		out = append(out, ch)
	}
	sort.Strings(out)
	return out
}

// Close closes every opened bus.
func (l *Links) Close() error {
	l.mu.Lock()
	buses := l.buses
	l.buses = make(map[string]bus.Bus)
	l.mu.Unlock()

	var errs []error
	for ch, b := range buses {
		if err := b.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", ch, err))
		}
	}
	return errors.Join(errs...)
}
