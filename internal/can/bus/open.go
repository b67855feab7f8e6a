package bus

import "sync"

// OpenSocketCANBus is the default Opener. The bitrate is configured on the
// interface itself, so it is only checked for sanity by callers.
func OpenSocketCANBus(channel string, bitrate int) (Bus, error) {
	s, err := OpenSocketCAN(channel)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// VirtualNetwork hands out one VirtualBus per channel name. It backs
// --virtual runs and tests.
type VirtualNetwork struct {
	mu    sync.Mutex
	buses map[string]*VirtualBus
	opens map[string]int
	setup func(channel string, b *VirtualBus)
}

// NewVirtualNetwork creates a network. setup, if non-nil, runs once for
// each bus when it is first created, e.g. to attach simulated devices.
func NewVirtualNetwork(setup func(channel string, b *VirtualBus)) *VirtualNetwork {
	return &VirtualNetwork{
		buses: make(map[string]*VirtualBus),
		opens: make(map[string]int),
		setup: setup,
	}
}

// Open satisfies Opener.
func (n *VirtualNetwork) Open(channel string, bitrate int) (Bus, error) {
	b := n.Bus(channel)
	n.mu.Lock()
	n.opens[channel]++
	n.mu.Unlock()
	return b, nil
}

// Bus returns the bus for channel, creating it if needed. It does not
// count as an open.
func (n *VirtualNetwork) Bus(channel string) *VirtualBus {
	n.mu.Lock()
	defer n.mu.Unlock()
	if b, ok := n.buses[channel]; ok {
		return b
	}
	b := NewVirtualBus()
	n.buses[channel] = b
	if n.setup != nil {
		n.setup(channel, b)
	}
	return b
}

// Opens reports how many times channel was opened.
func (n *VirtualNetwork) Opens(channel string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.opens[channel]
}
