package app

import (
	"context"
	"sort"

	"github.com/tturner/canrig/internal/can/bus"
	"github.com/tturner/canrig/internal/can/sim"
	"github.com/tturner/canrig/internal/can/spec"
	"github.com/tturner/canrig/internal/cases"
	"github.com/tturner/canrig/internal/fixture"
	"github.com/tturner/canrig/internal/logging"
	"github.com/tturner/canrig/internal/rig"
)

// virtualRig stands in for the hardware of a topology: every controller
// axis becomes a simulated node on an in-memory bus per host interface.
type virtualRig struct {
	network *bus.VirtualNetwork
	// interface -> node id -> simulated axis
	nodes map[string]map[uint32]*sim.Controller
	// host name -> interfaces
	hosts  map[string][]string
	logger *logging.Logger
}

func newVirtualRig(top *rig.Topology, reg *spec.Registry, logger *logging.Logger) *virtualRig {
	v := &virtualRig{
		nodes:  make(map[string]map[uint32]*sim.Controller),
		hosts:  make(map[string][]string),
		logger: logger,
	}
	channels := top.Channels()
	for _, c := range top.Components {
		switch {
		case c.ODrive != nil:
			iface, ok := channels[c.ODrive.CAN]
			if !ok {
				continue
			}
			if v.nodes[iface] == nil {
				v.nodes[iface] = make(map[uint32]*sim.Controller)
			}
			for axis := 0; axis < c.ODrive.Axes; axis++ {
				id := c.ODrive.AxisNodeID(axis)
				v.nodes[iface][id] = sim.NewController(id, reg)
			}
		case c.GeneralPurpose != nil:
			for _, ch := range c.GeneralPurpose.Channels {
				v.hosts[c.GeneralPurpose.Name] = append(v.hosts[c.GeneralPurpose.Name], ch.Interface)
			}
		}
	}
	v.network = bus.NewVirtualNetwork(v.attach)
	return v
}

func (v *virtualRig) attach(channel string, b *bus.VirtualBus) {
	ids := make([]uint32, 0, len(v.nodes[channel]))
	for id := range v.nodes[channel] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		b.Attach(v.nodes[channel][id])
	}
	v.logger.Debug("virtual bus %s: %d simulated node(s)", channel, len(ids))
}

func (v *virtualRig) open(channel string, bitrate int) (bus.Bus, error) {
	return v.network.Open(channel, bitrate)
}

// inspect gives discovery native access to the simulated axis 0.
func (v *virtualRig) inspect(id fixture.Identity) fixture.Inspector {
	node, ok := v.nodes[id.Channel][id.NodeID]
	if !ok {
		return nil
	}
	return node
}

// program emulates flashing the encoder simulator: every axis reachable from
// the host starts seeing the simulated encoder signal.
func (v *virtualRig) program(ctx context.Context, host fixture.Host, hexPath string) error {
	v.logger.Debug("virtual programming of %s with %s", host.Name, hexPath)
	for _, iface := range v.hosts[host.Name] {
		for _, node := range v.nodes[iface] {
			node.SetEncoderVelocity(cases.SimulatedCPS)
		}
	}
	return ctx.Err()
}
