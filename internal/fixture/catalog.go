package fixture

import (
	"fmt"
	"sort"
	"time"

	"github.com/tturner/canrig/internal/can/bus"
	"github.com/tturner/canrig/internal/can/session"
	"github.com/tturner/canrig/internal/can/spec"
	"github.com/tturner/canrig/internal/logging"
	"github.com/tturner/canrig/internal/rig"
)

// DefaultDiscoveryTimeout bounds how long a controller may take to show up.
const DefaultDiscoveryTimeout = 5 * time.Second

// Env carries everything Build needs to wire fixtures to the outside world.
type Env struct {
	// Links is shared by channel fixtures and discovery. When nil, Build
	// creates one over Opener.
	Links   *Links
	Opener  bus.Opener
	Bitrate int

	// Discoverer defaults to a HeartbeatDiscoverer over Links.
	Discoverer       Discoverer
	DiscoveryTimeout time.Duration
	Inspect          func(Identity) Inspector

	Registry *spec.Registry
	Logger   *logging.Logger
	Session  session.Options

	// Ignore lists component names to leave out of the catalog.
	Ignore []string
	// Strict rejects components of unknown type instead of skipping them.
	Strict bool
}

// Catalog holds the fixtures of one rig, grouped by kind.
type Catalog struct {
	links    *Links
	all      []Fixture
	byKind   map[Kind][]Fixture
	warnings []string
}

// Build validates the topology and creates one fixture per piece of
// hardware. Nothing is activated.
func Build(top *rig.Topology, env Env) (*Catalog, error) {
	if top == nil {
		return nil, fmt.Errorf("no topology")
	}
	if err := top.Validate(); err != nil {
		return nil, err
	}

	logger := env.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	reg := env.Registry
	if reg == nil {
		reg = spec.DefaultRegistry()
	}
	links := env.Links
	if links == nil {
		links = NewLinks(env.Opener, env.Bitrate)
	}
	discoverer := env.Discoverer
	if discoverer == nil {
		discoverer = &HeartbeatDiscoverer{
			Links:    links,
			Registry: reg,
			Logger:   logger,
			Options:  env.Session,
			Inspect:  env.Inspect,
		}
	}
	timeout := env.DiscoveryTimeout
	if timeout <= 0 {
		timeout = DefaultDiscoveryTimeout
	}

	ignored := map[string]bool{}
	for _, name := range env.Ignore {
		ignored[name] = false
	}

	cat := &Catalog{links: links, byKind: make(map[Kind][]Fixture)}
	channels := wiredChannels(top, ignored)
	newSession := func(b bus.Bus) *session.Session {
		return session.New(b, reg, logger, env.Session)
	}

	for _, comp := range top.Components {
		name := comp.Name()
		if _, skip := ignored[name]; skip && name != "" {
			ignored[name] = true
			logger.Debug("ignoring component %s", name)
			continue
		}

		switch {
		case comp.ODrive != nil:
			o := comp.ODrive
			id := Identity{
				Name:    o.Name,
				Serial:  o.Serial,
				Bus:     o.CAN,
				Channel: channels[o.CAN],
				NodeID:  o.NodeID,
				Axes:    o.Axes,
			}
			ctrl := newController(id, discoverer, timeout, logger)
			cat.add(ctrl)
			for _, enc := range ctrl.Encoders() {
				cat.add(enc)
			}
		case comp.GeneralPurpose != nil:
			gp := comp.GeneralPurpose
			host := Host{Name: gp.Name, ProgramGPIO: gp.ProgramGPIO, Loader: gp.Loader}
			for _, ch := range gp.Channels {
				cat.add(&CANChannel{
					host:    host,
					iface:   ch.Interface,
					bus:     ch.Bus,
					links:   links,
					newSess: newSession,
				})
			}
		default:
			kind := string(comp.Kind)
			if env.Strict {
				return nil, fmt.Errorf("test rig has unsupported component %s", kind)
			}
			msg := "test rig has unsupported component " + kind
			logger.Warn("%s", msg)
			cat.warnings = append(cat.warnings, msg)
		}
	}

	var unmatched []string
	for name, used := range ignored {
		if !used {
			unmatched = append(unmatched, name)
		}
	}
	sort.Strings(unmatched)
	for _, name := range unmatched {
		msg := fmt.Sprintf("ignored component %s is not in the test rig", name)
		logger.Warn("%s", msg)
		cat.warnings = append(cat.warnings, msg)
	}

	return cat, nil
}

// wiredChannels maps buses to interfaces of the hosts taking part in the run.
func wiredChannels(top *rig.Topology, ignored map[string]bool) map[string]string {
	wired := &rig.Topology{}
	for _, comp := range top.Components {
		if _, skip := ignored[comp.Name()]; skip && comp.Name() != "" {
			continue
		}
		wired.Components = append(wired.Components, comp)
	}
	return wired.Channels()
}

func (c *Catalog) add(f Fixture) {
	c.all = append(c.all, f)
	c.byKind[f.Kind()] = append(c.byKind[f.Kind()], f)
}

// Lookup returns the fixtures of kind in topology order. The result is
// never nil.
func (c *Catalog) Lookup(kind Kind) []Fixture {
	out := make([]Fixture, len(c.byKind[kind]))
	copy(out, c.byKind[kind])
	return out
}

// Kinds returns the kinds present in the catalog.
func (c *Catalog) Kinds() []Kind {
	out := make([]Kind, 0, len(c.byKind))
	for k := range c.byKind {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// All returns every fixture in creation order.
func (c *Catalog) All() []Fixture {
	out := make([]Fixture, len(c.all))
	copy(out, c.all)
	return out
}

// Find returns the fixture with the given name.
func (c *Catalog) Find(name string) (Fixture, bool) {
	for _, f := range c.all {
		if f.Name() == name {
			return f, true
		}
	}
	return nil, false
}

// Warnings returns the warnings raised while building.
func (c *Catalog) Warnings() []string {
	return append([]string(nil), c.warnings...)
}

// Links returns the link pool backing the catalog.
func (c *Catalog) Links() *Links { return c.links }

// Close releases every bus opened by activated fixtures.
func (c *Catalog) Close() error {
	return c.links.Close()
}
