// Package rig loads and validates test rig topology files.
package rig

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ComponentKind is the "type" of a topology entry.
type ComponentKind string

const (
	KindODrive         ComponentKind = "odrive"
	KindGeneralPurpose ComponentKind = "generalpurpose"
)

// DefaultAxes is the number of axes (and encoder inputs) per controller.
const DefaultAxes = 2

// Topology describes the components of one test rig.
type Topology struct {
	Components []Component `yaml:"components"`
}

// Component is one topology entry. Exactly one of ODrive, GeneralPurpose
// or Unknown is set, matching Kind.
type Component struct {
	Kind           ComponentKind
	ODrive         *ODrive
	GeneralPurpose *GeneralPurpose
	Unknown        *Unknown
}

// ODrive is a motor controller with one CAN port.
type ODrive struct {
	Name   string `yaml:"name"`
	Serial string `yaml:"serial-number"`
	// CAN names the bus the controller's CAN port is wired to.
	CAN string `yaml:"can,omitempty"`
	// NodeID is the node id of axis 0; axis n answers on NodeID+n.
	NodeID uint32 `yaml:"node-id"`
	Axes   int    `yaml:"axes,omitempty"`
}

// AxisNodeID returns the node id of axis n.
func (o *ODrive) AxisNodeID(axis int) uint32 {
	return o.NodeID + uint32(axis)
}

// Channel maps one CAN interface of a host to the bus it is wired to.
type Channel struct {
	Interface string
	Bus       string
}

// GeneralPurpose is a host with CAN interfaces and optionally a GPIO wired
// to an encoder simulator's program pin.
type GeneralPurpose struct {
	Name        string
	Channels    []Channel
	ProgramGPIO *int
	// Loader is where the firmware loader runs: "local" or ssh://user@host.
	Loader string
}

// Unknown keeps entries of a type this tool does not handle.
type Unknown struct {
	Type string
	Name string
}

// Name returns the entry's name.
func (c Component) Name() string {
	switch {
	case c.ODrive != nil:
		return c.ODrive.Name
	case c.GeneralPurpose != nil:
		return c.GeneralPurpose.Name
	case c.Unknown != nil:
		return c.Unknown.Name
	}
	return ""
}

// UnmarshalYAML decodes an entry according to its "type" key.
func (c *Component) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: component must be a mapping", node.Line)
	}
	var head struct {
		Type string `yaml:"type"`
		Name string `yaml:"name"`
	}
	if err := node.Decode(&head); err != nil {
		return err
	}

	switch ComponentKind(head.Type) {
	case KindODrive:
		var o ODrive
		if err := node.Decode(&o); err != nil {
			return fmt.Errorf("odrive %s: %w", head.Name, err)
		}
		if o.Axes == 0 {
			o.Axes = DefaultAxes
		}
		*c = Component{Kind: KindODrive, ODrive: &o}
	case KindGeneralPurpose:
		gp, err := decodeGeneralPurpose(node)
		if err != nil {
			return fmt.Errorf("generalpurpose %s: %w", head.Name, err)
		}
		*c = Component{Kind: KindGeneralPurpose, GeneralPurpose: gp}
	default:
		*c = Component{Kind: ComponentKind(head.Type), Unknown: &Unknown{Type: head.Type, Name: head.Name}}
	}
	return nil
}

func decodeGeneralPurpose(node *yaml.Node) (*GeneralPurpose, error) {
	gp := &GeneralPurpose{}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i].Value, node.Content[i+1]
		switch {
		case key == "type":
		case key == "name":
			gp.Name = value.Value
		case key == "loader":
			gp.Loader = value.Value
		case key == "program-gpio":
			var pin int
			if err := value.Decode(&pin); err != nil {
				return nil, fmt.Errorf("program-gpio: %w", err)
			}
			gp.ProgramGPIO = &pin
		case strings.HasPrefix(key, "can"):
			if value.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("%s: bus name must be a scalar", key)
			}
			gp.Channels = append(gp.Channels, Channel{Interface: key, Bus: value.Value})
		}
	}
	return gp, nil
}

type odriveEntry struct {
	Type   ComponentKind `yaml:"type"`
	ODrive `yaml:",inline"`
}

// MarshalYAML writes the entry back in topology file form.
func (c Component) MarshalYAML() (interface{}, error) {
	switch {
	case c.ODrive != nil:
		return odriveEntry{Type: KindODrive, ODrive: *c.ODrive}, nil
	case c.GeneralPurpose != nil:
		gp := c.GeneralPurpose
		node := &yaml.Node{Kind: yaml.MappingNode}
		add := func(key, value string, tag string) {
			node.Content = append(node.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Value: key},
				&yaml.Node{Kind: yaml.ScalarNode, Value: value, Tag: tag})
		}
		add("type", string(KindGeneralPurpose), "")
		if gp.Name != "" {
			add("name", gp.Name, "")
		}
		for _, ch := range gp.Channels {
			add(ch.Interface, ch.Bus, "!!str")
		}
		if gp.ProgramGPIO != nil {
			add("program-gpio", fmt.Sprint(*gp.ProgramGPIO), "!!int")
		}
		if gp.Loader != "" {
			add("loader", gp.Loader, "")
		}
		return node, nil
	case c.Unknown != nil:
		return map[string]string{"type": c.Unknown.Type, "name": c.Unknown.Name}, nil
	}
	return nil, fmt.Errorf("empty component")
}

// Load reads a topology from a YAML file.
func Load(path string) (*Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read topology file: %w", err)
	}
	return Parse(data)
}

// Parse parses topology YAML data.
func Parse(data []byte) (*Topology, error) {
	var t Topology
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse topology YAML: %w", err)
	}
	return &t, nil
}

// Marshal renders the topology as YAML.
func (t *Topology) Marshal() ([]byte, error) {
	return yaml.Marshal(t)
}

// Save writes the topology to path.
func (t *Topology) Save(path string) error {
	data, err := t.Marshal()
	if err != nil {
		return fmt.Errorf("marshal topology: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write topology file: %w", err)
	}
	return nil
}

// Channels maps each bus name to the first host interface wired to it.
func (t *Topology) Channels() map[string]string {
	out := make(map[string]string)
	for _, c := range t.Components {
		if c.GeneralPurpose == nil {
			continue
		}
		for _, ch := range c.GeneralPurpose.Channels {
			if _, ok := out[ch.Bus]; !ok {
				out[ch.Bus] = ch.Interface
			}
		}
	}
	return out
}

// Names returns the names of all entries in file order.
func (t *Topology) Names() []string {
	names := make([]string, 0, len(t.Components))
	for _, c := range t.Components {
		names = append(names, c.Name())
	}
	return names
}
