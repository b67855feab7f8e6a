package spec

import (
	"fmt"
	"sort"
	"sync"
)

// MaxCommandID is the largest command id that fits the 5 low bits of an
// arbitration id.
const MaxCommandID = 0x1F

// MaxPayload is the classic CAN data length limit.
const MaxPayload = 8

// FieldKind is the binary encoding of one field.
type FieldKind uint8

const (
	KindU8 FieldKind = iota + 1
	KindU16
	KindU32
	KindI8
	KindI16
	KindI32
	KindF32
)

var fieldKindNames = map[FieldKind]string{
	KindU8:  "u8",
	KindU16: "u16",
	KindU32: "u32",
	KindI8:  "i8",
	KindI16: "i16",
	KindI32: "i32",
	KindF32: "f32",
}

func (k FieldKind) String() string {
	if name, ok := fieldKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Size returns the encoded width in bytes.
func (k FieldKind) Size() int {
	switch k {
	case KindU8, KindI8:
		return 1
	case KindU16, KindI16:
		return 2
	case KindU32, KindI32, KindF32:
		return 4
	default:
		return 0
	}
}

// Signed reports whether the kind is a signed integer.
func (k FieldKind) Signed() bool {
	return k == KindI8 || k == KindI16 || k == KindI32
}

// Float reports whether the kind is an IEEE-754 float.
func (k FieldKind) Float() bool {
	return k == KindF32
}

// FieldSpec describes one payload field.
type FieldSpec struct {
	Name  string
	Kind  FieldKind
	Scale float64
}

// CommandSpec describes one protocol command.
type CommandSpec struct {
	Name   string
	ID     uint8
	Fields []FieldSpec
	// SharesID marks a definition that deliberately reuses another command's id.
	SharesID bool
}

// Width returns the total payload size in bytes.
func (c CommandSpec) Width() int {
	total := 0
	for _, f := range c.Fields {
		total += f.Kind.Size()
	}
	return total
}

// FieldNames returns field names in declared order.
func (c CommandSpec) FieldNames() []string {
	names := make([]string, len(c.Fields))
	for i, f := range c.Fields {
		names[i] = f.Name
	}
	return names
}

// Registry holds the command definitions. It is immutable after construction.
type Registry struct {
	byName map[string]CommandSpec
	byID   map[uint8][]CommandSpec
	order  []string
}

// NewRegistry validates defs and builds a registry from them.
func NewRegistry(defs ...CommandSpec) (*Registry, error) {
	r := &Registry{
		byName: make(map[string]CommandSpec, len(defs)),
		byID:   make(map[uint8][]CommandSpec),
	}
	for _, def := range defs {
		if err := r.add(def); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) add(def CommandSpec) error {
	if def.Name == "" {
		return fmt.Errorf("command with id 0x%03x has no name", def.ID)
	}
	if _, exists := r.byName[def.Name]; exists {
		return fmt.Errorf("duplicate command name %q", def.Name)
	}
	if def.ID > MaxCommandID {
		return fmt.Errorf("command %s: id 0x%03x exceeds 5 bits", def.Name, def.ID)
	}
	if others := r.byID[def.ID]; len(others) > 0 && !def.SharesID {
		return fmt.Errorf("command %s: id 0x%03x already used by %s", def.Name, def.ID, others[0].Name)
	}
	seen := make(map[string]bool, len(def.Fields))
	for _, f := range def.Fields {
		if f.Name == "" {
			return fmt.Errorf("command %s: field with empty name", def.Name)
		}
		if seen[f.Name] {
			return fmt.Errorf("command %s: duplicate field %q", def.Name, f.Name)
		}
		seen[f.Name] = true
		if f.Kind.Size() == 0 {
			return fmt.Errorf("command %s: field %s has unknown kind %s", def.Name, f.Name, f.Kind)
		}
		if f.Scale == 0 {
			return fmt.Errorf("command %s: field %s has zero scale", def.Name, f.Name)
		}
	}
	if def.Width() > MaxPayload {
		return fmt.Errorf("command %s: payload %d bytes exceeds %d", def.Name, def.Width(), MaxPayload)
	}

	fields := make([]FieldSpec, len(def.Fields))
	copy(fields, def.Fields)
	def.Fields = fields

	r.byName[def.Name] = def
	r.byID[def.ID] = append(r.byID[def.ID], def)
	r.order = append(r.order, def.Name)
	return nil
}

// Lookup finds a command by name.
func (r *Registry) Lookup(name string) (CommandSpec, bool) {
	def, ok := r.byName[name]
	return def, ok
}

// LookupID returns every command registered under id, in registration order.
func (r *Registry) LookupID(id uint8) []CommandSpec {
	defs := r.byID[id]
	out := make([]CommandSpec, len(defs))
	copy(out, defs)
	return out
}

// Names returns command names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Commands returns all definitions sorted by id. Commands sharing an id
// keep registration order.
func (r *Registry) Commands() []CommandSpec {
	out := make([]CommandSpec, 0, len(r.byName))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// DefaultRegistry returns the shared motor controller command registry.
func DefaultRegistry() *Registry {
	defaultOnce.Do(func() {
		registry, err := NewRegistry(defaultCommands()...)
		if err != nil {
			panic(fmt.Sprintf("default command table: %v", err))
		}
		defaultRegistry = registry
	})
	return defaultRegistry
}
