package spec

import (
	"strings"
	"testing"
)

func TestDefaultRegistryTable(t *testing.T) {
	reg := DefaultRegistry()

	cases := []struct {
		name   string
		id     uint8
		width  int
		fields []string
	}{
		{CmdHeartbeat, 0x001, 8, []string{"error", "current_state"}},
		{CmdEstop, 0x002, 0, nil},
		{CmdSetNodeID, 0x006, 2, []string{"node_id"}},
		{CmdSetInputPos, 0x00c, 8, []string{"input_pos", "vel_ff", "cur_ff"}},
		{CmdSetInputVel, 0x00d, 6, []string{"input_vel", "cur_ff"}},
		{CmdGetVbusVoltage, 0x017, 4, []string{"vbus_voltage"}},
		{CmdClearErrors, 0x018, 0, nil},
	}

	for _, tc := range cases {
		def, ok := reg.Lookup(tc.name)
		if !ok {
			t.Fatalf("missing command %s", tc.name)
		}
		if def.ID != tc.id {
			t.Errorf("%s id = 0x%03x, want 0x%03x", tc.name, def.ID, tc.id)
		}
		if def.Width() != tc.width {
			t.Errorf("%s width = %d, want %d", tc.name, def.Width(), tc.width)
		}
		got := def.FieldNames()
		if len(got) != len(tc.fields) {
			t.Fatalf("%s fields = %v, want %v", tc.name, got, tc.fields)
		}
		for i := range got {
			if got[i] != tc.fields[i] {
				t.Errorf("%s field[%d] = %s, want %s", tc.name, i, got[i], tc.fields[i])
			}
		}
	}

	if len(reg.Names()) != 23 {
		t.Errorf("registry has %d commands, want 23", len(reg.Names()))
	}
}

func TestDefaultRegistryScales(t *testing.T) {
	def, _ := DefaultRegistry().Lookup(CmdSetInputPos)
	want := []float64{1, 0.1, 0.01}
	for i, f := range def.Fields {
		if f.Scale != want[i] {
			t.Errorf("field %s scale = %v, want %v", f.Name, f.Scale, want[i])
		}
	}
	if def.Fields[1].Kind != KindI16 {
		t.Errorf("vel_ff kind = %s, want i16", def.Fields[1].Kind)
	}
}

func TestDefaultRegistrySharedErrorID(t *testing.T) {
	defs := DefaultRegistry().LookupID(0x004)
	if len(defs) != 2 {
		t.Fatalf("LookupID(0x004) returned %d commands, want 2", len(defs))
	}
	if defs[0].Name != CmdGetEncoderError || defs[1].Name != CmdGetSensorlessError {
		t.Errorf("unexpected order: %s, %s", defs[0].Name, defs[1].Name)
	}
}

func TestDefaultRegistryIDsOtherwiseUnique(t *testing.T) {
	seen := map[uint8]string{}
	for _, def := range DefaultRegistry().Commands() {
		if prev, ok := seen[def.ID]; ok && !def.SharesID {
			t.Errorf("id 0x%03x used by %s and %s", def.ID, prev, def.Name)
		}
		seen[def.ID] = def.Name
	}
}

func TestCommandsSortedByID(t *testing.T) {
	cmds := DefaultRegistry().Commands()
	for i := 1; i < len(cmds); i++ {
		if cmds[i-1].ID > cmds[i].ID {
			t.Fatalf("commands not sorted at %d: 0x%03x > 0x%03x", i, cmds[i-1].ID, cmds[i].ID)
		}
	}
}

func TestNewRegistryRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		defs []CommandSpec
		want string
	}{
		{
			name: "duplicate name",
			defs: []CommandSpec{{Name: "a", ID: 1}, {Name: "a", ID: 2}},
			want: "duplicate command name",
		},
		{
			name: "duplicate id",
			defs: []CommandSpec{{Name: "a", ID: 1}, {Name: "b", ID: 1}},
			want: "already used by a",
		},
		{
			name: "id too large",
			defs: []CommandSpec{{Name: "a", ID: 32}},
			want: "exceeds 5 bits",
		},
		{
			name: "zero scale",
			defs: []CommandSpec{{Name: "a", ID: 1, Fields: []FieldSpec{{Name: "x", Kind: KindU8}}}},
			want: "zero scale",
		},
		{
			name: "duplicate field",
			defs: []CommandSpec{{Name: "a", ID: 1, Fields: []FieldSpec{
				{Name: "x", Kind: KindU8, Scale: 1},
				{Name: "x", Kind: KindU8, Scale: 1},
			}}},
			want: "duplicate field",
		},
		{
			name: "payload too wide",
			defs: []CommandSpec{{Name: "a", ID: 1, Fields: []FieldSpec{
				{Name: "x", Kind: KindF32, Scale: 1},
				{Name: "y", Kind: KindF32, Scale: 1},
				{Name: "z", Kind: KindU8, Scale: 1},
			}}},
			want: "exceeds 8",
		},
		{
			name: "unknown kind",
			defs: []CommandSpec{{Name: "a", ID: 1, Fields: []FieldSpec{{Name: "x", Scale: 1}}}},
			want: "unknown kind",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.defs...)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want to contain %q", err.Error(), tt.want)
			}
		})
	}
}

func TestRegistryCopiesFields(t *testing.T) {
	fields := []FieldSpec{{Name: "x", Kind: KindU8, Scale: 1}}
	reg, err := NewRegistry(CommandSpec{Name: "a", ID: 1, Fields: fields})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	fields[0].Name = "mutated"
	def, _ := reg.Lookup("a")
	if def.Fields[0].Name != "x" {
		t.Errorf("registry field mutated through caller slice: %s", def.Fields[0].Name)
	}
}

func TestFieldKindSize(t *testing.T) {
	tests := []struct {
		kind   FieldKind
		size   int
		signed bool
	}{
		{KindU8, 1, false},
		{KindI8, 1, true},
		{KindU16, 2, false},
		{KindI16, 2, true},
		{KindU32, 4, false},
		{KindI32, 4, true},
		{KindF32, 4, false},
	}
	for _, tt := range tests {
		if tt.kind.Size() != tt.size {
			t.Errorf("%s Size() = %d, want %d", tt.kind, tt.kind.Size(), tt.size)
		}
		if tt.kind.Signed() != tt.signed {
			t.Errorf("%s Signed() = %v, want %v", tt.kind, tt.kind.Signed(), tt.signed)
		}
	}
	if FieldKind(99).String() != "kind(99)" {
		t.Errorf("unknown kind string = %s", FieldKind(99).String())
	}
}
