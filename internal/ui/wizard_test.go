package ui

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/tturner/canrig/internal/rig"
)

func TestBuildTopologyDefaults(t *testing.T) {
	a := DefaultAnswers()
	a.Serial = "205F3388304E"
	a.ProgramGPIO = "26"
	top, err := BuildTopology(a)
	if err != nil {
		t.Fatalf("BuildTopology: %v", err)
	}
	o := top.Components[0].ODrive
	if o.Name != "odrv0" || o.CAN != "canbus0" || o.NodeID != 0 || o.Axes != 2 {
		t.Errorf("odrive = %+v", o)
	}
	gp := top.Components[1].GeneralPurpose
	if gp.Loader != "" || gp.ProgramGPIO == nil || *gp.ProgramGPIO != 26 {
		t.Errorf("host = %+v", gp)
	}
	if ch := top.Channels(); ch["canbus0"] != "can0" {
		t.Errorf("Channels() = %v", ch)
	}

	path := filepath.Join(t.TempDir(), "rig.yaml")
	if err := top.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := rig.Load(path)
	if err != nil || loaded.Validate() != nil {
		t.Fatalf("Load: %v", err)
	}
}

func TestBuildTopologyRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*WizardAnswers)
	}{
		{"missing serial", func(a *WizardAnswers) {}},
		{"bad node id", func(a *WizardAnswers) { a.Serial = "x"; a.NodeID = "abc" }},
		{"node id range", func(a *WizardAnswers) { a.Serial = "x"; a.NodeID = "63" }},
		{"bad gpio", func(a *WizardAnswers) { a.Serial = "x"; a.ProgramGPIO = "pin" }},
		{"bad loader", func(a *WizardAnswers) { a.Serial = "x"; a.Loader = "ftp://x" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := DefaultAnswers()
			tt.mutate(&a)
			if _, err := BuildTopology(a); err == nil {
				t.Error("BuildTopology() should fail")
			}
		})
	}

	a := DefaultAnswers()
	_, err := BuildTopology(a)
	var verrs rig.ValidationErrors
	if !errors.As(err, &verrs) {
		t.Errorf("missing serial error = %v, want ValidationErrors", err)
	}
}

func TestFieldValidators(t *testing.T) {
	if validateUint(62)("62") != nil || validateUint(62)("63") == nil || validateUint(62)("x") == nil {
		t.Error("validateUint bounds")
	}
	if validateOptionalUint("") != nil || validateOptionalUint("-1") == nil {
		t.Error("validateOptionalUint")
	}
	if required("name")(" ") == nil {
		t.Error("required should reject blank input")
	}
}

func TestBuildWizardForm(t *testing.T) {
	a := DefaultAnswers()
	if BuildWizardForm(&a) == nil {
		t.Fatal("BuildWizardForm returned nil")
	}
}
