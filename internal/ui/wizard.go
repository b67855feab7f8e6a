// Package ui holds the interactive rig wizard.
package ui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/tturner/canrig/internal/rig"
)

// WizardAnswers are the raw form values of the rig wizard.
type WizardAnswers struct {
	ControllerName string
	Serial         string
	NodeID         string
	Axes           string
	Bus            string
	HostName       string
	Interface      string
	ProgramGPIO    string
	Loader         string
}

// DefaultAnswers pre-fills the wizard for a single-controller bench.
func DefaultAnswers() WizardAnswers {
	return WizardAnswers{
		ControllerName: "odrv0",
		NodeID:         "0",
		Axes:           strconv.Itoa(rig.DefaultAxes),
		Bus:            "canbus0",
		HostName:       "rig-pc",
		Interface:      "can0",
		Loader:         "local",
	}
}

func validateUint(max int) func(string) error {
	return func(s string) error {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil || n < 0 || n > max {
			return fmt.Errorf("enter a number between 0 and %d", max)
		}
		return nil
	}
}

func validateOptionalUint(s string) error {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return validateUint(1 << 16)(s)
}

func required(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

// BuildWizardForm binds a huh form to a.
func BuildWizardForm(a *WizardAnswers) *huh.Form {
	controller := huh.NewGroup(
		huh.NewInput().
			Title("Controller name").
			Description("Name used in test output, e.g. odrv0.").
			Key("controller_name").
			Validate(required("name")).
			Value(&a.ControllerName),
		huh.NewInput().
			Title("Serial number").
			Description("Printed on the board or shown by the vendor tool.").
			Key("serial").
			Validate(required("serial number")).
			Value(&a.Serial),
		huh.NewInput().
			Title("Node id of axis 0").
			Description("Axis n answers on node id + n.").
			Key("node_id").
			Validate(validateUint(rig.MaxNodeID - 1)).
			Value(&a.NodeID),
		huh.NewInput().
			Title("Axes").
			Key("axes").
			Validate(validateUint(rig.DefaultAxes)).
			Value(&a.Axes),
	).Title("Controller")

	host := huh.NewGroup(
		huh.NewInput().
			Title("Bus name").
			Description("Logical name of the CAN bus the controller is wired to.").
			Key("bus").
			Validate(required("bus name")).
			Value(&a.Bus),
		huh.NewInput().
			Title("Host name").
			Key("host").
			Value(&a.HostName),
		huh.NewInput().
			Title("CAN interface").
			Description("Host interface on that bus, e.g. can0.").
			Key("interface").
			Validate(required("interface")).
			Value(&a.Interface),
		huh.NewInput().
			Title("Program GPIO (optional)").
			Description("GPIO wired to the encoder simulator's program pin.").
			Key("program_gpio").
			Validate(validateOptionalUint).
			Value(&a.ProgramGPIO),
		huh.NewInput().
			Title("Loader").
			Description("Where the firmware loader runs: local or ssh://user@host.").
			Key("loader").
			Value(&a.Loader),
	).Title("Rig host")

	return huh.NewForm(controller, host)
}

// BuildTopology turns wizard answers into a validated topology.
func BuildTopology(a WizardAnswers) (*rig.Topology, error) {
	nodeID, err := strconv.Atoi(strings.TrimSpace(a.NodeID))
	if err != nil {
		return nil, fmt.Errorf("node id: %w", err)
	}
	axes := rig.DefaultAxes
	if s := strings.TrimSpace(a.Axes); s != "" {
		if axes, err = strconv.Atoi(s); err != nil {
			return nil, fmt.Errorf("axes: %w", err)
		}
	}
	gp := &rig.GeneralPurpose{
		Name:     strings.TrimSpace(a.HostName),
		Channels: []rig.Channel{{Interface: strings.TrimSpace(a.Interface), Bus: strings.TrimSpace(a.Bus)}},
		Loader:   strings.TrimSpace(a.Loader),
	}
	if gp.Loader == "local" {
		gp.Loader = ""
	}
	if s := strings.TrimSpace(a.ProgramGPIO); s != "" {
		pin, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("program gpio: %w", err)
		}
		gp.ProgramGPIO = &pin
	}

	top := &rig.Topology{Components: []rig.Component{
		{Kind: rig.KindODrive, ODrive: &rig.ODrive{
			Name:   strings.TrimSpace(a.ControllerName),
			Serial: strings.TrimSpace(a.Serial),
			CAN:    strings.TrimSpace(a.Bus),
			NodeID: uint32(nodeID),
			Axes:   axes,
		}},
		{Kind: rig.KindGeneralPurpose, GeneralPurpose: gp},
	}}
	if err := top.Validate(); err != nil {
		return nil, err
	}
	return top, nil
}

// RunWizard asks for one controller and its host and writes the rig file.
func RunWizard(path string) (*rig.Topology, error) {
	answers := DefaultAnswers()
	if err := BuildWizardForm(&answers).Run(); err != nil {
		return nil, err
	}
	top, err := BuildTopology(answers)
	if err != nil {
		return nil, err
	}
	if err := top.Save(path); err != nil {
		return nil, err
	}
	return top, nil
}
