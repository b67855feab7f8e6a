package rig

import (
	"fmt"
	"strings"
)

// MaxNodeID is the largest node id that fits an 11-bit arbitration id.
const MaxNodeID = 63

// ValidationError represents a topology validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("topology validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// Validate checks recognized entries for missing or conflicting
// attributes. Entries of unknown type are not checked here; see Unknowns.
func (t *Topology) Validate() error {
	var errs ValidationErrors

	if len(t.Components) == 0 {
		errs = append(errs, ValidationError{"components", "at least one component is required"})
	}

	names := map[string]int{}
	interfaces := map[string]string{}
	for i, c := range t.Components {
		field := fmt.Sprintf("components[%d]", i)
		if name := c.Name(); name != "" {
			if prev, dup := names[name]; dup {
				errs = append(errs, ValidationError{field + ".name", fmt.Sprintf("%q already used by components[%d]", name, prev)})
			}
			names[name] = i
		}

		switch {
		case c.ODrive != nil:
			o := c.ODrive
			if o.Name == "" {
				errs = append(errs, ValidationError{field + ".name", "required"})
			}
			if o.Serial == "" {
				errs = append(errs, ValidationError{field + ".serial-number", "required"})
			}
			if o.Axes < 1 || o.Axes > DefaultAxes {
				errs = append(errs, ValidationError{field + ".axes", fmt.Sprintf("must be between 1 and %d", DefaultAxes)})
			}
			if last := o.AxisNodeID(o.Axes - 1); last > MaxNodeID {
				errs = append(errs, ValidationError{field + ".node-id", fmt.Sprintf("axis node ids must not exceed %d", MaxNodeID)})
			}
		case c.GeneralPurpose != nil:
			gp := c.GeneralPurpose
			for _, ch := range gp.Channels {
				if ch.Bus == "" {
					errs = append(errs, ValidationError{field + "." + ch.Interface, "bus name required"})
				}
				if owner, dup := interfaces[ch.Interface]; dup {
					errs = append(errs, ValidationError{field + "." + ch.Interface, fmt.Sprintf("interface already declared by %s", owner)})
				}
				interfaces[ch.Interface] = field
			}
			if gp.ProgramGPIO != nil && *gp.ProgramGPIO < 0 {
				errs = append(errs, ValidationError{field + ".program-gpio", "must not be negative"})
			}
			if gp.Loader != "" && gp.Loader != "local" && !strings.HasPrefix(gp.Loader, "ssh://") {
				errs = append(errs, ValidationError{field + ".loader", "must be 'local' or ssh://user@host"})
			}
		case c.Unknown != nil && c.Unknown.Type == "":
			errs = append(errs, ValidationError{field + ".type", "required"})
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Unknowns returns entries whose type is not recognized.
func (t *Topology) Unknowns() []Unknown {
	var out []Unknown
	for _, c := range t.Components {
		if c.Unknown != nil && c.Unknown.Type != "" {
			out = append(out, *c.Unknown)
		}
	}
	return out
}
