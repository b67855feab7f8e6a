package spec

// Command names of the motor controller CAN protocol.
const (
	CmdHeartbeat              = "heartbeat"
	CmdEstop                  = "estop"
	CmdGetMotorError          = "get_motor_error"
	CmdGetEncoderError        = "get_encoder_error"
	CmdGetSensorlessError     = "get_sensorless_error"
	CmdSetNodeID              = "set_node_id"
	CmdSetRequestedState      = "set_requested_state"
	CmdGetEncoderEstimates    = "get_encoder_estimates"
	CmdGetEncoderCount        = "get_encoder_count"
	CmdSetControllerModes     = "set_controller_modes"
	CmdSetInputPos            = "set_input_pos"
	CmdSetInputVel            = "set_input_vel"
	CmdSetInputCurrent        = "set_input_current"
	CmdSetVelocityLimit       = "set_velocity_limit"
	CmdStartAnticogging       = "start_anticogging"
	CmdSetTrajVelLimit        = "set_traj_vel_limit"
	CmdSetTrajAccelLimits     = "set_traj_accel_limits"
	CmdSetTrajAPerCSS         = "set_traj_a_per_css"
	CmdGetIQ                  = "get_iq"
	CmdGetSensorlessEstimates = "get_sensorless_estimates"
	CmdReboot                 = "reboot"
	CmdGetVbusVoltage         = "get_vbus_voltage"
	CmdClearErrors            = "clear_errors"
)

func u32(name string) FieldSpec { return FieldSpec{Name: name, Kind: KindU32, Scale: 1} }
func f32(name string) FieldSpec { return FieldSpec{Name: name, Kind: KindF32, Scale: 1} }
func i32(name string, scale float64) FieldSpec {
	return FieldSpec{Name: name, Kind: KindI32, Scale: scale}
}
func i16(name string, scale float64) FieldSpec {
	return FieldSpec{Name: name, Kind: KindI16, Scale: scale}
}

func defaultCommands() []CommandSpec {
	return []CommandSpec{
		{Name: CmdHeartbeat, ID: 0x001, Fields: []FieldSpec{u32("error"), u32("current_state")}},
		{Name: CmdEstop, ID: 0x002},
		{Name: CmdGetMotorError, ID: 0x003, Fields: []FieldSpec{u32("motor_error")}},
		{Name: CmdGetEncoderError, ID: 0x004, Fields: []FieldSpec{u32("encoder_error")}},
		// Firmware tables list 0x004 for both error getters. Kept as-is so the
		// wire format matches deployed controllers.
		{Name: CmdGetSensorlessError, ID: 0x004, Fields: []FieldSpec{u32("sensorless_error")}, SharesID: true},
		{Name: CmdSetNodeID, ID: 0x006, Fields: []FieldSpec{{Name: "node_id", Kind: KindU16, Scale: 1}}},
		{Name: CmdSetRequestedState, ID: 0x007, Fields: []FieldSpec{u32("requested_state")}},
		{Name: CmdGetEncoderEstimates, ID: 0x009, Fields: []FieldSpec{f32("encoder_pos_estimate"), f32("encoder_vel_estimate")}},
		{Name: CmdGetEncoderCount, ID: 0x00a, Fields: []FieldSpec{i32("encoder_shadow_count", 1), i32("encoder_count", 1)}},
		{Name: CmdSetControllerModes, ID: 0x00b, Fields: []FieldSpec{i32("control_mode", 1), i32("input_mode", 1)}},
		{Name: CmdSetInputPos, ID: 0x00c, Fields: []FieldSpec{i32("input_pos", 1), i16("vel_ff", 0.1), i16("cur_ff", 0.01)}},
		{Name: CmdSetInputVel, ID: 0x00d, Fields: []FieldSpec{i32("input_vel", 0.01), i16("cur_ff", 0.01)}},
		{Name: CmdSetInputCurrent, ID: 0x00e, Fields: []FieldSpec{i32("input_current", 0.01)}},
		{Name: CmdSetVelocityLimit, ID: 0x00f, Fields: []FieldSpec{f32("velocity_limit")}},
		{Name: CmdStartAnticogging, ID: 0x010},
		{Name: CmdSetTrajVelLimit, ID: 0x011, Fields: []FieldSpec{f32("traj_vel_limit")}},
		{Name: CmdSetTrajAccelLimits, ID: 0x012, Fields: []FieldSpec{f32("traj_accel_limit"), f32("traj_decel_limit")}},
		{Name: CmdSetTrajAPerCSS, ID: 0x013, Fields: []FieldSpec{f32("a_per_css")}},
		{Name: CmdGetIQ, ID: 0x014, Fields: []FieldSpec{f32("iq_setpoint"), f32("iq_measured")}},
		{Name: CmdGetSensorlessEstimates, ID: 0x015, Fields: []FieldSpec{f32("sensorless_pos_estimate"), f32("sensorless_vel_estimate")}},
		{Name: CmdReboot, ID: 0x016},
		{Name: CmdGetVbusVoltage, ID: 0x017, Fields: []FieldSpec{f32("vbus_voltage")}},
		{Name: CmdClearErrors, ID: 0x018},
	}
}
