package platform

// PowerState answers the CANARY reboot-deferral check of §4.F.5 by reading
// the POWER_STATE device property a real platform build keeps current.
type PowerState struct {
	props *DeviceProperties
}

func NewPowerState(props *DeviceProperties) *PowerState {
	return &PowerState{props: props}
}

// IsOn reports whether POWER_STATE reads "ON". An absent property is
// treated as off, since a platform that can't report power state can't be
// trusted to defer a reboot either.
func (p *PowerState) IsOn() bool {
	v, ok := p.props.Get("POWER_STATE")
	return ok && v == "ON"
}
