package alert

// Config is the part of the device configuration that shapes the alert output.
// Thresholds are expected to be quantized already.
type Config struct {
	Mode       OutputMode
	Polarity   Polarity
	Response   ResponseMode
	Hysteresis Hysteresis
	Enabled    bool
	Lower      float64
	Upper      float64
	Crit       float64
}

// Transition describes what a single temperature observation changed.
type Transition struct {
	Temperature float64
	From        Region
	To          Region
	WasActive   bool
	Active      bool
}

// Crossed reports whether the observation moved the machine to another region.
func (t Transition) Crossed() bool {
	return t.From != t.To
}

// Asserted reports an inactive to active pin transition.
func (t Transition) Asserted() bool {
	return !t.WasActive && t.Active
}

// Released reports an active to inactive pin transition.
func (t Transition) Released() bool {
	return t.WasActive && !t.Active
}

// Machine reproduces how the ALERT pin follows temperature for a given
// configuration. It is not safe for concurrent use.
//
// Warming moves between regions immediately. Cooling out of the upper or
// critical region only happens once the temperature is below the threshold
// minus hysteresis. In interrupt mode every region change latches the output
// until Clear; while above the critical threshold the output is forced active
// and Clear has no effect.
type Machine struct {
	cfg     Config
	region  Region
	known   bool
	latched bool
}

func NewMachine(cfg Config) *Machine {
	return &Machine{cfg: cfg}
}

func (m *Machine) Config() Config {
	return m.cfg
}

// Configure replaces the configuration. The region memory and any latched
// event survive, as they do on the device.
func (m *Machine) Configure(cfg Config) {
	m.cfg = cfg
}

// Region returns the hysteresis aware region of the last observation.
func (m *Machine) Region() Region {
	return m.region
}

// Pending reports whether an interrupt event is latched.
func (m *Machine) Pending() bool {
	return m.latched
}

// Observe feeds a new temperature sample to the machine.
func (m *Machine) Observe(t float64) Transition {
	tr := Transition{Temperature: t, From: m.region, WasActive: m.Active()}
	next := m.classify(t)
	if m.known && next != m.region && m.latching() {
		m.latched = true
	}
	if !m.known {
		tr.From = next
	}
	m.region = next
	m.known = true
	tr.To = next
	tr.Active = m.Active()
	return tr
}

// Clear acknowledges a latched interrupt. It reports whether the output is
// inactive afterwards. Clearing with nothing latched is a no-op.
func (m *Machine) Clear() bool {
	if m.cfg.Mode == Interrupt && m.region == AboveCrit {
		return !m.Active()
	}
	m.latched = false
	return !m.Active()
}

// Active returns the logical state of the alert output.
func (m *Machine) Active() bool {
	if !m.cfg.Enabled || !m.known {
		return false
	}
	if m.region == AboveCrit {
		return true
	}
	if m.cfg.Response == OnlyCrit {
		return false
	}
	if m.cfg.Mode == Comparator {
		return m.region != Between
	}
	return m.latched
}

// Level returns the electrical level of the pin, true meaning high.
func (m *Machine) Level() bool {
	if m.cfg.Polarity == ActiveHigh {
		return m.Active()
	}
	return !m.Active()
}

func (m *Machine) latching() bool {
	return m.cfg.Enabled && m.cfg.Mode == Interrupt && m.cfg.Response == UpperLowerCrit
}

func (m *Machine) classify(t float64) Region {
	raw := Classify(t, m.cfg.Lower, m.cfg.Upper, m.cfg.Crit)
	if !m.known || raw >= m.region {
		return raw
	}
	// cooling: the lower boundary is an activation and is never delayed
	h := m.cfg.Hysteresis.Celsius()
	cooled := Classify(t, m.cfg.Lower, m.cfg.Upper-h, m.cfg.Crit-h)
	if cooled > m.region {
		return m.region
	}
	return cooled
}
