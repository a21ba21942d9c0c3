package engine

// integrityMonitor counts visible->hidden transitions while a session is in progress.
type integrityMonitor struct {
	active     bool
	hidden     bool
	violations int
}

func startIntegrityMonitor() *integrityMonitor {
	return &integrityMonitor{active: true}
}

// observe records a visibility signal and reports whether it was a new violation.
func (m *integrityMonitor) observe(hidden bool) bool {
	if !m.active {
		return false
	}
	wasHidden := m.hidden
	m.hidden = hidden
	if hidden && !wasHidden {
		m.violations++
		return true
	}
	return false
}

func (m *integrityMonitor) stop() {
	m.active = false
}
