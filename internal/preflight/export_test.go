package preflight

// SetGeteuid replaces the effective UID lookup in tests.
func (g *IptablesGate) SetGeteuid(fn func() int) {
	g.geteuid = fn
}
