// Package checkpoint persists the small scalar state a step carries to the
// next one.
//
// A Store is a capacity-bounded map from short keys to unsigned integers or
// byte strings. Consumers do not thread keys through their code: they keep
// their step-to-step variables in one struct and declare them once on a
// Binding, which restores them before a step and snapshots them after.
//
//	type state struct {
//	    phase phase
//	    total uint64
//	}
//
//	func (s *state) Bind(b *checkpoint.Binding) {
//	    checkpoint.Phase(b, "phase", &s.phase)
//	    b.Uint64("total", &s.total)
//	}
package checkpoint
