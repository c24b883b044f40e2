package model

// MemoryZone is an ordered, strictly additive sequence of summary texts
// that survives every history reduction. It is never touched by a session
// reset and is cleared only by explicit administrator action.
type MemoryZone struct {
	Entries []string
}

// Append adds a summary to the end of the memory zone.
func (z *MemoryZone) Append(summary string) {
	z.Entries = append(z.Entries, summary)
}

// Clone returns a deep copy whose backing array is independent of z.
func (z MemoryZone) Clone() MemoryZone {
	out := MemoryZone{Entries: make([]string, len(z.Entries))}
	copy(out.Entries, z.Entries)
	return out
}

// Clear empties the memory zone. Reserved for explicit administrator
// action; never invoked by Session.Reset.
func (z *MemoryZone) Clear() {
	z.Entries = nil
}
