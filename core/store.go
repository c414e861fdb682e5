package core

import "bytes"

// compareMessages is the total order (§4.3, §9): higher (timestamp, hash)
// wins; on an exact tie, ADD beats REMOVE. It returns true if a should
// replace b.
func compareMessages(a, b *Message) bool {
	at, bt := a.TsHash(), b.TsHash()
	if at != bt {
		return bytes.Compare(at[:], bt[:]) > 0
	}
	if a.Type.IsAdd() != b.Type.IsAdd() {
		return a.Type.IsAdd()
	}
	return false
}

// bodyKeyFunc extracts the fixed-width body key a message is keyed by for
// CRDT lookup and the by-body-key secondary index.
type bodyKeyFunc func(m *Message) []byte
