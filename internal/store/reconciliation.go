package store

// ReconciliationMap translates the identifiers a store graph was built with
// (local IDs and mapping keys) into the IDs the document store assigned.
type ReconciliationMap struct {
	ids map[string]string
}

// NewReconciliationMap creates an empty map
func NewReconciliationMap() *ReconciliationMap {
	return &ReconciliationMap{ids: make(map[string]string)}
}

// Add records cloudID for every non-empty alias
func (m *ReconciliationMap) Add(cloudID string, aliases ...string) {
	for _, alias := range aliases {
		if alias != "" {
			m.ids[alias] = cloudID
		}
	}
}

// Resolve returns the cloud ID recorded for ref
func (m *ReconciliationMap) Resolve(ref string) (string, bool) {
	id, ok := m.ids[ref]
	return id, ok
}

// Rewrite maps each reference to its cloud ID. Unknown references are kept
// as they are and duplicates are dropped, preserving first-seen order.
func (m *ReconciliationMap) Rewrite(refs []string) []string {
	out := make([]string, 0, len(refs))
	seen := make(map[string]bool, len(refs))
	for _, ref := range refs {
		if id, ok := m.ids[ref]; ok {
			ref = id
		}
		if seen[ref] {
			continue
		}
		seen[ref] = true
		out = append(out, ref)
	}
	return out
}

// Len returns the number of recorded aliases
func (m *ReconciliationMap) Len() int {
	return len(m.ids)
}
