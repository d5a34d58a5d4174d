package dispatch

// ActiveSet is the ordered set of indicator ids selected for one symbol.
// Activate and Deactivate are idempotent; List keeps activation order.
type ActiveSet struct {
	ids []string
	idx map[string]int
}

// NewActiveSet returns an empty set.
func NewActiveSet() *ActiveSet {
	return &ActiveSet{idx: make(map[string]int, 8)}
}

// Activate adds id. Returns false if it was already present.
func (s *ActiveSet) Activate(id string) bool {
	if _, ok := s.idx[id]; ok {
		return false
	}
	s.idx[id] = len(s.ids)
	s.ids = append(s.ids, id)
	return true
}

// Deactivate removes id. Returns false if it was not present.
func (s *ActiveSet) Deactivate(id string) bool {
	i, ok := s.idx[id]
	if !ok {
		return false
	}
	s.ids = append(s.ids[:i], s.ids[i+1:]...)
	delete(s.idx, id)
	for j := i; j < len(s.ids); j++ {
		s.idx[s.ids[j]] = j
	}
	return true
}

// Has reports whether id is active.
func (s *ActiveSet) Has(id string) bool {
	_, ok := s.idx[id]
	return ok
}

// List returns the active ids in activation order.
func (s *ActiveSet) List() []string {
	out := make([]string, len(s.ids))
	copy(out, s.ids)
	return out
}

// Len returns the number of active ids.
func (s *ActiveSet) Len() int { return len(s.ids) }
