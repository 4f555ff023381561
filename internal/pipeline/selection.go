package pipeline

import "sync"

// Selection is the cross-partition multi-select set, keyed by lead id.
type Selection struct {
	mu    sync.Mutex
	ids   map[string]struct{}
	order []string
}

func NewSelection() *Selection {
	return &Selection{ids: make(map[string]struct{})}
}

// Toggle handles a selection gesture. Without extend, an unselected id
// replaces the selection and a selected id is deselected. With extend, the
// id's membership flips and the rest is untouched.
func (s *Selection) Toggle(id string, extend bool) {
	if id == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, selected := s.ids[id]
	switch {
	case selected:
		s.removeLocked(id)
	case extend:
		s.ids[id] = struct{}{}
		s.order = append(s.order, id)
	default:
		s.ids = map[string]struct{}{id: {}}
		s.order = []string{id}
	}
}

// Clear empties the selection.
func (s *Selection) Clear() {
	s.mu.Lock()
	s.ids = make(map[string]struct{})
	s.order = nil
	s.mu.Unlock()
}

// Remove drops id if present.
func (s *Selection) Remove(id string) {
	s.mu.Lock()
	s.removeLocked(id)
	s.mu.Unlock()
}

func (s *Selection) removeLocked(id string) {
	if _, ok := s.ids[id]; !ok {
		return
	}
	delete(s.ids, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *Selection) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}

// IDs returns selected ids in selection order.
func (s *Selection) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

func (s *Selection) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}
