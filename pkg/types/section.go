package types

// Section is a node in a parsed document tree.
type Section struct {
	Title    string    `json:"title"`
	Level    int       `json:"level"`
	Content  string    `json:"content"`
	Sections []Section `json:"sections"`
}

// Validate checks the structural invariants of the tree rooted at s.
func (s *Section) Validate() error {
	if s.Level < 0 {
		return ErrNegativeLevel
	}
	for i := range s.Sections {
		if err := s.Sections[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the number of nodes in the tree rooted at s.
func (s *Section) Count() int {
	n := 1
	for i := range s.Sections {
		n += s.Sections[i].Count()
	}
	return n
}
