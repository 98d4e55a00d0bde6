// Package manifest loads the sample table that drives per-sample fan-out and
// per-group fan-in.
package manifest

// Sample is one row of the sample table. Immutable after load.
type Sample struct {
	ID    string // unique key
	Read1 string // first raw input file
	Read2 string // second raw input file
	Group string // merge-group label, shared by samples aggregated together
}

// Samples is the ordered sample collection. Order is manifest row order.
type Samples struct {
	list  []Sample
	index map[string]int
}

// NewSamples builds a collection from records, rejecting duplicate IDs.
func NewSamples(records []Sample) (*Samples, error) {
	s := &Samples{
		list:  make([]Sample, 0, len(records)),
		index: make(map[string]int, len(records)),
	}
	for _, rec := range records {
		if _, exists := s.index[rec.ID]; exists {
			return nil, &ManifestError{Msg: "duplicate sample " + quote(rec.ID)}
		}
		s.index[rec.ID] = len(s.list)
		s.list = append(s.list, rec)
	}
	return s, nil
}

// All returns the samples in manifest order.
func (s *Samples) All() []Sample {
	return append([]Sample(nil), s.list...)
}

// Len returns the number of samples.
func (s *Samples) Len() int {
	return len(s.list)
}

// Get returns the sample with the given ID.
func (s *Samples) Get(id string) (Sample, bool) {
	i, ok := s.index[id]
	if !ok {
		return Sample{}, false
	}
	return s.list[i], true
}

// Groups returns the distinct group labels in order of first appearance.
func (s *Samples) Groups() []string {
	seen := make(map[string]bool)
	var groups []string
	for _, rec := range s.list {
		if !seen[rec.Group] {
			seen[rec.Group] = true
			groups = append(groups, rec.Group)
		}
	}
	return groups
}

// Members returns the samples of a group in manifest order. Labels compare by
// exact equality.
func (s *Samples) Members(group string) []Sample {
	var members []Sample
	for _, rec := range s.list {
		if rec.Group == group {
			members = append(members, rec)
		}
	}
	return members
}
