package qc

// CompletionSet holds at most one record per identity key, keeping the first one added.
//
// The zero value is not usable; call NewCompletionSet.
type CompletionSet struct {
	byKey map[Key]CompletionRecord
	order []Key
}

func NewCompletionSet(records ...CompletionRecord) *CompletionSet {
	s := &CompletionSet{byKey: make(map[Key]CompletionRecord, len(records))}
	for _, r := range records {
		s.Add(r)
	}
	return s
}

// Add inserts r unless its key is already present. It reports whether r was kept.
func (s *CompletionSet) Add(r CompletionRecord) bool {
	k := r.Key()
	if _, ok := s.byKey[k]; ok {
		return false
	}
	s.byKey[k] = r
	s.order = append(s.order, k)
	return true
}

func (s *CompletionSet) Has(k Key) bool {
	if s == nil {
		return false
	}
	_, ok := s.byKey[k]
	return ok
}

func (s *CompletionSet) Lookup(machineID, worksheetID string, date Date) (CompletionRecord, bool) {
	if s == nil {
		return CompletionRecord{}, false
	}
	r, ok := s.byKey[Key{MachineID: machineID, WorksheetID: worksheetID, Date: date}]
	return r, ok
}

func (s *CompletionSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// Records returns the records in insertion order.
func (s *CompletionSet) Records() []CompletionRecord {
	if s == nil {
		return nil
	}
	out := make([]CompletionRecord, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.byKey[k])
	}
	return out
}
