package storage

// Entry is one keyed value of a snapshot.
type Entry struct {
	Key   string
	Value any
}

// Snapshot is a full point-in-time copy of a collection, in store order.
// A nil *Snapshot means the collection holds no data.
type Snapshot struct {
	Entries []Entry
}

func (s *Snapshot) Exists() bool {
	return s != nil && len(s.Entries) > 0
}

// Keys returns the entry keys in store order.
func (s *Snapshot) Keys() []string {
	if s == nil {
		return nil
	}
	keys := make([]string, 0, len(s.Entries))
	for _, e := range s.Entries {
		keys = append(keys, e.Key)
	}
	return keys
}
