package serder

// Field is one (key, value) pair of a Sadder in wire order.
type Field struct {
	Key   string
	Value any
}

// Sadder is an ordered field-map message body. Ordering matches insertion
// order; CommonFields and RequiredFields together define the order every
// ilk's fields must appear in for canonical (re)serialization.
type Sadder struct {
	Fields []Field
}

// NewSadder builds an empty ordered field map.
func NewSadder() *Sadder {
	return &Sadder{}
}

// Set appends or overwrites key's value, preserving first-insertion
// position on overwrite.
func (s *Sadder) Set(key string, value any) {
	for i := range s.Fields {
		if s.Fields[i].Key == key {
			s.Fields[i].Value = value
			return
		}
	}
	s.Fields = append(s.Fields, Field{Key: key, Value: value})
}

// Get returns key's value and whether it was present.
func (s *Sadder) Get(key string) (any, bool) {
	for _, f := range s.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// GetString is a convenience accessor for string-valued fields.
func (s *Sadder) GetString(key string) string {
	v, ok := s.Get(key)
	if !ok {
		return ""
	}
	str, _ := v.(string)
	return str
}

// Map renders the field list as a plain map, for codecs (JSON/CBOR/MsgPack
// libraries) that marshal from Go maps/structs rather than ordered lists;
// callers needing wire-order bytes must encode from Fields instead.
func (s *Sadder) Map() map[string]any {
	m := make(map[string]any, len(s.Fields))
	for _, f := range s.Fields {
		m[f.Key] = f.Value
	}
	return m
}

// Clone returns a deep-enough copy for placeholder substitution during SAID
// computation (the Fields slice and its entries are copied; nested map/
// slice values are shared, since only top-level scalar fields are ever
// replaced by placeholders).
func (s *Sadder) Clone() *Sadder {
	out := &Sadder{Fields: make([]Field, len(s.Fields))}
	copy(out.Fields, s.Fields)
	return out
}
