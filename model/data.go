// Package model contains the domain models and data structures for the fanout core:
// transient messages and delivery reports, plus the persisted notification records
// produced by the domain event source.
package model

// tablePrefix is the default prefix for persisted tables.
// Repository adapters may override it per instance.
const tablePrefix = "fanout_"

// Attributes represents a map of key-value pairs for message metadata.
type Attributes map[string]string

// Clone returns a copy of the attributes so a shared message can be read
// by many senders without aliasing.
func (a Attributes) Clone() Attributes {
	if a == nil {
		return nil
	}
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}
