// Package catalog derives a message/signal schema from observed CAN
// traffic and reads/writes it as a minimal DBC subset. Only the grammar
// this package emits is understood; full DBC compliance is out of scope.
package catalog

import (
	"fmt"
	"sort"
)

// Signal is one decodable field of a message. StartBit and Width are
// byte-aligned in everything this package synthesizes. MuxValue is set for
// signals that only apply when the message's multiplexor signal carries
// that value.
type Signal struct {
	Name        string
	StartBit    int
	Width       int
	Scale       float64
	Offset      float64
	Unit        string
	Multiplexor bool   // this signal selects which multiplexed signals apply
	MuxValue    *uint8 // nil for signals that always apply
}

// Message describes all observed traffic for one identifier.
type Message struct {
	ID      uint32
	Name    string
	Length  uint8
	Signals []Signal
}

// Schema is an ordered set of messages, identifiers ascending.
type Schema []Message

// Find returns the message for id, if present.
func (s Schema) Find(id uint32) (Message, bool) {
	for _, m := range s {
		if m.ID == id {
			return m, true
		}
	}
	return Message{}, false
}

// IDs returns every identifier in the schema, ascending.
func (s Schema) IDs() []uint32 {
	ids := make([]uint32, 0, len(s))
	for _, m := range s {
		ids = append(ids, m.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Validate checks the overlap invariant: within one message, signals with
// the same multiplexor value must not overlap in bit range. Signals with
// different multiplexor values may, because only one applies at a time.
func (m Message) Validate() error {
	for i, a := range m.Signals {
		for _, b := range m.Signals[i+1:] {
			if a.MuxValue != nil && b.MuxValue != nil && *a.MuxValue != *b.MuxValue {
				continue
			}
			if a.StartBit < b.StartBit+b.Width && b.StartBit < a.StartBit+a.Width {
				return fmt.Errorf("catalog: signals %s and %s overlap in message 0x%X",
					a.Name, b.Name, m.ID)
			}
		}
	}
	return nil
}
