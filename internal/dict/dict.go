// Package dict is an address dictionary: a lookup table mapping 24-bit
// ICAO/UAT addresses to known aircraft or ground-station labels, loaded
// from a JSON dictionary file. Grounded on the teacher's A429/MIL1553
// label-lookup Store/JSONFile pattern, retargeted to key on a single
// 24-bit address instead of a label/SDI or RT/SA pair.
//
// A dictionary lookup only enriches JSON output and reporting
// ("known_as"); it never affects decode correctness, and an unknown
// address is reported as absent rather than as an empty string.
package dict

import (
	"fmt"
	"strings"
)

// Entry is one known-address record.
type Entry struct {
	Address uint32
	Name    string
	Kind    string // e.g. "aircraft", "ground_station"; free-form, not validated
}

// Store is an immutable, address-keyed lookup table. A nil *Store behaves
// as an empty dictionary, matching the teacher's nil-receiver convention
// for absent dictionaries.
type Store struct {
	byAddress map[uint32]Entry
	version   string
}

// JSONFile is the on-disk dictionary format.
type JSONFile struct {
	Version string          `json:"version"`
	Entries []JSONDictEntry `json:"entries"`
}

type JSONDictEntry struct {
	Address string `json:"address"` // 6 hex digits, e.g. "A1B2C3"
	Name    string `json:"name"`
	Kind    string `json:"kind,omitempty"`
}

// FromJSON validates and indexes a JSONFile, matching the teacher's
// FromJSON error style: one wrapped error per malformed or duplicate
// entry, indexed by position.
func FromJSON(file JSONFile) (*Store, error) {
	store := &Store{
		byAddress: make(map[uint32]Entry, len(file.Entries)),
		version:   file.Version,
	}
	for i, entry := range file.Entries {
		addr, err := parseAddress(entry.Address)
		if err != nil {
			return nil, fmt.Errorf("entries[%d]: %w", i, err)
		}
		if _, exists := store.byAddress[addr]; exists {
			return nil, fmt.Errorf("entries[%d]: duplicate address %06X", i, addr)
		}
		store.byAddress[addr] = Entry{
			Address: addr,
			Name:    strings.TrimSpace(entry.Name),
			Kind:    strings.TrimSpace(entry.Kind),
		}
	}
	return store, nil
}

func parseAddress(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	if len(s) != 6 {
		return 0, fmt.Errorf("address %q must be exactly 6 hex digits", s)
	}
	var v uint32
	for _, c := range strings.ToLower(s) {
		var digit uint32
		switch {
		case c >= '0' && c <= '9':
			digit = uint32(c - '0')
		case c >= 'a' && c <= 'f':
			digit = uint32(c-'a') + 10
		default:
			return 0, fmt.Errorf("address %q is not valid hex", s)
		}
		v = v<<4 | digit
	}
	return v, nil
}

// Lookup returns the known-address record for addr, if any.
func (s *Store) Lookup(addr uint32) (Entry, bool) {
	if s == nil {
		return Entry{}, false
	}
	entry, ok := s.byAddress[addr]
	return entry, ok
}

// KnownAs is a convenience wrapper for the JSON-output "known_as" field:
// it returns the entry's name and whether one was found, collapsing the
// Kind distinction the caller usually doesn't need.
func (s *Store) KnownAs(addr uint32) (string, bool) {
	entry, ok := s.Lookup(addr)
	if !ok || entry.Name == "" {
		return "", false
	}
	return entry.Name, true
}

// Version reports the dictionary's version string, used by SessionRecord
// digests to record which dictionary a session decoded against.
func (s *Store) Version() string {
	if s == nil {
		return ""
	}
	return s.version
}

// IsEmpty reports whether the dictionary carries no entries.
func (s *Store) IsEmpty() bool {
	if s == nil {
		return true
	}
	return len(s.byAddress) == 0
}

// Len reports the number of entries in the dictionary.
func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	return len(s.byAddress)
}
