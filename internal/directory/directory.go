// Package directory maintains the three dispatcher-facing extension
// collections (normal, WebRTC, intercom), rebuilt from the PBX
// configuration sources and persisted as XML listings.
package directory

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dispatchd/dispatchd/internal/listing"
)

// Kind selects one of the three independent directory collections.
type Kind string

const (
	KindNormal   Kind = "normal"
	KindWebRTC   Kind = "webrtc"
	KindIntercom Kind = "intercom"
)

// ParseKind maps a request path segment onto a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(s)) {
	case KindNormal:
		return KindNormal, nil
	case KindWebRTC:
		return KindWebRTC, nil
	case KindIntercom:
		return KindIntercom, nil
	}
	return "", fmt.Errorf("unknown directory kind %q", s)
}

// Availability values for WebRTC accounts. Empty means not reported.
const (
	AvailAvailable = "AVAILABLE"
	AvailOccupied  = "OCCUPIED"
)

// ErrNotFound is returned when an update names an extension that is not in
// the collection.
var ErrNotFound = errors.New("extension not in directory")

// Record is one directory entry. Extension is unique within its collection.
// Address, Credential, SIPURI and Availability are empty when absent.
type Record struct {
	Extension    string `json:"extension"`
	DisplayName  string `json:"display_name"`
	Category     string `json:"category"`
	Address      string `json:"address,omitempty"`
	Credential   string `json:"-"`
	SIPURI       string `json:"sip_uri,omitempty"`
	Availability string `json:"availability,omitempty"`
}

// Repository holds one collection. Replace swaps the whole snapshot, so a
// reader never observes a partially rebuilt collection.
type Repository struct {
	mu    sync.RWMutex
	recs  []Record
	index map[string]int
}

// NewRepository creates an empty collection.
func NewRepository() *Repository {
	return &Repository{index: make(map[string]int)}
}

// Replace installs a new snapshot. Duplicate extensions keep the first
// occurrence (first pass wins).
func (r *Repository) Replace(recs []Record) {
	index := make(map[string]int, len(recs))
	kept := make([]Record, 0, len(recs))
	for _, rec := range recs {
		if _, dup := index[rec.Extension]; dup {
			continue
		}
		index[rec.Extension] = len(kept)
		kept = append(kept, rec)
	}

	r.mu.Lock()
	r.recs = kept
	r.index = index
	r.mu.Unlock()
}

// Get returns the record for ext, if present.
func (r *Repository) Get(ext string) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.index[ext]
	if !ok {
		return Record{}, false
	}
	return r.recs[i], true
}

// List returns a copy of the collection in its stored order.
func (r *Repository) List() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Record, len(r.recs))
	copy(out, r.recs)
	return out
}

// Len returns the number of records.
func (r *Repository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.recs)
}

// Mutate applies fn to the record for ext in place and returns the updated
// copy, or ErrNotFound.
func (r *Repository) Mutate(ext string, fn func(*Record)) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.index[ext]
	if !ok {
		return Record{}, ErrNotFound
	}
	fn(&r.recs[i])
	return r.recs[i], nil
}

// orNA substitutes the listing placeholder for empty fields.
func orNA(s string) string {
	if s == "" {
		return listing.NA
	}
	return s
}

// naToEmpty is the inverse of orNA, used when reloading persisted listings.
func naToEmpty(s string) string {
	if s == listing.NA {
		return ""
	}
	return s
}

// contactRows renders a normal or intercom collection for persistence.
func contactRows(recs []Record) []listing.ContactRow {
	rows := make([]listing.ContactRow, len(recs))
	for i, rec := range recs {
		rows[i] = listing.ContactRow{
			IPAddr:   orNA(rec.Address),
			Location: orNA(rec.DisplayName),
			CallID:   rec.Extension,
			ServerID: listing.NA,
			Type:     orNA(rec.Category),
		}
	}
	return rows
}

// registrarRows renders the WebRTC collection for persistence.
func registrarRows(recs []Record) []listing.RegistrarRow {
	rows := make([]listing.RegistrarRow, len(recs))
	for i, rec := range recs {
		rows[i] = listing.RegistrarRow{
			IPAddr:   orNA(rec.Address),
			Location: orNA(rec.DisplayName),
			Avail:    orNA(rec.Availability),
			Username: rec.Extension,
			SIPAddr:  orNA(rec.SIPURI),
			Pswd:     orNA(rec.Credential),
		}
	}
	return rows
}

// recordsFromContacts rebuilds records from a persisted contact document.
func recordsFromContacts(rows []listing.ContactRow) []Record {
	recs := make([]Record, 0, len(rows))
	for _, row := range rows {
		if row.CallID == "" || row.CallID == listing.NA {
			continue
		}
		recs = append(recs, Record{
			Extension:   row.CallID,
			DisplayName: naToEmpty(row.Location),
			Category:    naToEmpty(row.Type),
			Address:     naToEmpty(row.IPAddr),
		})
	}
	return recs
}

// recordsFromRegistrar rebuilds records from a persisted registrar document.
func recordsFromRegistrar(rows []listing.RegistrarRow) []Record {
	recs := make([]Record, 0, len(rows))
	for _, row := range rows {
		if row.Username == "" || row.Username == listing.NA {
			continue
		}
		recs = append(recs, Record{
			Extension:    row.Username,
			DisplayName:  naToEmpty(row.Location),
			Category:     categoryWebRTC,
			Address:      naToEmpty(row.IPAddr),
			Credential:   naToEmpty(row.Pswd),
			SIPURI:       naToEmpty(row.SIPAddr),
			Availability: naToEmpty(row.Avail),
		})
	}
	return recs
}
