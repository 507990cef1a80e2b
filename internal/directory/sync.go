package directory

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/dispatchd/dispatchd/internal/astconf"
	"github.com/dispatchd/dispatchd/internal/listing"
)

// Profile type markers. A profile whose derived type equals categoryWebRTC
// belongs to the WebRTC collection; categoryTrunk marks FXO trunk/gateway
// lines that must never appear in the dispatcher directory.
const (
	categoryWebRTC = "SIP WEBRTC"
	categoryTrunk  = "FXO"
)

// reservedSections are configuration sections that never describe an
// extension.
var reservedSections = map[string]bool{
	"general":    true,
	"tgprovider": true,
}

// Sources names the PBX configuration files each dialect is read from.
type Sources struct {
	UsersConf      string // user profiles (normal + WebRTC extensions)
	SIPConf        string // accounts merged into the normal collection
	ExtensionsConf string // dialplan (intercom/conference contexts)
}

// Delta reports the changed entry of a sync pass. Both fields are empty
// when the hinted extension's display name is unchanged.
type Delta struct {
	Extension   string
	DisplayName string
}

// Synchronizer rebuilds directory collections from the configuration
// sources and persists each rebuilt collection as an XML listing.
type Synchronizer struct {
	sources Sources
	store   *listing.Store

	normal   *Repository
	webrtc   *Repository
	intercom *Repository
}

// NewSynchronizer creates a Synchronizer over empty collections.
func NewSynchronizer(sources Sources, store *listing.Store) *Synchronizer {
	return &Synchronizer{
		sources:  sources,
		store:    store,
		normal:   NewRepository(),
		webrtc:   NewRepository(),
		intercom: NewRepository(),
	}
}

// Collection returns the repository backing the given kind.
func (s *Synchronizer) Collection(kind Kind) *Repository {
	switch kind {
	case KindWebRTC:
		return s.webrtc
	case KindIntercom:
		return s.intercom
	default:
		return s.normal
	}
}

// Sync rebuilds the collection for kind from its configuration sources,
// persists the new listing, and reports whether the hinted extension's
// display name changed. The other two collections are untouched. If a
// configuration source cannot be read or parsed, both the in-memory
// collection and the persisted listing keep their previous state.
func (s *Synchronizer) Sync(kind Kind, extensionHint string) (Delta, error) {
	var recs []Record
	var err error

	switch kind {
	case KindNormal, KindWebRTC:
		recs, err = s.buildProfiles(kind)
	case KindIntercom:
		recs, err = s.buildIntercom()
	default:
		return Delta{}, fmt.Errorf("unknown directory kind %q", kind)
	}
	if err != nil {
		return Delta{}, err
	}

	repo := s.Collection(kind)

	// Change detection against the old snapshot, before it is discarded.
	old, hadOld := repo.Get(extensionHint)
	delta := Delta{}
	if extensionHint != "" {
		for _, rec := range recs {
			if rec.Extension != extensionHint {
				continue
			}
			if !hadOld || old.DisplayName != rec.DisplayName {
				delta = Delta{Extension: rec.Extension, DisplayName: rec.DisplayName}
			}
			break
		}
	}

	repo.Replace(recs)

	if err := s.persist(kind); err != nil {
		return Delta{}, err
	}

	slog.Info("directory synced", "kind", kind, "entries", repo.Len())
	return delta, nil
}

// buildProfiles reads the user-profile dialect and, for the normal
// collection, merges the additional accounts dialect. WebRTC-typed profiles
// route to the WebRTC collection only; trunk lines are excluded entirely.
func (s *Synchronizer) buildProfiles(kind Kind) ([]Record, error) {
	sections, err := astconf.ReadFile(s.sources.UsersConf)
	if err != nil {
		return nil, fmt.Errorf("user profiles: %w", err)
	}

	var recs []Record
	for i := range sections {
		sec := &sections[i]
		if reservedSections[sec.Name] {
			continue
		}

		fullname, _ := sec.Get("fullname")
		category := profileType(fullname)

		switch {
		case category == categoryTrunk:
			// Trunk/gateway line, not a dispatcher extension.
		case category == categoryWebRTC:
			if kind != KindWebRTC {
				continue
			}
			secret, _ := sec.Get("secret")
			recs = append(recs, Record{
				Extension:   sec.Name,
				DisplayName: fullname,
				Category:    category,
				Credential:  secret,
			})
		default:
			if kind != KindNormal {
				continue
			}
			recs = append(recs, Record{
				Extension:   sec.Name,
				DisplayName: fullname,
				Category:    category,
			})
		}
	}

	if kind == KindNormal {
		merged, err := s.mergeAccounts(recs)
		if err != nil {
			return nil, err
		}
		recs = merged
	}

	return recs, nil
}

// mergeAccounts appends normal entries found only in the accounts dialect.
// An extension already produced by the profile pass wins over its account
// entry.
func (s *Synchronizer) mergeAccounts(recs []Record) ([]Record, error) {
	sections, err := astconf.ReadFile(s.sources.SIPConf)
	if err != nil {
		return nil, fmt.Errorf("accounts: %w", err)
	}

	seen := make(map[string]bool, len(recs))
	for _, rec := range recs {
		seen[rec.Extension] = true
	}

	for i := range sections {
		sec := &sections[i]
		if reservedSections[sec.Name] || seen[sec.Name] {
			continue
		}

		callerID, ok := sec.Get("callerid")
		if !ok {
			continue
		}
		name, category := callerIDParts(callerID, sec.Name)
		if category == categoryTrunk {
			continue
		}

		seen[sec.Name] = true
		recs = append(recs, Record{
			Extension:   sec.Name,
			DisplayName: name,
			Category:    category,
		})
	}

	return recs, nil
}

// buildIntercom reads the dialplan dialect and collects intercom and
// conference contexts.
func (s *Synchronizer) buildIntercom() ([]Record, error) {
	sections, err := astconf.ReadFile(s.sources.ExtensionsConf)
	if err != nil {
		return nil, fmt.Errorf("dialplan: %w", err)
	}

	var recs []Record
	for i := range sections {
		name := sections[i].Name
		if !strings.HasPrefix(name, "intercom") && !strings.HasPrefix(name, "conference-") {
			continue
		}
		typ, ext, loc, ok := splitContextName(name)
		if !ok {
			slog.Warn("directory sync: skipping malformed dialplan context", "context", name)
			continue
		}
		recs = append(recs, Record{
			Extension:   ext,
			DisplayName: loc,
			Category:    typ,
		})
	}

	return recs, nil
}

// persist writes the current snapshot of kind to its listing document.
func (s *Synchronizer) persist(kind Kind) error {
	switch kind {
	case KindWebRTC:
		return s.store.WriteWebRTC(registrarRows(s.webrtc.List()))
	case KindIntercom:
		return s.store.WriteIntercom(contactRows(s.intercom.List()))
	default:
		return s.store.WriteNormal(contactRows(s.normal.List()))
	}
}

// EntryUpdate is a partial update of a directory entry. Nil fields are left
// unchanged. Reset clears the WebRTC availability, address and SIP URI in
// one step (a console releasing its registration).
type EntryUpdate struct {
	Address      *string
	Availability *string
	Reset        bool
}

// UpdateEntry applies a partial update to the record for ext in the given
// kind and rewrites that kind's listing. For a WebRTC entry, setting the
// address also derives the SIP URI the dispatcher dials.
func (s *Synchronizer) UpdateEntry(kind Kind, ext string, upd EntryUpdate) (Record, error) {
	repo := s.Collection(kind)

	rec, err := repo.Mutate(ext, func(r *Record) {
		if upd.Reset {
			r.Availability = ""
			r.Address = ""
			r.SIPURI = ""
			return
		}
		if upd.Address != nil {
			r.Address = *upd.Address
			if kind == KindWebRTC {
				r.SIPURI = "sip:" + r.Extension + "@" + r.Address
			}
		}
		if upd.Availability != nil {
			r.Availability = *upd.Availability
		}
	})
	if err != nil {
		return Record{}, err
	}

	if err := s.persist(kind); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// LoadFromListings restores the previously persisted snapshots so the
// dispatcher sees the last known directory before the first sync. Missing
// documents are not an error on a fresh deployment.
func (s *Synchronizer) LoadFromListings() {
	if rows, err := s.store.ReadNormal(); err == nil {
		s.normal.Replace(recordsFromContacts(rows))
	}
	if rows, err := s.store.ReadWebRTC(); err == nil {
		s.webrtc.Replace(recordsFromRegistrar(rows))
	}
	if rows, err := s.store.ReadIntercom(); err == nil {
		s.intercom.Replace(recordsFromContacts(rows))
	}
	slog.Info("directory listings restored",
		"normal", s.normal.Len(),
		"webrtc", s.webrtc.Len(),
		"intercom", s.intercom.Len(),
	)
}

// profileType extracts the leading type token of a profile's fullname
// field, which encodes "<type> :<free text>". The boundary is the first
// space immediately followed by a colon; the free text may contain any
// characters, so a fixed-width split would truncate it. A fullname without
// the boundary has no type.
func profileType(fullname string) string {
	for i := 0; i+1 < len(fullname); i++ {
		if fullname[i] == ' ' && fullname[i+1] == ':' {
			return fullname[:i]
		}
	}
	return ""
}

// callerIDParts derives the display name and type token from an accounts
// callerid value of the form `"<type>:<free text>" <ext>`. The surrounding
// quotes and the trailing <ext> tag are stripped; the type is the prefix up
// to the first colon.
func callerIDParts(callerID, ext string) (name, category string) {
	name = strings.ReplaceAll(callerID, "<"+ext+">", "")
	name = strings.ReplaceAll(name, `"`, "")
	name = strings.TrimSpace(name)

	for i := 0; i < len(name); i++ {
		if name[i] == ':' {
			return name, name[:i]
		}
	}
	return name, ""
}

// splitContextName parses a dialplan context name of the form
// `type-extension-location` at exactly the first two hyphens. The location
// may itself contain hyphens and is never truncated at them.
func splitContextName(name string) (typ, ext, loc string, ok bool) {
	const (
		readType = iota
		readExtension
		readLocation
	)

	state := readType
	for i := 0; i < len(name); i++ {
		ch := name[i]
		switch state {
		case readType:
			if ch == '-' {
				state = readExtension
				continue
			}
			typ += string(ch)
		case readExtension:
			if ch == '-' {
				state = readLocation
				continue
			}
			ext += string(ch)
		case readLocation:
			loc += string(ch)
		}
	}

	if state != readLocation || typ == "" || ext == "" {
		return "", "", "", false
	}
	return typ, ext, loc, true
}
