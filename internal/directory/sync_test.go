package directory

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dispatchd/dispatchd/internal/listing"
)

const usersConfFixture = `
[general]
hasvoicemail = yes

[6001]
fullname = PAPAN KEKUNCI :Bilik Kawalan
secret = abc1

[6004]
fullname = SIP WEBRTC :Meja Operasi
secret = web4

[6900]
fullname = FXO :Talian Luar
secret = fx

[6002]
fullname = TELEFON :Pondok Pengawal
secret = abc2
`

const sipConfFixture = `
[general]
context = default

[tgprovider]
type = peer

[6001]
callerid = "PAPAN KEKUNCI:Bilik Kawalan" <6001>

[6010]
callerid = "TELEFON:Stor Utama" <6010>

[6901]
callerid = "FXO:Talian Luar 2" <6901>
`

const extensionsConfFixture = `
[globals]
RECDIR = /var/www/html/recordings

[intercom-1010-Bilik_SENJATA]
exten => 1010,1,Dial(SIP/1010)

[conference-2000-Dewan-Besar-Utama]
exten => 2000,1,ConfBridge(2000)

[intercom]
exten => s,1,Hangup()

[myphones]
exten => 6001,1,Dial(SIP/6001)
`

// newTestSynchronizer writes the three fixtures and returns a synchronizer
// over them plus the listing directory.
func newTestSynchronizer(t *testing.T) (*Synchronizer, string) {
	t.Helper()
	dir := t.TempDir()

	sources := Sources{
		UsersConf:      filepath.Join(dir, "users.conf"),
		SIPConf:        filepath.Join(dir, "sip.conf"),
		ExtensionsConf: filepath.Join(dir, "extensions.conf"),
	}
	for path, contents := range map[string]string{
		sources.UsersConf:      usersConfFixture,
		sources.SIPConf:        sipConfFixture,
		sources.ExtensionsConf: extensionsConfFixture,
	} {
		if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
			t.Fatalf("writing fixture %s: %v", path, err)
		}
	}

	listingDir := filepath.Join(dir, "listings")
	store, err := listing.NewStore(listingDir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return NewSynchronizer(sources, store), listingDir
}

func TestSyncNormal(t *testing.T) {
	s, listingDir := newTestSynchronizer(t)

	if _, err := s.Sync(KindNormal, ""); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	recs := s.Collection(KindNormal).List()
	byExt := make(map[string]Record, len(recs))
	for _, r := range recs {
		byExt[r.Extension] = r
	}

	// Profile pass: 6001 and 6002; accounts pass adds 6010 only.
	if len(recs) != 3 {
		t.Fatalf("got %d normal records, want 3: %+v", len(recs), recs)
	}
	if r := byExt["6001"]; r.Category != "PAPAN KEKUNCI" || r.DisplayName != "PAPAN KEKUNCI :Bilik Kawalan" {
		t.Errorf("6001 = %+v", r)
	}
	if r := byExt["6010"]; r.Category != "TELEFON" || r.DisplayName != "TELEFON:Stor Utama" {
		t.Errorf("6010 = %+v", r)
	}
	if _, ok := byExt["6004"]; ok {
		t.Error("WebRTC profile leaked into the normal collection")
	}
	if _, ok := byExt["6900"]; ok {
		t.Error("FXO trunk line leaked into the normal collection")
	}
	if _, ok := byExt["6901"]; ok {
		t.Error("FXO account leaked into the normal collection")
	}

	// The profile entry for 6001 wins over its account entry.
	if byExt["6001"].DisplayName != "PAPAN KEKUNCI :Bilik Kawalan" {
		t.Errorf("account entry overwrote the profile entry: %+v", byExt["6001"])
	}

	if _, err := os.Stat(filepath.Join(listingDir, "listContact.xml")); err != nil {
		t.Errorf("listing not persisted: %v", err)
	}
}

func TestSyncWebRTC(t *testing.T) {
	s, listingDir := newTestSynchronizer(t)

	if _, err := s.Sync(KindWebRTC, ""); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	recs := s.Collection(KindWebRTC).List()
	if len(recs) != 1 {
		t.Fatalf("got %d webrtc records, want 1: %+v", len(recs), recs)
	}
	r := recs[0]
	if r.Extension != "6004" || r.Category != "SIP WEBRTC" || r.Credential != "web4" {
		t.Errorf("webrtc record = %+v", r)
	}

	// The normal collection must be untouched by a WebRTC sync.
	if s.Collection(KindNormal).Len() != 0 {
		t.Error("webrtc sync touched the normal collection")
	}

	if _, err := os.Stat(filepath.Join(listingDir, "registrarlist.xml")); err != nil {
		t.Errorf("listing not persisted: %v", err)
	}
}

func TestSyncIntercom(t *testing.T) {
	s, _ := newTestSynchronizer(t)

	if _, err := s.Sync(KindIntercom, ""); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	recs := s.Collection(KindIntercom).List()
	if len(recs) != 2 {
		t.Fatalf("got %d intercom records, want 2: %+v", len(recs), recs)
	}
	if r := recs[0]; r.Extension != "1010" || r.DisplayName != "Bilik_SENJATA" || r.Category != "intercom" {
		t.Errorf("intercom record = %+v", r)
	}
	// The location keeps its own hyphens.
	if r := recs[1]; r.Extension != "2000" || r.DisplayName != "Dewan-Besar-Utama" || r.Category != "conference" {
		t.Errorf("conference record = %+v", r)
	}
}

func TestSyncDelta(t *testing.T) {
	s, _ := newTestSynchronizer(t)

	// First sync: 1010 is newly present, so a matching hint reports it.
	delta, err := s.Sync(KindIntercom, "1010")
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if delta.Extension != "1010" || delta.DisplayName != "Bilik_SENJATA" {
		t.Errorf("delta = %+v, want newly present entry", delta)
	}

	// Unchanged display name: empty delta.
	delta, err = s.Sync(KindIntercom, "1010")
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if delta != (Delta{}) {
		t.Errorf("delta = %+v, want empty", delta)
	}

	// Rename the location in the dialplan and sync again.
	path := s.sources.ExtensionsConf
	renamed := `[intercom-1010-Bilik_BARU]
exten => 1010,1,Dial(SIP/1010)
`
	if err := os.WriteFile(path, []byte(renamed), 0644); err != nil {
		t.Fatalf("rewriting fixture: %v", err)
	}
	delta, err = s.Sync(KindIntercom, "1010")
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if delta.Extension != "1010" || delta.DisplayName != "Bilik_BARU" {
		t.Errorf("delta = %+v, want renamed entry", delta)
	}

	// A hint that matches nothing reports nothing.
	delta, err = s.Sync(KindIntercom, "9999")
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if delta != (Delta{}) {
		t.Errorf("delta = %+v, want empty for unmatched hint", delta)
	}
}

func TestSyncConfigErrorKeepsSnapshot(t *testing.T) {
	s, listingDir := newTestSynchronizer(t)

	if _, err := s.Sync(KindNormal, ""); err != nil {
		t.Fatalf("initial Sync: %v", err)
	}
	before, err := os.ReadFile(filepath.Join(listingDir, "listContact.xml"))
	if err != nil {
		t.Fatalf("reading listing: %v", err)
	}
	wantLen := s.Collection(KindNormal).Len()

	if err := os.Remove(s.sources.UsersConf); err != nil {
		t.Fatalf("removing fixture: %v", err)
	}
	if _, err := s.Sync(KindNormal, ""); err == nil {
		t.Fatal("expected error for missing config source")
	}

	if got := s.Collection(KindNormal).Len(); got != wantLen {
		t.Errorf("failed sync changed the collection: %d != %d", got, wantLen)
	}
	after, err := os.ReadFile(filepath.Join(listingDir, "listContact.xml"))
	if err != nil {
		t.Fatalf("reading listing: %v", err)
	}
	if string(before) != string(after) {
		t.Error("failed sync rewrote the persisted listing")
	}
}

func TestUpdateEntry(t *testing.T) {
	s, _ := newTestSynchronizer(t)
	if _, err := s.Sync(KindWebRTC, ""); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	addr := "192.168.1.30"
	rec, err := s.UpdateEntry(KindWebRTC, "6004", EntryUpdate{Address: &addr})
	if err != nil {
		t.Fatalf("UpdateEntry: %v", err)
	}
	if rec.Address != addr || rec.SIPURI != "sip:6004@192.168.1.30" {
		t.Errorf("record = %+v", rec)
	}

	avail := AvailOccupied
	rec, err = s.UpdateEntry(KindWebRTC, "6004", EntryUpdate{Availability: &avail})
	if err != nil {
		t.Fatalf("UpdateEntry availability: %v", err)
	}
	if rec.Availability != AvailOccupied || rec.SIPURI == "" {
		t.Errorf("record = %+v", rec)
	}

	rec, err = s.UpdateEntry(KindWebRTC, "6004", EntryUpdate{Reset: true})
	if err != nil {
		t.Fatalf("UpdateEntry reset: %v", err)
	}
	if rec.Availability != "" || rec.Address != "" || rec.SIPURI != "" {
		t.Errorf("reset left runtime fields: %+v", rec)
	}

	if _, err := s.UpdateEntry(KindWebRTC, "9999", EntryUpdate{Address: &addr}); err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestLoadFromListings(t *testing.T) {
	s, listingDir := newTestSynchronizer(t)
	if _, err := s.Sync(KindNormal, ""); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if _, err := s.Sync(KindWebRTC, ""); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	// A fresh synchronizer over the same listing directory restores the
	// persisted snapshots.
	store, err := listing.NewStore(listingDir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	fresh := NewSynchronizer(s.sources, store)
	fresh.LoadFromListings()

	if fresh.Collection(KindNormal).Len() != s.Collection(KindNormal).Len() {
		t.Errorf("normal collection not restored")
	}
	if rec, ok := fresh.Collection(KindWebRTC).Get("6004"); !ok || rec.Credential != "web4" {
		t.Errorf("webrtc record not restored: %+v ok=%v", rec, ok)
	}
}

func TestProfileType(t *testing.T) {
	tests := []struct {
		fullname string
		want     string
	}{
		{"PAPAN KEKUNCI :Bilik Kawalan", "PAPAN KEKUNCI"},
		{"SIP WEBRTC :Meja Operasi", "SIP WEBRTC"},
		{"FXO :Talian Luar", "FXO"},
		{"TELEFON :Pondok - Blok B :Lama", "TELEFON"},
		{"no boundary here", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := profileType(tt.fullname); got != tt.want {
			t.Errorf("profileType(%q) = %q, want %q", tt.fullname, got, tt.want)
		}
	}
}

func TestSplitContextName(t *testing.T) {
	tests := []struct {
		name          string
		typ, ext, loc string
		ok            bool
	}{
		{"intercom-1010-Bilik_SENJATA", "intercom", "1010", "Bilik_SENJATA", true},
		{"conference-2000-Dewan-Besar-Utama", "conference", "2000", "Dewan-Besar-Utama", true},
		{"intercom-1010", "", "", "", false},
		{"intercom", "", "", "", false},
		{"--", "", "", "", false},
	}
	for _, tt := range tests {
		typ, ext, loc, ok := splitContextName(tt.name)
		if typ != tt.typ || ext != tt.ext || loc != tt.loc || ok != tt.ok {
			t.Errorf("splitContextName(%q) = %q,%q,%q,%v", tt.name, typ, ext, loc, ok)
		}
	}
}
