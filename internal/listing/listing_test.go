package listing

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteAndReadContactRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	rows := []ContactRow{
		{IPAddr: "192.168.1.20", Location: "Bilik Kawalan", CallID: "6001", ServerID: NA, Type: "PAPAN KEKUNCI"},
		{IPAddr: NA, Location: "Pondok Pengawal", CallID: "6002", ServerID: NA, Type: "TELEFON"},
	}
	if err := s.WriteNormal(rows); err != nil {
		t.Fatalf("WriteNormal: %v", err)
	}

	got, err := s.ReadNormal()
	if err != nil {
		t.Fatalf("ReadNormal: %v", err)
	}
	if len(got) != 2 || got[0] != rows[0] || got[1] != rows[1] {
		t.Errorf("round trip mismatch: %+v", got)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "listContact.xml"))
	if err != nil {
		t.Fatalf("reading document: %v", err)
	}
	for _, tag := range []string{"<CONTACT>", "<INFO>", "<CALLID>6001</CALLID>", "<TYPE>PAPAN KEKUNCI</TYPE>"} {
		if !strings.Contains(string(raw), tag) {
			t.Errorf("document missing %s:\n%s", tag, raw)
		}
	}
}

func TestWriteRegistrar(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	rows := []RegistrarRow{{
		IPAddr:   "192.168.1.30",
		Location: "SIP WEBRTC Meja Operasi",
		Avail:    "AVAILABLE",
		Username: "6004",
		SIPAddr:  "sip:6004@192.168.1.30",
		Pswd:     "s3cret",
	}}
	if err := s.WriteWebRTC(rows); err != nil {
		t.Fatalf("WriteWebRTC: %v", err)
	}

	got, err := s.ReadWebRTC()
	if err != nil {
		t.Fatalf("ReadWebRTC: %v", err)
	}
	if len(got) != 1 || got[0] != rows[0] {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestWriteRecordingsReplacesAtomically(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	if err := s.WriteRecordings([]RecordingRow{{DateTime: "2021-10-14-0302", Extensions: "6004-6000", FilePath: "a.ogg"}}); err != nil {
		t.Fatalf("first WriteRecordings: %v", err)
	}
	if err := s.WriteRecordings([]RecordingRow{{DateTime: NA, Extensions: NA, FilePath: NA}}); err != nil {
		t.Fatalf("second WriteRecordings: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "recordinglist.xml"))
	if err != nil {
		t.Fatalf("reading document: %v", err)
	}
	if strings.Contains(string(raw), "a.ogg") {
		t.Errorf("stale row survived replacement:\n%s", raw)
	}

	// No temp files left behind.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestReadMissingDocument(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if _, err := s.ReadIntercom(); err == nil {
		t.Fatal("expected error for missing document")
	}
}
