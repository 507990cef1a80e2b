// Package listing writes the durable XML documents the dispatcher web client
// polls. The document schemas are fixed by the client and predate this
// server; field order and the "NA" placeholder are part of the contract.
package listing

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
)

// File names within the listing directory, fixed by the dispatcher client.
const (
	contactFile   = "listContact.xml"
	registrarFile = "registrarlist.xml"
	intercomFile  = "intercomlist.xml"
	recordingFile = "recordinglist.xml"
)

// NA is the placeholder for absent fields in every listing document.
const NA = "NA"

// ContactRow is one entry of the normal or intercom contact documents.
type ContactRow struct {
	IPAddr   string `xml:"IPADDR"`
	Location string `xml:"LOCATION"`
	CallID   string `xml:"CALLID"`
	ServerID string `xml:"SERVERID"`
	Type     string `xml:"TYPE"`
}

// contactDoc is the CONTACT root of listContact.xml and intercomlist.xml.
type contactDoc struct {
	XMLName xml.Name     `xml:"CONTACT"`
	Rows    []ContactRow `xml:"INFO"`
}

// RegistrarRow is one entry of the WebRTC registrar document.
type RegistrarRow struct {
	IPAddr   string `xml:"IPADDR"`
	Location string `xml:"LOCATION"`
	Avail    string `xml:"AVAIL"`
	Username string `xml:"USERNAME"`
	SIPAddr  string `xml:"SIPADDR"`
	Pswd     string `xml:"PSWD"`
}

// registrarDoc is the REGISTRAR root of registrarlist.xml.
type registrarDoc struct {
	XMLName xml.Name       `xml:"REGISTRAR"`
	Rows    []RegistrarRow `xml:"SERVER"`
}

// RecordingRow is one entry of the recording catalog document.
type RecordingRow struct {
	DateTime   string `xml:"DATETIME"`
	Extensions string `xml:"EXTENSIONS"`
	FilePath   string `xml:"FILEPATH"`
}

// recordingDoc is the RECORDING root of recordinglist.xml.
type recordingDoc struct {
	XMLName xml.Name       `xml:"RECORDING"`
	Rows    []RecordingRow `xml:"INFO"`
}

// Store writes listing documents into a fixed directory.
type Store struct {
	dir string
}

// NewStore creates a listing store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating listing directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// WriteNormal replaces the normal contact document.
func (s *Store) WriteNormal(rows []ContactRow) error {
	return s.write(contactFile, contactDoc{Rows: rows})
}

// WriteIntercom replaces the intercom contact document.
func (s *Store) WriteIntercom(rows []ContactRow) error {
	return s.write(intercomFile, contactDoc{Rows: rows})
}

// WriteWebRTC replaces the WebRTC registrar document.
func (s *Store) WriteWebRTC(rows []RegistrarRow) error {
	return s.write(registrarFile, registrarDoc{Rows: rows})
}

// WriteRecordings replaces the recording catalog document.
func (s *Store) WriteRecordings(rows []RecordingRow) error {
	return s.write(recordingFile, recordingDoc{Rows: rows})
}

// ReadNormal loads the previously persisted normal contact document.
func (s *Store) ReadNormal() ([]ContactRow, error) {
	var doc contactDoc
	if err := s.read(contactFile, &doc); err != nil {
		return nil, err
	}
	return doc.Rows, nil
}

// ReadIntercom loads the previously persisted intercom document.
func (s *Store) ReadIntercom() ([]ContactRow, error) {
	var doc contactDoc
	if err := s.read(intercomFile, &doc); err != nil {
		return nil, err
	}
	return doc.Rows, nil
}

// ReadWebRTC loads the previously persisted registrar document.
func (s *Store) ReadWebRTC() ([]RegistrarRow, error) {
	var doc registrarDoc
	if err := s.read(registrarFile, &doc); err != nil {
		return nil, err
	}
	return doc.Rows, nil
}

// write marshals the document and renames it into place so readers never
// observe a partially written file.
func (s *Store) write(name string, doc any) error {
	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling %s: %w", name, err)
	}
	out = append(out, '\n')

	path := filepath.Join(s.dir, name)
	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp listing: %w", err)
	}
	if _, err := tmp.Write(out); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing temp listing: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replacing %s: %w", name, err)
	}
	return nil
}

func (s *Store) read(name string, doc any) error {
	raw, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return fmt.Errorf("reading %s: %w", name, err)
	}
	if err := xml.Unmarshal(raw, doc); err != nil {
		return fmt.Errorf("parsing %s: %w", name, err)
	}
	return nil
}
