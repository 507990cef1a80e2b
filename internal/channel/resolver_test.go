package channel

import (
	"context"
	"errors"
	"testing"

	"github.com/dispatchd/dispatchd/internal/database"
	"github.com/dispatchd/dispatchd/internal/database/models"
	"github.com/dispatchd/dispatchd/internal/pbx"
)

// Sample concise listing taken from a live deployment.
const sampleListing = "SIP/1002-0000007b!myphones!!1!Up!AppDial!(Outgoing Line)!1002!!!3!196!0377ef02-fcb0-490a-8231-53ed81fa9d4a!1580297330.202\n" +
	"SIP/1001-0000007a!myphones!1002!1!Up!Dial!SIP/1002!1003!!!3!196!0377ef02-fcb0-490a-8231-53ed81fa9d4a!1580297330.200\n" +
	"Message/ast_msg_queue!mychatmessages!1000!9!Up!Hangup!!!!!3!33754!!1580263771.180\n"

// fakeControl scripts the PBX control plane.
type fakeControl struct {
	listing    string
	listingErr error
	hangupErr  error
	hungUp     []string
}

func (f *fakeControl) Channels(ctx context.Context) (string, error) {
	return f.listing, f.listingErr
}

func (f *fakeControl) Hangup(ctx context.Context, channel string) error {
	f.hungUp = append(f.hungUp, channel)
	return f.hangupErr
}

// memStatuses is an in-memory ChannelStatusRepository.
type memStatuses struct {
	slots map[string]*models.ChannelStatus
}

func newMemStatuses(ids ...string) *memStatuses {
	m := &memStatuses{slots: make(map[string]*models.ChannelStatus)}
	for _, id := range ids {
		m.slots[id] = &models.ChannelStatus{RequestID: id, State: models.ChannelStateIdle}
	}
	return m
}

func (m *memStatuses) Seed(ctx context.Context, ids []string) error { return nil }

func (m *memStatuses) Get(ctx context.Context, id string) (*models.ChannelStatus, error) {
	st, ok := m.slots[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *st
	return &cp, nil
}

func (m *memStatuses) List(ctx context.Context) ([]models.ChannelStatus, error) {
	var out []models.ChannelStatus
	for _, st := range m.slots {
		out = append(out, *st)
	}
	return out, nil
}

func (m *memStatuses) Update(ctx context.Context, st *models.ChannelStatus) error {
	if _, ok := m.slots[st.RequestID]; !ok {
		return database.ErrNotFound
	}
	cp := *st
	m.slots[st.RequestID] = &cp
	return nil
}

func TestTerminate_MatchAndHangup(t *testing.T) {
	control := &fakeControl{listing: sampleListing}
	statuses := newMemStatuses("000")
	r := NewResolver(control, statuses, nil, "SIP")

	st, err := r.Terminate(context.Background(), "000", "1001")
	if err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	if st.State != models.ChannelStateTerminated {
		t.Errorf("state = %q, want TERMINATED", st.State)
	}
	if st.ChannelID != "SIP/1001-0000007a" {
		t.Errorf("channel = %q, want full identifier", st.ChannelID)
	}
	if len(control.hungUp) != 1 || control.hungUp[0] != "SIP/1001-0000007a" {
		t.Errorf("hangup directives = %v", control.hungUp)
	}
}

func TestTerminate_NoMatchSkipsHangup(t *testing.T) {
	control := &fakeControl{listing: sampleListing}
	statuses := newMemStatuses("000")
	r := NewResolver(control, statuses, nil, "SIP")

	st, err := r.Terminate(context.Background(), "000", "6004")
	if err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	if st.State != models.ChannelStateError {
		t.Errorf("state = %q, want ERROR", st.State)
	}
	if len(control.hungUp) != 0 {
		t.Errorf("hangup issued for absent channel: %v", control.hungUp)
	}
}

func TestTerminate_UnknownRequestID(t *testing.T) {
	control := &fakeControl{listing: sampleListing}
	r := NewResolver(control, newMemStatuses("000"), nil, "SIP")

	_, err := r.Terminate(context.Background(), "777", "1001")
	if !errors.Is(err, database.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if len(control.hungUp) != 0 {
		t.Errorf("hangup issued for unknown request id: %v", control.hungUp)
	}
}

func TestTerminate_HangupFailure(t *testing.T) {
	control := &fakeControl{listing: sampleListing, hangupErr: errors.New("no such channel")}
	r := NewResolver(control, newMemStatuses("000"), nil, "SIP")

	st, err := r.Terminate(context.Background(), "000", "1002")
	if err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	if st.State != models.ChannelStateError {
		t.Errorf("state = %q, want ERROR", st.State)
	}
}

func TestTerminate_TransportFailure(t *testing.T) {
	control := &fakeControl{listingErr: pbx.ErrTransport}
	r := NewResolver(control, newMemStatuses("000"), nil, "SIP")

	st, err := r.Terminate(context.Background(), "000", "1001")
	if err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	if st.State != models.ChannelStateError {
		t.Errorf("state = %q, want ERROR", st.State)
	}
}

func TestTerminate_ReEvaluatesFreshListing(t *testing.T) {
	control := &fakeControl{listing: sampleListing}
	statuses := newMemStatuses("000")
	r := NewResolver(control, statuses, nil, "SIP")

	if _, err := r.Terminate(context.Background(), "000", "1001"); err != nil {
		t.Fatalf("first Terminate: %v", err)
	}

	// The channel is gone from the next listing: a repeat request must not
	// trust the stored TERMINATED state.
	control.listing = "Message/ast_msg_queue!mychatmessages!1000!9!Up\n"
	st, err := r.Terminate(context.Background(), "000", "1001")
	if err != nil {
		t.Fatalf("second Terminate: %v", err)
	}
	if st.State != models.ChannelStateError {
		t.Errorf("state = %q, want ERROR after channel disappeared", st.State)
	}
	if len(control.hungUp) != 1 {
		t.Errorf("hangup directives = %v, want exactly one", control.hungUp)
	}
}

func TestMatchChannel(t *testing.T) {
	tests := []struct {
		name    string
		listing string
		ext     string
		want    string
	}{
		{"first field only", sampleListing, "1002", "SIP/1002-0000007b"},
		{"second record", sampleListing, "1001", "SIP/1001-0000007a"},
		{"absent extension", sampleListing, "9999", ""},
		{"other technology ignored", sampleListing, "ast_msg_queue", ""},
		{"empty listing", "", "1001", ""},
		{"token without dash skipped", "SIP/1001!ctx!!1!Up\n", "1001", ""},
		{"record without separator discarded", "SIP/1001-0000007a\n", "1001", ""},
		{
			"first in listing order wins",
			"SIP/1001-000000aa!a!!1!Up\nSIP/1001-000000bb!b!!1!Up\n",
			"1001",
			"SIP/1001-000000aa",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matchChannel(tt.listing, "SIP", tt.ext); got != tt.want {
				t.Errorf("matchChannel(%q) = %q, want %q", tt.ext, got, tt.want)
			}
		})
	}
}
