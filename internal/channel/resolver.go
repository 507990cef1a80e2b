// Package channel resolves a dispatch console's target extension against the
// PBX's live-channel listing and issues a single termination attempt.
package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dispatchd/dispatchd/internal/database"
	"github.com/dispatchd/dispatchd/internal/database/models"
	"github.com/dispatchd/dispatchd/internal/pbx"
)

// ControlPlane is the slice of the PBX control client the resolver needs.
type ControlPlane interface {
	pbx.ChannelLister
	pbx.Hangupper
}

// Resolver owns the per-console channel status slots and drives the
// terminate operation against the PBX control plane.
type Resolver struct {
	control  ControlPlane
	statuses database.ChannelStatusRepository
	audit    database.TerminationLogRepository
	tech     string
}

// NewResolver creates a Resolver matching live channels against the given
// technology prefix (e.g. "SIP").
func NewResolver(control ControlPlane, statuses database.ChannelStatusRepository, audit database.TerminationLogRepository, tech string) *Resolver {
	return &Resolver{control: control, statuses: statuses, audit: audit, tech: tech}
}

// Terminate looks up the live channel for ext and requests its hangup.
// The console's status slot is re-evaluated against a fresh listing on
// every call; a stale TERMINATED never short-circuits the attempt.
//
// An unknown requestID returns database.ErrNotFound. PBX failures do not
// surface as errors: they fold into the returned status (state ERROR), which
// is the contract the dispatcher client consumes.
func (r *Resolver) Terminate(ctx context.Context, requestID, ext string) (*models.ChannelStatus, error) {
	st, err := r.statuses.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}

	st.ChannelID = ext
	st.State = models.ChannelStateError
	detail := ""

	listing, err := r.control.Channels(ctx)
	if err != nil {
		if errors.Is(err, pbx.ErrTransport) {
			detail = "control transport failure"
		} else {
			detail = "channel listing failed"
		}
		slog.Error("terminate: channel listing failed", "request_id", requestID, "extension", ext, "error", err)
	} else if match := matchChannel(listing, r.tech, ext); match == "" {
		detail = "channel not present"
		slog.Info("terminate: no live channel for extension", "request_id", requestID, "extension", ext)
	} else {
		st.ChannelID = match
		if err := r.control.Hangup(ctx, match); err != nil {
			detail = "hangup directive failed"
			slog.Error("terminate: hangup failed", "request_id", requestID, "channel", match, "error", err)
		} else {
			st.State = models.ChannelStateTerminated
			slog.Info("terminate: channel terminated", "request_id", requestID, "channel", match)
		}
	}

	if err := r.statuses.Update(ctx, st); err != nil {
		return nil, fmt.Errorf("updating channel status: %w", err)
	}

	if r.audit != nil {
		entry := &models.TerminationLog{
			RequestID: requestID,
			Extension: ext,
			Channel:   st.ChannelID,
			State:     st.State,
			Detail:    detail,
		}
		if err := r.audit.Create(ctx, entry); err != nil {
			slog.Warn("terminate: audit log write failed", "request_id", requestID, "error", err)
		}
	}

	return st, nil
}

// matchChannel scans the raw concise listing and returns the full channel
// identifier of the first record whose first field contains tech/ext.
// Listing order is the PBX's own order and is authoritative: when two legs
// of one call share the extension, the first listed wins.
//
// Records are newline-separated; fields within a record are separated by
// '!'. Only the first field of each record (the technology/identifier
// token) is considered, and a token without a '-' separator is malformed
// (e.g. truncated output) and skipped.
func matchChannel(listing, tech, ext string) string {
	needle := tech + "/" + ext

	const (
		stateTokenStart = iota // at the start of a record's first field
		stateInToken           // collecting the first field
		stateSkipRest          // past the first '!', waiting for newline
	)

	state := stateTokenStart
	var token strings.Builder

	for i := 0; i < len(listing); i++ {
		ch := listing[i]
		if ch == '\n' || ch == '\r' {
			// A record that never reached '!' has no complete first
			// field; discard it.
			token.Reset()
			state = stateTokenStart
			continue
		}

		switch state {
		case stateTokenStart, stateInToken:
			if ch == '!' {
				tok := token.String()
				token.Reset()
				state = stateSkipRest
				if strings.Contains(tok, "-") && strings.Contains(tok, needle) {
					return tok
				}
				continue
			}
			token.WriteByte(ch)
			state = stateInToken
		case stateSkipRest:
			// drop until end of record
		}
	}

	return ""
}
