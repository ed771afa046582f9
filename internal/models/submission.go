package models

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// SubmissionStatus captures the lifecycle of a ledger entry.
type SubmissionStatus string

const (
	SubmissionStatusUploaded SubmissionStatus = "uploaded"
)

// ClientMetadata is the opaque key-value bag sent by recording clients.
// Recognised keys are normalised on registration; anything else is stored verbatim.
// Numbers decode as json.Number so integers beyond 2^53 survive a round trip.
type ClientMetadata map[string]interface{}

// UnmarshalJSON decodes the bag keeping numbers as written.
func (m *ClientMetadata) UnmarshalJSON(raw []byte) error {
	decoded, err := decodeClientMetadata(raw)
	if err != nil {
		return err
	}
	*m = decoded
	return nil
}

func decodeClientMetadata(raw []byte) (ClientMetadata, error) {
	var decoded map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&decoded); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("unexpected data after client metadata object")
	}
	return ClientMetadata(decoded), nil
}

// Value encodes the bag as JSON text for storage.
func (m ClientMetadata) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Scan decodes a JSON column into the bag.
func (m *ClientMetadata) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*m = ClientMetadata{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("scan client metadata: unsupported type %T", src)
	}
	decoded := ClientMetadata{}
	if len(raw) > 0 {
		var err error
		if decoded, err = decodeClientMetadata(raw); err != nil {
			return fmt.Errorf("scan client metadata: %w", err)
		}
	}
	if decoded == nil {
		decoded = ClientMetadata{}
	}
	*m = decoded
	return nil
}

// CaptureMetadata describes the uploaded audio blob.
type CaptureMetadata struct {
	MimeType   string `json:"mime_type" validate:"required,max=100"`
	SizeBytes  int64  `json:"size_bytes" validate:"gte=0"`
	DurationMs int64  `json:"duration_ms" validate:"gte=0"`
}

// Submission is the canonical ledger entry for one recorded audio file.
type Submission struct {
	ID             string           `db:"id" json:"id"`
	ContributorID  string           `db:"contributor_id" json:"contributor_id"`
	ItemID         string           `db:"item_id" json:"item_id"`
	CollectionID   string           `db:"collection_id" json:"collection_id"`
	ObjectPath     string           `db:"object_path" json:"object_path"`
	MimeType       string           `db:"mime_type" json:"mime_type"`
	SizeBytes      int64            `db:"size_bytes" json:"size_bytes"`
	DurationMs     int64            `db:"duration_ms" json:"duration_ms"`
	ClientMetadata ClientMetadata   `db:"client_metadata" json:"client_metadata"`
	Status         SubmissionStatus `db:"status" json:"status"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time        `db:"updated_at" json:"updated_at"`
}

// MirrorEntry is the per-contributor copy of a submission used for self-listing.
type MirrorEntry struct {
	ContributorID string           `db:"contributor_id" json:"-"`
	SubmissionID  string           `db:"submission_id" json:"submission_id"`
	ItemID        string           `db:"item_id" json:"item_id"`
	CollectionID  string           `db:"collection_id" json:"collection_id"`
	ItemLabel     string           `db:"item_label" json:"item_label"`
	ObjectPath    string           `db:"object_path" json:"object_path"`
	MimeType      string           `db:"mime_type" json:"mime_type"`
	SizeBytes     int64            `db:"size_bytes" json:"size_bytes"`
	DurationMs    int64            `db:"duration_ms" json:"duration_ms"`
	Status        SubmissionStatus `db:"status" json:"status"`
	CreatedAt     time.Time        `db:"created_at" json:"created_at"`
}

// MirrorFilter selects one page of a contributor's mirror, newest first.
type MirrorFilter struct {
	ContributorID string
	After         *MirrorCursor
	Limit         int
}

// MirrorCursor is the keyset position after which the next page starts.
type MirrorCursor struct {
	CreatedAt    time.Time
	SubmissionID string
}

// RegisterSubmissionRequest is the registration call payload.
type RegisterSubmissionRequest struct {
	SubmissionID    string          `json:"submission_id" validate:"required,uuid"`
	ObjectPath      string          `json:"object_path" validate:"required,max=512"`
	ItemID          string          `json:"item_id" validate:"required,max=128"`
	CollectionID    string          `json:"collection_id" validate:"required,max=128"`
	CaptureMetadata CaptureMetadata `json:"capture_metadata"`
	ClientMetadata  ClientMetadata  `json:"client_metadata"`
}

// RegisterSubmissionResult is returned by a successful registration.
type RegisterSubmissionResult struct {
	OK                bool             `json:"ok"`
	SubmissionID      string           `json:"submission_id"`
	Status            SubmissionStatus `json:"status"`
	AlreadyRegistered bool             `json:"already_registered"`
}

// DeleteSubmissionResult is returned by a successful deletion.
type DeleteSubmissionResult struct {
	OK           bool   `json:"ok"`
	SubmissionID string `json:"submission_id"`
	Deleted      bool   `json:"deleted"`
}
