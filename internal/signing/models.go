package signing

import "time"

// SigningMode selects how a signer participates in a session.
type SigningMode string

const (
	ModeDirectSigning     SigningMode = "DIRECT_SIGNING"
	ModeEmailNotification SigningMode = "EMAIL_NOTIFICATION"
)

// Valid reports whether the mode is one of the closed set.
func (m SigningMode) Valid() bool {
	return m == ModeDirectSigning || m == ModeEmailNotification
}

// Signer is one participant in a signing session. Order within a
// request is significant: it fixes both signature placement and the
// order of persisted records.
type Signer struct {
	Email string      `json:"email" binding:"required,email"`
	Name  string      `json:"name" binding:"required"`
	Mode  SigningMode `json:"mode"`
}

// SigningRequest is the input aggregate for one session.
type SigningRequest struct {
	Document []byte            `json:"-"`
	Signers  []Signer          `json:"signers"`
	UserID   string            `json:"user_id"`
	Filename string            `json:"filename"`
	Metadata map[string]string `json:"metadata"`
}

// SigningResult is the per-signer outcome within a SignedArtifact.
type SigningResult struct {
	Email      string          `json:"email"`
	Name       string          `json:"name"`
	Mode       SigningMode     `json:"mode"`
	Status     CanonicalStatus `json:"status"`
	Signed     bool            `json:"signed"`
	SignedAt   time.Time       `json:"signed_at"`
	FieldName  string          `json:"field_name"`
	SigningURL string          `json:"signing_url,omitempty"`
}

// SignedArtifact is the output aggregate of a session: the final PDF
// bytes with all signatures layered, plus one result per signer.
// Archived reports whether the artifact reached remote blob storage;
// when false the bytes live only in the local fallback store.
type SignedArtifact struct {
	DocumentID string          `json:"document_id"`
	Document   []byte          `json:"-"`
	Results    []SigningResult `json:"results"`
	Archived   bool            `json:"archived"`
}

// SignatureRecord is the persisted projection of one signer's status on
// one document for one service. Unique on
// (DocumentID, SignerEmail, UserID, Service).
type SignatureRecord struct {
	ID              string          `bson:"_id,omitempty" json:"id"`
	DocumentID      string          `bson:"document_id" json:"document_id"`
	SignerEmail     string          `bson:"signer_email" json:"signer_email"`
	SignerName      string          `bson:"signer_name" json:"signer_name"`
	UserID          string          `bson:"user_id" json:"user_id"`
	Service         string          `bson:"service" json:"service"`
	Status          CanonicalStatus `bson:"status" json:"status"`
	RawStatus       string          `bson:"raw_status" json:"raw_status"`
	Signed          bool            `bson:"signed" json:"signed"`
	SignedAt        *time.Time      `bson:"signed_at,omitempty" json:"signed_at,omitempty"`
	SigningURL      string          `bson:"signing_url,omitempty" json:"signing_url,omitempty"`
	BlobID          string          `bson:"blob_id,omitempty" json:"blob_id,omitempty"`
	Archived        bool            `bson:"archived" json:"archived"`
	CreatedAt       time.Time       `bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `bson:"updated_at" json:"updated_at"`
	LastStatusCheck time.Time       `bson:"last_status_check" json:"last_status_check"`
	DeletedAt       *time.Time      `bson:"deleted_at,omitempty" json:"deleted_at,omitempty"`
	DeletedBy       string          `bson:"deleted_by,omitempty" json:"deleted_by,omitempty"`
}

// RecordKey identifies a SignatureRecord for upsert purposes.
type RecordKey struct {
	DocumentID  string
	SignerEmail string
	UserID      string
	Service     string
}

// SearchFilter narrows record searches. Zero fields match everything;
// soft-deleted records are always excluded.
type SearchFilter struct {
	DocumentID  string
	SignerEmail string
	Status      CanonicalStatus
	Service     string
	UserID      string
	Limit       int64
}
