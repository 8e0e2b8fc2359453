package signing

import (
	"errors"

	"signhub/signing-backend/pkg/pdfsig"
)

var (
	// ErrEmbedding marks a fatal cryptographic embedding failure. A
	// visual-stamp failure alone never produces it.
	ErrEmbedding = pdfsig.ErrEmbedding

	// ErrSequencing marks a failed multi-signer pass; no partial
	// artifact survives it.
	ErrSequencing = errors.New("signer sequencing failed")

	// ErrUpload marks a blob-store archival failure. Non-fatal to the
	// signing result: the artifact degrades to local persistence.
	ErrUpload = errors.New("artifact upload failed")

	// ErrSigningFailed is what session callers observe for any fatal
	// sub-step. Wraps the underlying cause.
	ErrSigningFailed = errors.New("signing session failed")

	// ErrRecordNotFound is returned by the repository for lookups that
	// match nothing.
	ErrRecordNotFound = errors.New("signature record not found")

	// ErrAlreadyDeleted is returned when soft-deleting a record twice.
	ErrAlreadyDeleted = errors.New("signature record already deleted")

	// ErrUnknownService is returned for a service with no registered
	// provider.
	ErrUnknownService = errors.New("unknown signing service")
)
