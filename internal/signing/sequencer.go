package signing

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"signhub/signing-backend/internal/identity"
	"signhub/signing-backend/pkg/pdfsig"
)

// IdentityProvider issues or retrieves a signer's cryptographic
// identity. Satisfied by identity.Authority.
type IdentityProvider interface {
	GetOrCreate(signerName, signerEmail string) (*identity.Identity, error)
}

// SignatureEmbedder layers one signature into a PDF. Satisfied by
// pdfsig.Embedder.
type SignatureEmbedder interface {
	Embed(pdfBytes []byte, req pdfsig.Request) ([]byte, error)
}

// SequencedSignature records one signer's embedding within a pass.
type SequencedSignature struct {
	Signer    Signer
	FieldName string
	SignedAt  time.Time
}

// Sequencer applies the embedder once per signer, strictly in input
// order. Each step consumes the previous step's output, so a single
// pass never runs signers concurrently.
type Sequencer struct {
	identities IdentityProvider
	embedder   SignatureEmbedder
	logger     *zap.Logger
}

func NewSequencer(identities IdentityProvider, embedder SignatureEmbedder, logger *zap.Logger) *Sequencer {
	return &Sequencer{identities: identities, embedder: embedder, logger: logger}
}

// ApplyAll signs the document once per signer and returns the final
// bytes with all signatures layered. The pass is atomic: any fatal
// failure discards the working buffer, leaving the caller's input
// untouched and returning no partial artifact.
func (s *Sequencer) ApplyAll(pdfBytes []byte, signers []Signer) ([]byte, []SequencedSignature, error) {
	if len(signers) == 0 {
		return nil, nil, fmt.Errorf("%w: at least one signer is required", ErrSequencing)
	}
	for i, signer := range signers {
		switch signer.Mode {
		case ModeDirectSigning, ModeEmailNotification:
		default:
			return nil, nil, fmt.Errorf("%w: signer %d has unknown mode %q", ErrSequencing, i, signer.Mode)
		}
	}

	working := append([]byte(nil), pdfBytes...)
	results := make([]SequencedSignature, 0, len(signers))

	for slot, signer := range signers {
		ident, err := s.identities.GetOrCreate(signer.Name, signer.Email)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: identity for %s: %v", ErrSequencing, signer.Email, err)
		}

		signed, err := s.embedder.Embed(working, pdfsig.Request{
			SignerName:  signer.Name,
			SignerEmail: signer.Email,
			Certificate: ident.Certificate,
			Key:         ident.PrivateKey,
			Slot:        slot,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("%w: signer %s at slot %d: %w", ErrSequencing, signer.Email, slot, err)
		}

		working = signed
		results = append(results, SequencedSignature{
			Signer:    signer,
			FieldName: pdfsig.FieldName(slot, signer.Email),
			SignedAt:  time.Now().UTC(),
		})

		s.logger.Debug("Embedded signature",
			zap.String("signer", signer.Email),
			zap.Int("slot", slot))
	}

	return working, results, nil
}
