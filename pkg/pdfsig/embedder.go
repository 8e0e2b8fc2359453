// Package pdfsig embeds and validates detached PKCS#7 signatures in PDF
// documents. Each embedding appends an incremental update, so earlier
// signatures in the same document stay byte-for-byte intact.
package pdfsig

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"encoding/base32"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/digitorus/pdf"
	"github.com/digitorus/pdfsign/sign"
	"go.uber.org/zap"
)

// ErrEmbedding indicates the cryptographic signing step itself failed.
// A visual-stamp failure alone never produces it; that path falls back
// to an invisible signature.
var ErrEmbedding = errors.New("signature embedding failed")

// Field geometry: each slot gets its own vertical band on the first page
// so stacked signatures never overlap.
const (
	fieldLeft   = 50.0
	fieldRight  = 330.0
	fieldHeight = 80.0
	fieldPitch  = 100.0
	fieldBottom = 50.0
)

// Request describes one signature to embed.
type Request struct {
	SignerName  string
	SignerEmail string
	Certificate *x509.Certificate
	Key         crypto.Signer
	// Slot is the zero-based position of the signer in the sequence and
	// determines the visual placement of the signature field.
	Slot int
}

// Embedder appends signature fields to PDF documents.
type Embedder struct {
	location string
	logger   *zap.Logger
}

// NewEmbedder creates an Embedder. The location string is recorded in
// every signature dictionary.
func NewEmbedder(location string, logger *zap.Logger) *Embedder {
	return &Embedder{location: location, logger: logger}
}

// FieldName derives the deterministic signature field name for a slot.
func FieldName(slot int, email string) string {
	enc := base32.HexEncoding.WithPadding(base32.NoPadding).
		EncodeToString([]byte(strings.ToLower(email)))
	return fmt.Sprintf("Signature_%d_%s", slot+1, enc)
}

// Embed signs the document with the given identity and returns the new
// document bytes. The input slice is never modified. If the visible
// appearance cannot be produced the signature is embedded without one;
// only a failure of the cryptographic step itself is returned as an
// error.
func (e *Embedder) Embed(pdfBytes []byte, req Request) ([]byte, error) {
	signed, err := e.signOnce(pdfBytes, req, true)
	if err == nil {
		return signed, nil
	}

	e.logger.Warn("Visible signature stamp failed, retrying without appearance",
		zap.String("signer_email", req.SignerEmail),
		zap.Int("slot", req.Slot),
		zap.Error(err))

	signed, err = e.signOnce(pdfBytes, req, false)
	if err != nil {
		return nil, fmt.Errorf("%w for %s: %v", ErrEmbedding, req.SignerEmail, err)
	}
	return signed, nil
}

func (e *Embedder) signOnce(pdfBytes []byte, req Request, visible bool) ([]byte, error) {
	rdr, err := pdf.NewReader(bytes.NewReader(pdfBytes), int64(len(pdfBytes)))
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}

	data := sign.SignData{
		Signature: sign.SignDataSignature{
			Info: sign.SignDataSignatureInfo{
				Name:        req.SignerName,
				Location:    e.location,
				Reason:      fmt.Sprintf("Document signed by %s", req.SignerName),
				ContactInfo: req.SignerEmail,
				Date:        time.Now().UTC(),
			},
			CertType:   sign.ApprovalSignature,
			DocMDPPerm: sign.AllowFillingExistingFormFieldsAndSignaturesPerms,
		},
		Signer:          req.Key,
		DigestAlgorithm: crypto.SHA256,
		Certificate:     req.Certificate,
	}
	if visible {
		bottom := fieldBottom + float64(req.Slot)*fieldPitch
		data.Appearance = sign.Appearance{
			Visible:     true,
			Page:        1,
			LowerLeftX:  fieldLeft,
			LowerLeftY:  bottom,
			UpperRightX: fieldRight,
			UpperRightY: bottom + fieldHeight,
		}
	}

	var out bytes.Buffer
	if err := sign.Sign(bytes.NewReader(pdfBytes), &out, rdr, int64(len(pdfBytes)), data); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
