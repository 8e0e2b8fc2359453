package signing

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"signhub/signing-backend/internal/identity"
	"signhub/signing-backend/pkg/pdfsig"
)

// stubIdentities hands out throwaway self-signed identities without
// touching disk.
type stubIdentities struct {
	issued map[string]*identity.Identity
	err    error
}

func newStubIdentities() *stubIdentities {
	return &stubIdentities{issued: make(map[string]*identity.Identity)}
}

func (s *stubIdentities) GetOrCreate(name, email string) (*identity.Identity, error) {
	if s.err != nil {
		return nil, s.err
	}
	if ident, ok := s.issued[email]; ok {
		return ident, nil
	}

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	template := &x509.Certificate{
		SerialNumber:   big.NewInt(time.Now().UnixNano()),
		Subject:        pkix.Name{CommonName: name},
		NotBefore:      time.Now().Add(-time.Hour),
		NotAfter:       time.Now().Add(24 * time.Hour),
		EmailAddresses: []string{email},
		KeyUsage:       x509.KeyUsageDigitalSignature | x509.KeyUsageContentCommitment,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &priv.PublicKey, priv)
	if err != nil {
		return nil, err
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, err
	}

	ident := &identity.Identity{Name: name, Email: email, Certificate: cert, PrivateKey: priv}
	s.issued[email] = ident
	return ident, nil
}

// stubEmbedder appends a marker per embedding instead of real PDF
// surgery, and can be told to fail at a given slot.
type stubEmbedder struct {
	failAtSlot int
	calls      []pdfsig.Request
}

func newStubEmbedder() *stubEmbedder {
	return &stubEmbedder{failAtSlot: -1}
}

func (e *stubEmbedder) Embed(pdfBytes []byte, req pdfsig.Request) ([]byte, error) {
	e.calls = append(e.calls, req)
	if req.Slot == e.failAtSlot {
		return nil, fmt.Errorf("%w for %s: crypto step failed", pdfsig.ErrEmbedding, req.SignerEmail)
	}
	marker := fmt.Sprintf("|signed:%d:%s", req.Slot, req.SignerEmail)
	return append(append([]byte(nil), pdfBytes...), []byte(marker)...), nil
}

func testSigners(n int) []Signer {
	signers := make([]Signer, n)
	for i := range signers {
		signers[i] = Signer{
			Email: fmt.Sprintf("signer%d@example.com", i),
			Name:  fmt.Sprintf("Signer %d", i),
			Mode:  ModeDirectSigning,
		}
	}
	return signers
}

func TestApplyAllPreservesSignerOrder(t *testing.T) {
	embedder := newStubEmbedder()
	seq := NewSequencer(newStubIdentities(), embedder, zap.NewNop())

	input := []byte("%PDF-1.7 body")
	out, results, err := seq.ApplyAll(input, testSigners(3))
	require.NoError(t, err)

	require.Len(t, results, 3)
	require.Len(t, embedder.calls, 3)
	for i, call := range embedder.calls {
		assert.Equal(t, i, call.Slot)
		assert.Equal(t, fmt.Sprintf("signer%d@example.com", i), call.SignerEmail)
	}

	// Each step consumed the previous step's output.
	assert.Contains(t, string(out), "|signed:0:signer0@example.com|signed:1:signer1@example.com|signed:2:signer2@example.com")
}

func TestApplyAllDoesNotMutateInput(t *testing.T) {
	seq := NewSequencer(newStubIdentities(), newStubEmbedder(), zap.NewNop())

	input := []byte("%PDF-1.7 body")
	original := append([]byte(nil), input...)

	_, _, err := seq.ApplyAll(input, testSigners(2))
	require.NoError(t, err)
	assert.Equal(t, original, input)
}

func TestApplyAllFailsAtomically(t *testing.T) {
	embedder := newStubEmbedder()
	embedder.failAtSlot = 1
	seq := NewSequencer(newStubIdentities(), embedder, zap.NewNop())

	input := []byte("%PDF-1.7 body")
	original := append([]byte(nil), input...)

	out, results, err := seq.ApplyAll(input, testSigners(3))
	require.ErrorIs(t, err, ErrSequencing)
	assert.ErrorIs(t, err, ErrEmbedding, "the embedding cause stays matchable through the wrap")
	assert.Nil(t, out)
	assert.Nil(t, results)
	assert.Equal(t, original, input)
	assert.Len(t, embedder.calls, 2, "signer 3 never runs after signer 2 fails")
}

func TestApplyAllRejectsEmptySignerList(t *testing.T) {
	seq := NewSequencer(newStubIdentities(), newStubEmbedder(), zap.NewNop())
	_, _, err := seq.ApplyAll([]byte("%PDF"), nil)
	assert.ErrorIs(t, err, ErrSequencing)
}

func TestApplyAllRejectsUnknownMode(t *testing.T) {
	seq := NewSequencer(newStubIdentities(), newStubEmbedder(), zap.NewNop())
	_, _, err := seq.ApplyAll([]byte("%PDF"), []Signer{
		{Email: "a@example.com", Name: "A", Mode: SigningMode("CARRIER_PIGEON")},
	})
	assert.ErrorIs(t, err, ErrSequencing)
}

func TestApplyAllPropagatesIdentityFailure(t *testing.T) {
	identities := newStubIdentities()
	identities.err = identity.ErrKeyGeneration
	seq := NewSequencer(identities, newStubEmbedder(), zap.NewNop())

	_, _, err := seq.ApplyAll([]byte("%PDF"), testSigners(1))
	assert.ErrorIs(t, err, ErrSequencing)
}
