package pdfsig

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testPDF(t *testing.T) []byte {
	t.Helper()
	doc := gofpdf.New("P", "pt", "A4", "")
	doc.AddPage()
	doc.SetFont("Helvetica", "", 12)
	doc.Text(72, 72, "Agreement between the undersigned parties.")

	var buf bytes.Buffer
	require.NoError(t, doc.Output(&buf))
	return buf.Bytes()
}

func testIdentity(t *testing.T, name, email string) (*x509.Certificate, *rsa.PrivateKey) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	now := time.Now().UTC()
	template := &x509.Certificate{
		SerialNumber:          big.NewInt(now.UnixNano()),
		Subject:               pkix.Name{CommonName: name},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(365 * 24 * time.Hour),
		EmailAddresses:        []string{email},
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageContentCommitment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageEmailProtection},
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &priv.PublicKey, priv)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert, priv
}

func TestEmbedProducesNewBytes(t *testing.T) {
	embedder := NewEmbedder("Document Signing Platform", zap.NewNop())
	input := testPDF(t)
	original := append([]byte(nil), input...)

	cert, key := testIdentity(t, "Alice Example", "alice@example.com")
	signed, err := embedder.Embed(input, Request{
		SignerName:  "Alice Example",
		SignerEmail: "alice@example.com",
		Certificate: cert,
		Key:         key,
		Slot:        0,
	})
	require.NoError(t, err)

	assert.Equal(t, original, input, "input buffer must not be mutated")
	assert.NotEqual(t, input, signed)
	assert.Greater(t, len(signed), len(input))
}

func TestEmbedRoundTripValidates(t *testing.T) {
	embedder := NewEmbedder("Document Signing Platform", zap.NewNop())
	cert, key := testIdentity(t, "Alice Example", "alice@example.com")

	signed, err := embedder.Embed(testPDF(t), Request{
		SignerName:  "Alice Example",
		SignerEmail: "alice@example.com",
		Certificate: cert,
		Key:         key,
		Slot:        0,
	})
	require.NoError(t, err)

	infos, err := Validate(signed)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.True(t, infos[0].Intact)
	assert.Equal(t, "Alice Example", infos[0].SignerName)
}

func TestEmbedLayersSequentialSignatures(t *testing.T) {
	embedder := NewEmbedder("Document Signing Platform", zap.NewNop())

	aliceCert, aliceKey := testIdentity(t, "Alice", "alice@example.com")
	bobCert, bobKey := testIdentity(t, "Bob", "bob@example.com")

	once, err := embedder.Embed(testPDF(t), Request{
		SignerName: "Alice", SignerEmail: "alice@example.com",
		Certificate: aliceCert, Key: aliceKey, Slot: 0,
	})
	require.NoError(t, err)

	twice, err := embedder.Embed(once, Request{
		SignerName: "Bob", SignerEmail: "bob@example.com",
		Certificate: bobCert, Key: bobKey, Slot: 1,
	})
	require.NoError(t, err)

	infos, err := Validate(twice)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	for _, info := range infos {
		assert.True(t, info.Intact)
	}
}

func TestEmbedMalformedDocumentFails(t *testing.T) {
	embedder := NewEmbedder("Document Signing Platform", zap.NewNop())
	cert, key := testIdentity(t, "Alice Example", "alice@example.com")

	_, err := embedder.Embed([]byte("not a pdf"), Request{
		SignerName:  "Alice Example",
		SignerEmail: "alice@example.com",
		Certificate: cert,
		Key:         key,
		Slot:        0,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmbedding)
}

func TestFieldNameDeterministic(t *testing.T) {
	a := FieldName(0, "alice@example.com")
	b := FieldName(0, "ALICE@example.com")
	c := FieldName(1, "alice@example.com")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Contains(t, a, "Signature_1_")
	assert.Contains(t, c, "Signature_2_")
}
