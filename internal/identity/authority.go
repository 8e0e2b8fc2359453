package identity

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrKeyGeneration indicates the underlying crypto layer failed to
// produce a keypair or certificate. It is fatal to the signing session.
var ErrKeyGeneration = errors.New("key generation failed")

const (
	keyBits  = 2048
	validity = 365 * 24 * time.Hour
)

// Authority issues and caches self-signed signer identities. Each
// distinct email owns at most one identity; concurrent requests for the
// same email are collapsed so only one creation ever runs.
type Authority struct {
	store        Store
	organization string
	logger       *zap.Logger
	group        singleflight.Group
}

// NewAuthority creates an Authority backed by the given store.
func NewAuthority(store Store, organization string, logger *zap.Logger) *Authority {
	return &Authority{
		store:        store,
		organization: organization,
		logger:       logger,
	}
}

// GetOrCreate returns the persisted identity for the email, creating and
// persisting a fresh one on first use. A corrupt or unreadable bundle is
// replaced by a new identity rather than failing the request.
func (a *Authority) GetOrCreate(signerName, signerEmail string) (*Identity, error) {
	key := strings.ToLower(signerEmail)

	v, err, _ := a.group.Do(key, func() (interface{}, error) {
		id, err := a.store.Load(signerEmail)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			a.logger.Warn("Failed to load persisted identity, regenerating",
				zap.String("signer_email", signerEmail),
				zap.Error(err))
		}

		id, err = a.issue(signerName, signerEmail)
		if err != nil {
			return nil, err
		}
		if err := a.store.Save(id); err != nil {
			return nil, fmt.Errorf("failed to persist identity for %s: %w", signerEmail, err)
		}
		return id, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Identity), nil
}

// issue builds a fresh RSA keypair and self-signed certificate bound to
// the signer. Subject CN is the signer name and the email is carried as
// a Subject Alternative Name.
func (a *Authority) issue(signerName, signerEmail string) (*Identity, error) {
	priv, err := rsa.GenerateKey(rand.Reader, keyBits)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyGeneration, err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyGeneration, err)
	}

	now := time.Now().UTC()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName:   signerName,
			Organization: []string{a.organization},
		},
		NotBefore:             now,
		NotAfter:              now.Add(validity),
		EmailAddresses:        []string{signerEmail},
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageContentCommitment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageEmailProtection, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &priv.PublicKey, priv)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyGeneration, err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyGeneration, err)
	}

	a.logger.Info("Issued signer identity",
		zap.String("signer_email", signerEmail),
		zap.String("serial", serial.String()),
		zap.Time("not_after", cert.NotAfter))

	return &Identity{
		Name:        signerName,
		Email:       signerEmail,
		Certificate: cert,
		PrivateKey:  priv,
	}, nil
}
