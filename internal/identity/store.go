package identity

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base32"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	pkcs12 "software.sslmate.com/src/go-pkcs12"
)

// Store persists signer identities keyed by a normalized form of the
// signer's email address.
type Store interface {
	Load(email string) (*Identity, error)
	Save(id *Identity) error
}

// FileStore keeps one PKCS#12 bundle per signer under a local directory.
// Bundles are encrypted with a shared passphrase and written with 0600
// permissions.
type FileStore struct {
	dir        string
	passphrase string
}

// NewFileStore creates a FileStore rooted at dir, creating it if needed.
func NewFileStore(dir, passphrase string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create identity store directory: %w", err)
	}
	return &FileStore{dir: dir, passphrase: passphrase}, nil
}

// bundlePath derives the bundle file name from the email. The email is
// lowercased and base32hex-encoded so distinct addresses can never map
// to the same file.
func (s *FileStore) bundlePath(email string) string {
	key := base32.HexEncoding.WithPadding(base32.NoPadding).
		EncodeToString([]byte(strings.ToLower(email)))
	return filepath.Join(s.dir, key+".p12")
}

// Load reads a persisted identity. It returns os.ErrNotExist when no
// bundle exists for the email.
func (s *FileStore) Load(email string) (*Identity, error) {
	data, err := os.ReadFile(s.bundlePath(email))
	if err != nil {
		return nil, err
	}

	key, cert, err := pkcs12.Decode(data, s.passphrase)
	if err != nil {
		return nil, fmt.Errorf("failed to decode identity bundle for %s: %w", email, err)
	}

	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("identity bundle for %s holds unexpected key type %T", email, key)
	}
	if err := validateCertificate(cert, email); err != nil {
		return nil, err
	}

	return &Identity{
		Name:        cert.Subject.CommonName,
		Email:       email,
		Certificate: cert,
		PrivateKey:  rsaKey,
	}, nil
}

// Save writes the identity as an encrypted PKCS#12 bundle.
func (s *FileStore) Save(id *Identity) error {
	data, err := pkcs12.Modern.Encode(id.PrivateKey, id.Certificate, nil, s.passphrase)
	if err != nil {
		return fmt.Errorf("failed to encode identity bundle for %s: %w", id.Email, err)
	}
	if err := os.WriteFile(s.bundlePath(id.Email), data, 0o600); err != nil {
		return fmt.Errorf("failed to write identity bundle for %s: %w", id.Email, err)
	}
	return nil
}

func validateCertificate(cert *x509.Certificate, email string) error {
	for _, addr := range cert.EmailAddresses {
		if strings.EqualFold(addr, email) {
			return nil
		}
	}
	return fmt.Errorf("identity bundle certificate does not cover %s", email)
}
