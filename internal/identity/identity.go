package identity

import (
	"crypto/rsa"
	"crypto/x509"
	"time"
)

// Identity is a signer's self-issued keypair and certificate, bound to
// the signer's name and email address.
type Identity struct {
	Name        string
	Email       string
	Certificate *x509.Certificate
	PrivateKey  *rsa.PrivateKey
}

// SerialNumber returns the certificate serial number as a decimal string.
func (id *Identity) SerialNumber() string {
	return id.Certificate.SerialNumber.String()
}

// NotBefore returns the start of the certificate validity window.
func (id *Identity) NotBefore() time.Time {
	return id.Certificate.NotBefore
}

// NotAfter returns the end of the certificate validity window.
func (id *Identity) NotAfter() time.Time {
	return id.Certificate.NotAfter
}
