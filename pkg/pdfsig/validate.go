package pdfsig

import (
	"crypto/x509"
	"fmt"
	"os"
	"time"

	"github.com/digitorus/pdfsign/verify"
)

// SignatureInfo summarizes one embedded signature after validation.
type SignatureInfo struct {
	SignerName  string
	Reason      string
	ContactInfo string
	Intact      bool
	SigningTime *time.Time
}

// Validate checks every signature embedded in the document and reports
// whether each one is cryptographically intact for the exact bytes it
// covers. Self-issued certificates are accepted; trust-chain building
// against system roots is deliberately not required.
func Validate(pdfBytes []byte) ([]SignatureInfo, error) {
	tmp, err := os.CreateTemp("", "pdfsig-validate-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch file: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if _, err := tmp.Write(pdfBytes); err != nil {
		return nil, fmt.Errorf("failed to write scratch file: %w", err)
	}
	if _, err := tmp.Seek(0, 0); err != nil {
		return nil, fmt.Errorf("failed to rewind scratch file: %w", err)
	}

	opts := &verify.VerifyOptions{
		AllowedEKUs: []x509.ExtKeyUsage{
			x509.ExtKeyUsageEmailProtection,
			x509.ExtKeyUsageClientAuth,
		},
		RequireDigitalSignatureKU: true,
		AllowUntrustedRoots:       true,
		TrustSignatureTime:        true,
	}

	resp, err := verify.VerifyFileWithOptions(tmp, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to verify document: %w", err)
	}

	infos := make([]SignatureInfo, 0, len(resp.Signers))
	for _, s := range resp.Signers {
		infos = append(infos, SignatureInfo{
			SignerName:  s.Name,
			Reason:      s.Reason,
			ContactInfo: s.ContactInfo,
			Intact:      s.ValidSignature,
			SigningTime: s.SignatureTime,
		})
	}
	return infos, nil
}
