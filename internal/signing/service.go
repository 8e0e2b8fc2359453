package signing

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"signhub/signing-backend/pkg/blobstore"
)

// Service drives signing sessions and the signature lifecycle around
// them.
type Service interface {
	// Sign runs one self-sign session: every signer's signature is
	// embedded in order, the artifact is archived, and one record per
	// signer is upserted. Callers get either a complete artifact or an
	// error wrapping ErrSigningFailed, never a partial result.
	Sign(ctx context.Context, req SigningRequest) (*SignedArtifact, error)
	// RefreshStatus re-reads a document's status from its provider,
	// normalizes it and upserts every record of the document.
	RefreshStatus(ctx context.Context, service, documentID string) ([]SignatureRecord, error)
	// Download returns the signed document bytes.
	Download(ctx context.Context, service, documentID string) ([]byte, error)
	Search(ctx context.Context, filter SearchFilter) ([]SignatureRecord, error)
	Delete(ctx context.Context, recordID, deletedBy string) error
	Services() []string
}

type signingService struct {
	repo      Repository
	sequencer *Sequencer
	pool      *WorkerPool
	store     blobstore.BlobStore
	fallback  blobstore.BlobStore
	providers *ProviderRegistry
	logger    *zap.Logger
}

// NewService wires the orchestrator. store is the primary archive;
// fallback keeps signed bytes reachable when the archive is down and
// may be nil if no fallback is configured.
func NewService(repo Repository, sequencer *Sequencer, pool *WorkerPool,
	store, fallback blobstore.BlobStore, providers *ProviderRegistry, logger *zap.Logger) Service {
	return &signingService{
		repo:      repo,
		sequencer: sequencer,
		pool:      pool,
		store:     store,
		fallback:  fallback,
		providers: providers,
		logger:    logger,
	}
}

func (s *signingService) Sign(ctx context.Context, req SigningRequest) (*SignedArtifact, error) {
	if len(req.Signers) == 0 {
		return nil, fmt.Errorf("%w: at least one signer is required", ErrSigningFailed)
	}
	if len(req.Document) == 0 {
		return nil, fmt.Errorf("%w: document is empty", ErrSigningFailed)
	}

	signers := make([]Signer, len(req.Signers))
	copy(signers, req.Signers)
	for i := range signers {
		signers[i].Email = strings.ToLower(strings.TrimSpace(signers[i].Email))
		if signers[i].Mode == "" {
			signers[i].Mode = ModeDirectSigning
		}
	}

	// The sequencing pass is CPU-bound; it runs on the pool so request
	// handling goroutines are not pinned for its duration.
	value, err := s.pool.Submit(ctx, func() (any, error) {
		final, sequenced, err := s.sequencer.ApplyAll(req.Document, signers)
		if err != nil {
			return nil, err
		}
		return &sequencedPass{final: final, signatures: sequenced}, nil
	})
	if err != nil {
		// No artifact exists and no records were written.
		return nil, fmt.Errorf("%w: %v", ErrSigningFailed, err)
	}
	pass := value.(*sequencedPass)

	documentID := uuid.NewString()
	filename := req.Filename
	if filename == "" {
		filename = documentID + ".pdf"
	}

	blobID, archived := s.archive(ctx, documentID, pass.final, filename)

	artifact := &SignedArtifact{
		DocumentID: documentID,
		Document:   pass.final,
		Archived:   archived,
		Results:    make([]SigningResult, 0, len(pass.signatures)),
	}

	for _, sig := range pass.signatures {
		signedAt := sig.SignedAt
		status := Normalize(ServiceSelfSign, "signed")
		signingURL := s.retrievalURL(ctx, documentID, blobID, archived)

		result := SigningResult{
			Email:      sig.Signer.Email,
			Name:       sig.Signer.Name,
			Mode:       sig.Signer.Mode,
			Status:     status,
			Signed:     true,
			SignedAt:   signedAt,
			FieldName:  sig.FieldName,
			SigningURL: signingURL,
		}
		artifact.Results = append(artifact.Results, result)

		_, err := s.repo.Upsert(ctx, RecordKey{
			DocumentID:  documentID,
			SignerEmail: sig.Signer.Email,
			UserID:      req.UserID,
			Service:     ServiceSelfSign,
		}, RecordUpdate{
			SignerName: sig.Signer.Name,
			Status:     status,
			RawStatus:  "signed",
			Signed:     true,
			SignedAt:   &signedAt,
			SigningURL: signingURL,
			BlobID:     blobID,
			Archived:   archived,
		})
		if err != nil {
			// The artifact is already durable; a record failure is
			// surfaced but the signed bytes are not discarded.
			return nil, fmt.Errorf("%w: persisting record for %s: %v", ErrSigningFailed, sig.Signer.Email, err)
		}
	}

	s.logger.Info("Signing session completed",
		zap.String("document_id", documentID),
		zap.Int("signers", len(signers)),
		zap.Bool("archived", archived))

	return artifact, nil
}

type sequencedPass struct {
	final      []byte
	signatures []SequencedSignature
}

// archive uploads the artifact, degrading to the local fallback when
// the primary store rejects it. Durability of the signed bytes takes
// priority over remote archival.
func (s *signingService) archive(ctx context.Context, documentID string, data []byte, filename string) (blobID string, archived bool) {
	blobID, err := s.store.Upload(ctx, data, filename)
	if err == nil {
		return blobID, true
	}

	s.logger.Warn("Artifact upload failed, falling back to local persistence",
		zap.String("document_id", documentID),
		zap.Error(fmt.Errorf("%w: %v", ErrUpload, err)))

	if s.fallback == nil {
		return "", false
	}
	blobID, err = s.fallback.Upload(ctx, data, filename)
	if err != nil {
		s.logger.Error("Local fallback persistence failed",
			zap.String("document_id", documentID),
			zap.Error(err))
		return "", false
	}
	return blobID, false
}

func (s *signingService) retrievalURL(ctx context.Context, documentID, blobID string, archived bool) string {
	if archived {
		url, err := s.store.GetDownloadURL(ctx, blobID)
		if err == nil {
			return url
		}
		s.logger.Warn("Failed to resolve download URL", zap.String("blob_id", blobID), zap.Error(err))
	}
	return fmt.Sprintf("/api/services/%s/documents/%s/download", ServiceSelfSign, documentID)
}

func (s *signingService) RefreshStatus(ctx context.Context, service, documentID string) ([]SignatureRecord, error) {
	records, err := s.repo.FindByDocument(ctx, documentID, service)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrRecordNotFound
	}

	rawStatus := ""
	if service == ServiceSelfSign {
		// Self-sign status is settled at signing time; the sweep only
		// refreshes the check timestamp.
		rawStatus = "signed"
	} else {
		provider, err := s.providers.Get(service)
		if err != nil {
			return nil, err
		}
		rawStatus, err = provider.GetStatus(ctx, documentID)
		if err != nil {
			return nil, fmt.Errorf("failed to query %s status: %w", service, err)
		}
	}

	status := Normalize(service, rawStatus)
	updated := make([]SignatureRecord, 0, len(records))
	for _, record := range records {
		fresh, err := s.repo.Upsert(ctx, RecordKey{
			DocumentID:  record.DocumentID,
			SignerEmail: record.SignerEmail,
			UserID:      record.UserID,
			Service:     record.Service,
		}, RecordUpdate{
			SignerName: record.SignerName,
			Status:     status,
			RawStatus:  rawStatus,
			Signed:     status == StatusSigned || status == StatusCompleted,
			SigningURL: record.SigningURL,
			BlobID:     record.BlobID,
			Archived:   record.Archived,
		})
		if err != nil {
			return nil, err
		}
		updated = append(updated, *fresh)
	}
	return updated, nil
}

func (s *signingService) Download(ctx context.Context, service, documentID string) ([]byte, error) {
	if service != ServiceSelfSign {
		provider, err := s.providers.Get(service)
		if err != nil {
			return nil, err
		}
		return provider.Download(ctx, documentID)
	}

	records, err := s.repo.FindByDocument(ctx, documentID, ServiceSelfSign)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrRecordNotFound
	}

	record := records[0]
	if record.BlobID == "" {
		return nil, fmt.Errorf("document %s has no stored artifact", documentID)
	}
	if record.Archived {
		return s.store.Download(ctx, record.BlobID)
	}
	if s.fallback == nil {
		return nil, fmt.Errorf("document %s is not archived and no fallback store is configured", documentID)
	}
	return s.fallback.Download(ctx, record.BlobID)
}

func (s *signingService) Search(ctx context.Context, filter SearchFilter) ([]SignatureRecord, error) {
	return s.repo.Search(ctx, filter)
}

func (s *signingService) Delete(ctx context.Context, recordID, deletedBy string) error {
	return s.repo.SoftDelete(ctx, recordID, deletedBy)
}

func (s *signingService) Services() []string {
	return s.providers.Services()
}
