package service

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/bibleschool-api/pkg/export"
)

// ArtifactStore keeps generated documents and hands out retrievable locators.
type ArtifactStore interface {
	Put(ctx context.Context, key string, data []byte) (string, error)
	PublicURL(ref string) (string, error)
	Delete(ctx context.Context, ref string) error
}

type certificateRenderer interface {
	Render(data export.CertificateData) ([]byte, error)
}

// CertificateRequest describes the certificate to issue.
type CertificateRequest struct {
	StudentID      string
	StudentName    string
	ProgramName    string
	DistrictName   string
	GraduationDate time.Time
}

// CredentialService renders graduation certificates and stores them.
type CredentialService struct {
	renderer    certificateRenderer
	store       ArtifactStore
	signatories []export.Signatory
	logger      *zap.Logger
}

// NewCredentialService constructs a CredentialService. Signatories are printed in the given order.
func NewCredentialService(renderer certificateRenderer, store ArtifactStore, signatories []export.Signatory, logger *zap.Logger) *CredentialService {
	if renderer == nil {
		renderer = export.NewCertificateRenderer()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CredentialService{
		renderer:    renderer,
		store:       store,
		signatories: append([]export.Signatory(nil), signatories...),
		logger:      logger,
	}
}

// GenerateCertificate renders the document. Equal requests produce equal bytes.
func (s *CredentialService) GenerateCertificate(req CertificateRequest) ([]byte, error) {
	return s.renderer.Render(export.CertificateData{
		StudentName:    req.StudentName,
		ProgramName:    req.ProgramName,
		DistrictName:   req.DistrictName,
		GraduationDate: req.GraduationDate,
		Signatories:    s.signatories,
	})
}

// Store saves the document under a fresh key for the student and returns its reference.
func (s *CredentialService) Store(ctx context.Context, studentID string, document []byte) (string, error) {
	if s.store == nil {
		return "", fmt.Errorf("artifact store not configured")
	}
	key := path.Join(studentID, uuid.NewString()+".pdf")
	ref, err := s.store.Put(ctx, key, document)
	if err != nil {
		return "", fmt.Errorf("store certificate: %w", err)
	}
	return ref, nil
}

// Issue renders and stores a certificate.
func (s *CredentialService) Issue(ctx context.Context, req CertificateRequest) (string, error) {
	document, err := s.GenerateCertificate(req)
	if err != nil {
		return "", fmt.Errorf("render certificate: %w", err)
	}
	return s.Store(ctx, req.StudentID, document)
}

// PublicURL resolves a stored reference to a signed download URL.
func (s *CredentialService) PublicURL(ref string) (string, error) {
	if s.store == nil {
		return "", fmt.Errorf("artifact store not configured")
	}
	return s.store.PublicURL(ref)
}

// Remove deletes an artifact whose graduation did not commit.
func (s *CredentialService) Remove(ctx context.Context, ref string) {
	if s.store == nil || ref == "" {
		return
	}
	if err := s.store.Delete(ctx, ref); err != nil {
		s.logger.Warn("failed to remove orphaned certificate", zap.String("certificate_ref", ref), zap.Error(err))
	}
}
