package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Shri1927/freelance-escrow/backend/config"
	"github.com/Shri1927/freelance-escrow/backend/model"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ArchiveService writes a durable copy of every signed agreement to object
// storage. The archive is write-once evidence: the object is the snapshot
// the parties signed, independent of the live contract record.
type ArchiveService struct {
	client *minio.Client
	bucket string
	config *config.ArchiveConfig
}

// archivedAgreement is the object body stored per signed contract
type archivedAgreement struct {
	ContractID   string                 `json:"contract_id"`
	JobID        string                 `json:"job_id"`
	ClientID     string                 `json:"client_id"`
	FreelancerID string                 `json:"freelancer_id"`
	Amount       string                 `json:"amount"`
	Currency     string                 `json:"currency"`
	SignedAt     *time.Time             `json:"signed_at"`
	Agreement    *model.SignedAgreement `json:"agreement"`
}

func NewArchiveService(cfg *config.ArchiveConfig) (*ArchiveService, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &ArchiveService{
		client: client,
		bucket: cfg.Bucket,
		config: cfg,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist
func (s *ArchiveService) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}

	if !exists {
		err = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{})
		if err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return nil
}

// StoreSignedAgreement archives the signed-agreement snapshot of a contract
func (s *ArchiveService) StoreSignedAgreement(ctx context.Context, contract *model.Contract) error {
	if contract.SignedAgreement == nil {
		return fmt.Errorf("contract %s has no signed agreement to archive", contract.ID)
	}

	body, err := json.MarshalIndent(archivedAgreement{
		ContractID:   contract.ID,
		JobID:        contract.JobID,
		ClientID:     contract.ClientID,
		FreelancerID: contract.FreelancerID,
		Amount:       contract.Amount.String(),
		Currency:     contract.Currency,
		SignedAt:     contract.SignedAt,
		Agreement:    contract.SignedAgreement,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal agreement snapshot: %w", err)
	}

	objectName := s.ObjectName(contract)
	_, err = s.client.PutObject(ctx, s.bucket, objectName, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("failed to archive agreement: %w", err)
	}

	return nil
}

// ObjectName returns the bucket key for a contract's agreement snapshot
func (s *ArchiveService) ObjectName(contract *model.Contract) string {
	return fmt.Sprintf("%s/%s/agreement.json", contract.ClientID, contract.ID)
}

// PublicURL returns a public URL for the archived object (if bucket policy allows)
func (s *ArchiveService) PublicURL(objectName string) string {
	protocol := "http"
	if s.config.UseSSL {
		protocol = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", protocol, s.config.Endpoint, s.bucket, objectName)
}
