package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dmitrijs2005/scenekeeper/internal/common"
	"github.com/dmitrijs2005/scenekeeper/internal/server/access"
	"github.com/dmitrijs2005/scenekeeper/internal/server/audit"
	"github.com/dmitrijs2005/scenekeeper/internal/server/config"
	"github.com/dmitrijs2005/scenekeeper/internal/server/models"
	"github.com/dmitrijs2005/scenekeeper/internal/server/repositories/repomanager"
)

// seams for tests
var (
	loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
)

const presignExpiry = 15 * time.Minute

// AssetService manages binary assets (images, fonts) referenced by scenes.
// Asset bytes never pass through the API server: clients upload and download
// directly against object storage via presigned URLs.
type AssetService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	access      access.Control
	audit       audit.Sink
	config      *config.Config
}

func NewAssetService(db *sql.DB, m repomanager.RepositoryManager, ac access.Control, sink audit.Sink, cfg *config.Config) *AssetService {
	return &AssetService{
		db:          db,
		repomanager: m,
		access:      ac,
		audit:       sink,
		config:      cfg,
	}
}

func randomStorageKey(fileID string) string {
	d := time.Now()
	return fmt.Sprintf("files/%s/%d/%d/%d/%v", fileID, d.Year(), d.Month(), d.Day(), uuid.New())
}

func (s *AssetService) getPresignClient() (*s3.PresignClient, error) {
	cfg, err := loadDefaultAWSConfig(context.Background(),
		awsconfig.WithRegion(s.config.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.config.S3RootUser,     // MINIO_ROOT_USER
			s.config.S3RootPassword, // MINIO_ROOT_PASSWORD
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(s.config.S3BaseEndpoint)
	})

	return newS3PresignClient(client), nil
}

func (s *AssetService) presignPut(ctx context.Context, key string) (string, error) {
	presignClient, err := s.getPresignClient()
	if err != nil {
		return "", err
	}

	bucket := s.config.S3Bucket
	req, err := presignPutObject(presignClient, ctx, &s3.PutObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(presignExpiry))
	if err != nil {
		return "", err
	}
	return req.URL, nil
}

func (s *AssetService) presignGet(ctx context.Context, key string) (string, error) {
	presignClient, err := s.getPresignClient()
	if err != nil {
		return "", err
	}

	bucket := s.config.S3Bucket
	req, err := presignGetObject(presignClient, ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(presignExpiry))
	if err != nil {
		return "", err
	}
	return req.URL, nil
}

// CreateUploadURL registers an asset for a file and returns a presigned PUT
// URL. The asset stays in "pending" state until ConfirmUpload.
func (s *AssetService) CreateUploadURL(ctx context.Context, userID, fileID string) (*models.Asset, string, error) {
	file, err := s.repomanager.Files(s.db).GetByID(ctx, fileID)
	if err != nil {
		return nil, "", err
	}
	if file.IsTrashed {
		return nil, "", common.ErrNotFound
	}
	if err := s.access.CanWrite(ctx, userID, file); err != nil {
		return nil, "", err
	}

	asset := &models.Asset{
		FileID:       fileID,
		AssetID:      uuid.NewString(),
		StorageKey:   randomStorageKey(fileID),
		UploadStatus: models.AssetUploadPending,
		CreatedAt:    time.Now().UTC(),
	}

	url, err := s.presignPut(ctx, asset.StorageKey)
	if err != nil {
		return nil, "", fmt.Errorf("error presigning upload: %w", err)
	}

	if err := s.repomanager.Files(s.db).CreateAsset(ctx, asset); err != nil {
		return nil, "", err
	}

	s.audit.Log(ctx, models.AuditFileAssetCreate, userID, &fileID, file.TeamID, map[string]any{
		"assetId": asset.AssetID,
	})
	return asset, url, nil
}

// ConfirmUpload marks an asset as uploaded after the client completes the PUT.
func (s *AssetService) ConfirmUpload(ctx context.Context, userID, fileID, assetID string) error {
	file, err := s.repomanager.Files(s.db).GetByID(ctx, fileID)
	if err != nil {
		return err
	}
	if err := s.access.CanWrite(ctx, userID, file); err != nil {
		return err
	}
	return s.repomanager.Files(s.db).MarkAssetUploaded(ctx, fileID, assetID)
}

// GetDownloadURL returns a presigned GET URL for an uploaded asset.
func (s *AssetService) GetDownloadURL(ctx context.Context, userID, fileID, assetID string) (string, error) {
	file, err := s.repomanager.Files(s.db).GetByID(ctx, fileID)
	if err != nil {
		return "", err
	}
	if err := s.access.CanRead(ctx, userID, file); err != nil {
		return "", err
	}

	asset, err := s.repomanager.Files(s.db).GetAsset(ctx, fileID, assetID)
	if err != nil {
		return "", err
	}
	if asset.UploadStatus != models.AssetUploadCompleted {
		return "", common.ErrNotFound
	}

	url, err := s.presignGet(ctx, asset.StorageKey)
	if err != nil {
		return "", fmt.Errorf("error presigning download: %w", err)
	}
	return url, nil
}
