package services

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/scenekeeper/internal/common"
	"github.com/dmitrijs2005/scenekeeper/internal/server/config"
	"github.com/dmitrijs2005/scenekeeper/internal/server/models"
)

func stubPresign(t *testing.T, putURL, getURL string) {
	t.Helper()

	origLoad := loadDefaultAWSConfig
	origNewS3 := newS3ClientFromConfig
	origNewPre := newS3PresignClient
	origPut := presignPutObject
	origGet := presignGetObject
	t.Cleanup(func() {
		loadDefaultAWSConfig = origLoad
		newS3ClientFromConfig = origNewS3
		newS3PresignClient = origNewPre
		presignPutObject = origPut
		presignGetObject = origGet
	})

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, nil
	}
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return &s3.Client{}
	}
	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return &s3.PresignClient{}
	}
	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return &v4.PresignedHTTPRequest{URL: putURL}, nil
	}
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return &v4.PresignedHTTPRequest{URL: getURL}, nil
	}
}

func newAssetFixture(t *testing.T) (*AssetService, *models.File) {
	t.Helper()
	db := setupServiceDB(t)
	sink := &recordingSink{}

	fileSvc := NewFileService(db, &testRepoManager{}, allowAll{}, sink)
	f, err := fileSvc.Create(context.Background(), "u1", CreateFileInput{Title: "with assets"})
	require.NoError(t, err)

	cfg := &config.Config{
		S3Region:       "us-east-1",
		S3RootUser:     "minioadmin",
		S3RootPassword: "minioadmin",
		S3BaseEndpoint: "http://127.0.0.1:9000",
		S3Bucket:       "scene-assets",
	}
	return NewAssetService(db, &testRepoManager{}, allowAll{}, sink, cfg), f
}

func TestAssetServiceUploadLifecycle(t *testing.T) {
	stubPresign(t, "http://presigned/put", "http://presigned/get")
	svc, f := newAssetFixture(t)
	ctx := context.Background()

	asset, putURL, err := svc.CreateUploadURL(ctx, "u1", f.ID)
	require.NoError(t, err)
	assert.Equal(t, "http://presigned/put", putURL)
	assert.Equal(t, models.AssetUploadPending, asset.UploadStatus)
	assert.Contains(t, asset.StorageKey, "files/"+f.ID)

	// download before upload completes is not-found
	_, err = svc.GetDownloadURL(ctx, "u1", f.ID, asset.AssetID)
	assert.ErrorIs(t, err, common.ErrNotFound)

	require.NoError(t, svc.ConfirmUpload(ctx, "u1", f.ID, asset.AssetID))

	getURL, err := svc.GetDownloadURL(ctx, "u1", f.ID, asset.AssetID)
	require.NoError(t, err)
	assert.Equal(t, "http://presigned/get", getURL)
}

func TestAssetServiceUnknownFile(t *testing.T) {
	stubPresign(t, "http://presigned/put", "http://presigned/get")
	svc, _ := newAssetFixture(t)

	_, _, err := svc.CreateUploadURL(context.Background(), "u1", "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}
