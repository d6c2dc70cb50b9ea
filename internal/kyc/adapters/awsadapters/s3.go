// Package awsadapters implements the pipeline's collaborator ports on AWS:
// S3 for uploads, Textract for document OCR and Rekognition for faces.
package awsadapters

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"kycflow/internal/kyc/models"
)

// S3Presigner is the subset of *s3.PresignClient used here.
type S3Presigner interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// ObjectStore issues presigned S3 upload URLs.
type ObjectStore struct {
	presigner S3Presigner
}

// NewS3Client builds an S3 client, with path-style addressing when a custom
// endpoint (MinIO, LocalStack) is configured.
func NewS3Client(cfg aws.Config, endpoint *string) *s3.Client {
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != nil {
			o.BaseEndpoint = endpoint
			o.UsePathStyle = true
		}
	})
}

func NewObjectStore(client *s3.Client) *ObjectStore {
	return &ObjectStore{presigner: s3.NewPresignClient(client)}
}

// NewObjectStoreWithPresigner is used by tests.
func NewObjectStoreWithPresigner(p S3Presigner) *ObjectStore {
	return &ObjectStore{presigner: p}
}

func (s *ObjectStore) PresignUpload(ctx context.Context, ref models.ObjectRef, ttl time.Duration) (string, error) {
	req, err := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(ref.Bucket),
		Key:    aws.String(ref.Key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("presign put %s/%s: %w", ref.Bucket, ref.Key, err)
	}
	return req.URL, nil
}
