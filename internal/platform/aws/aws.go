// Package aws loads the shared SDK configuration for the object store and
// the document analysis collaborators.
package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"

	"kycflow/internal/platform/config"
)

// LoadConfig resolves region and credentials. Static credentials are used
// when both keys are set, otherwise the default provider chain applies.
func LoadConfig(ctx context.Context, cfg config.AWSConfig) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return awsCfg, nil
}

// Endpoint returns the custom endpoint override, or nil to use the default
// resolver.
func Endpoint(cfg config.AWSConfig) *string {
	if cfg.Endpoint == "" {
		return nil
	}
	return aws.String(cfg.Endpoint)
}
