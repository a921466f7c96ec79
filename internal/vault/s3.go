package vault

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"vc-go/internal/config"
	"vc-go/internal/vc"
)

// S3Client captures the subset of the AWS SDK client used by S3Vault.
// It embeds manager.UploadAPIClient so uploads stream through the SDK's
// upload manager; the interface keeps tests on lightweight fakes.
type S3Client interface {
	manager.UploadAPIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Vault stores objects in an S3-compatible bucket.
type S3Vault struct {
	name     string
	client   S3Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

// NewS3Vault creates a vault backed by S3. prefix may be empty; when
// set, all object keys are stored under it.
func NewS3Vault(name string, client S3Client, bucket, prefix string) *S3Vault {
	return &S3Vault{
		name:     name,
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		prefix:   prefix,
	}
}

// objectKey prepends the configured prefix to a vault key.
func (v *S3Vault) objectKey(key string) string {
	if v.prefix == "" {
		return key
	}
	return strings.TrimSuffix(v.prefix, "/") + "/" + key
}

// PutObject uploads an object, replacing any previous object under the
// same key. The upload manager splits large bodies into parts, so size
// is not needed here.
func (v *S3Vault) PutObject(key string, r io.Reader, _ int64) error {
	k := v.objectKey(key)
	_, err := v.uploader.Upload(context.Background(), &s3.PutObjectInput{
		Bucket: &v.bucket,
		Key:    &k,
		Body:   r,
	})
	if err != nil {
		return fmt.Errorf("uploading object %s: %w", key, err)
	}
	return nil
}

// GetObject downloads an object by key and writes it to w.
func (v *S3Vault) GetObject(key string, w io.Writer) error {
	k := v.objectKey(key)
	out, err := v.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: &v.bucket,
		Key:    &k,
	})
	if err != nil {
		var notFound *types.NoSuchKey
		if errors.As(err, &notFound) {
			return fmt.Errorf("object %s: %w", key, vc.ErrObjectNotFound)
		}
		return fmt.Errorf("downloading object %s: %w", key, err)
	}
	defer out.Body.Close()

	if _, err := io.Copy(w, out.Body); err != nil {
		return fmt.Errorf("reading object %s: %w", key, err)
	}
	return nil
}

// DeleteObject removes an object. S3 treats deleting a missing key as
// success, matching the Vault contract.
func (v *S3Vault) DeleteObject(key string) error {
	k := v.objectKey(key)
	_, err := v.client.DeleteObject(context.Background(), &s3.DeleteObjectInput{
		Bucket: &v.bucket,
		Key:    &k,
	})
	if err != nil {
		return fmt.Errorf("deleting object %s: %w", key, err)
	}
	return nil
}

// ValidateSetup verifies the bucket is reachable with the configured
// credentials.
func (v *S3Vault) ValidateSetup() error {
	_, err := v.client.HeadBucket(context.Background(), &s3.HeadBucketInput{
		Bucket: &v.bucket,
	})
	if err != nil {
		return fmt.Errorf("bucket %s not accessible: %w", v.bucket, err)
	}
	return nil
}

// newS3ClientFromConfig builds a real S3 client from vault config.
// Region, endpoint and static credentials are optional; whatever is
// unset falls back to the default AWS chain.
func newS3ClientFromConfig(cfg config.VaultConfig) (*s3.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3Region))
	}
	if cfg.S3AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})
	return client, nil
}

// Compile-time check that S3Vault implements vc.Vault interface
var _ vc.Vault = (*S3Vault)(nil)
