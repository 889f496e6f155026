package reportstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// maxDeleteBatch is the DeleteObjects limit.
const maxDeleteBatch = 1000

// s3API is the part of *s3.Client the store calls.
type s3API interface {
	s3.ListObjectsV2APIClient
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// S3Store keeps each record at <prefix><id>.json in one bucket.
type S3Store struct {
	client s3API
	bucket string
	prefix string
}

// NewS3Store wraps an existing client.
func NewS3Store(client s3API, bucket, prefix string) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: prefix}
}

// NewS3StoreFromConfig loads the default AWS credential chain. A set
// S3Endpoint switches to path-style addressing for MinIO and LocalStack.
func NewS3StoreFromConfig(ctx context.Context, cfg Config) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.S3Region))
	if err != nil {
		return nil, fmt.Errorf("reportstore: load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3Store(client, cfg.S3Bucket, cfg.S3Prefix), nil
}

func (s *S3Store) objectKey(id string) *string {
	return aws.String(s.prefix + id + docExt)
}

func (s *S3Store) Put(ctx context.Context, id string, data []byte) error {
	if err := validateID(id); err != nil {
		return err
	}
	if _, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         s.objectKey(id),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	}); err != nil {
		return fmt.Errorf("reportstore: s3 put %s: %w", id, err)
	}
	return nil
}

// Get maps a missing object to ErrNotFound.
func (s *S3Store) Get(ctx context.Context, id string) ([]byte, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    s.objectKey(id),
	})
	var missing *types.NoSuchKey
	if errors.As(err, &missing) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reportstore: s3 get %s: %w", id, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("reportstore: s3 read %s: %w", id, err)
	}
	return data, nil
}

func (s *S3Store) Delete(ctx context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    s.objectKey(id),
	}); err != nil {
		return fmt.Errorf("reportstore: s3 delete %s: %w", id, err)
	}
	return nil
}

// Prune lists the prefix and batch-deletes records older than cutoff. A
// bucket lifecycle rule does the same without API calls and is preferable
// when the operator controls the bucket.
func (s *S3Store) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	pages := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})

	var stale []types.ObjectIdentifier
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return 0, fmt.Errorf("reportstore: s3 list: %w", err)
		}
		for _, obj := range page.Contents {
			if strings.HasSuffix(aws.ToString(obj.Key), docExt) && aws.ToTime(obj.LastModified).Before(cutoff) {
				stale = append(stale, types.ObjectIdentifier{Key: obj.Key})
			}
		}
	}

	removed := 0
	for len(stale) > 0 {
		n := min(len(stale), maxDeleteBatch)
		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: stale[:n], Quiet: aws.Bool(true)},
		})
		if err != nil {
			return removed, fmt.Errorf("reportstore: s3 delete batch: %w", err)
		}
		removed += n - len(out.Errors)
		if len(out.Errors) > 0 {
			e := out.Errors[0]
			return removed, fmt.Errorf("reportstore: s3 delete %s: %s", aws.ToString(e.Key), aws.ToString(e.Message))
		}
		stale = stale[n:]
	}
	return removed, nil
}
