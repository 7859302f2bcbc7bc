package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// deleteBatchSize is the DeleteObjects per-request limit.
const deleteBatchSize = 1000

// DefaultCredentialsFile is read when present and no credentials file is
// configured.
const DefaultCredentialsFile = "aws.json"

// S3Options configure the S3 store.
type S3Options struct {
	Bucket string
	Region string
	// Endpoint overrides the service endpoint and switches to path-style
	// addressing, for S3-compatible services.
	Endpoint string
	// CredentialsFile is a JSON file {"key": ..., "secret": ...}. When it
	// does not exist the default AWS credential chain is used, unless
	// CredentialsRequired is set.
	CredentialsFile     string
	CredentialsRequired bool
}

type credentialsFile struct {
	Key    string `json:"key"`
	Secret string `json:"secret"`
}

// S3Store is an ObjectStore backed by one S3 bucket.
type S3Store struct {
	client *s3.Client
	bucket string
}

// NewS3Store builds a client for opts.Bucket.
func NewS3Store(ctx context.Context, opts S3Options) (*S3Store, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}

	provider, err := loadCredentials(opts.CredentialsFile, opts.CredentialsRequired)
	if err != nil {
		return nil, err
	}
	if provider != nil {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(provider))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{client: client, bucket: opts.Bucket}, nil
}

// loadCredentials returns a static provider for path, or nil when path is
// empty or missing and not required.
func loadCredentials(path string, required bool) (aws.CredentialsProvider, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) && !required {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading credentials %s: %w", path, err)
	}

	var creds credentialsFile
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("parsing credentials %s: %w", path, err)
	}
	if creds.Key == "" || creds.Secret == "" {
		return nil, fmt.Errorf("credentials %s: key and secret are required", path)
	}

	return credentials.NewStaticCredentialsProvider(creds.Key, creds.Secret, ""), nil
}

// Put uploads one object.
func (s *S3Store) Put(ctx context.Context, in PutInput) error {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(in.Key),
		Body:          bytes.NewReader(in.Body),
		ContentLength: aws.Int64(int64(len(in.Body))),
	}
	if in.ContentType != "" {
		input.ContentType = aws.String(in.ContentType)
	}
	if in.CacheControl != "" {
		input.CacheControl = aws.String(in.CacheControl)
	}
	if in.ContentMD5 != "" {
		input.ContentMD5 = aws.String(in.ContentMD5)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", s.bucket, in.Key, err)
	}
	return nil
}

// List returns every object under prefix.
func (s *S3Store) List(ctx context.Context, prefix string) ([]Object, error) {
	input := &s3.ListObjectsV2Input{Bucket: aws.String(s.bucket)}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}

	var objects []Object
	pages := s3.NewListObjectsV2Paginator(s.client, input)
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list s3://%s/%s: %w", s.bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			objects = append(objects, Object{
				Key:  aws.ToString(obj.Key),
				ETag: strings.Trim(aws.ToString(obj.ETag), `"`),
				Size: aws.ToInt64(obj.Size),
			})
		}
	}
	return objects, nil
}

// Delete removes keys in batches.
func (s *S3Store) Delete(ctx context.Context, keys []string) error {
	for start := 0; start < len(keys); start += deleteBatchSize {
		end := min(start+deleteBatchSize, len(keys))

		ids := make([]types.ObjectIdentifier, 0, end-start)
		for _, key := range keys[start:end] {
			ids = append(ids, types.ObjectIdentifier{Key: aws.String(key)})
		}

		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("delete from s3://%s: %w", s.bucket, err)
		}
		if len(out.Errors) > 0 {
			first := out.Errors[0]
			return fmt.Errorf("delete s3://%s/%s: %s", s.bucket, aws.ToString(first.Key), aws.ToString(first.Message))
		}
	}
	return nil
}
