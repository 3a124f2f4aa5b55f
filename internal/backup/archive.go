package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ErrArchiveKey reports a key that is outside the archive prefix or names no
// stored document.
var ErrArchiveKey = errors.New("unknown archive key")

// ArchiveEntry describes one stored backup document.
type ArchiveEntry struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
}

// S3Archive stores backup documents as objects under a key prefix of a single
// bucket. Works against AWS S3 and S3-compatible endpoints such as MinIO.
type S3Archive struct {
	client *s3.Client
	bucket string
	prefix string
}

type ArchiveConfig struct {
	Bucket    string
	Region    string
	Endpoint  string // optional; custom endpoint for S3-compatible stores
	PathStyle bool
	Prefix    string

	// Static credentials; the default AWS chain is used when AccessKeyID is empty.
	AccessKeyID     string
	SecretAccessKey string
}

func NewS3Archive(ctx context.Context, cfg ArchiveConfig) (*S3Archive, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})
	return &S3Archive{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// Put uploads a document under prefix + "library-<timestamp>.json" and
// returns the object key.
func (a *S3Archive) Put(ctx context.Context, at time.Time, doc []byte) (string, error) {
	key := a.prefix + "library-" + at.UTC().Format("20060102T150405Z") + ".json"
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(doc),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	return key, nil
}

// Get downloads the document stored at key.
func (a *S3Archive) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" || !strings.HasPrefix(key, a.prefix) {
		return nil, fmt.Errorf("%w: %q outside %q", ErrArchiveKey, key, a.prefix)
	}
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(a.bucket), Key: aws.String(key)})
	if err != nil {
		var missing *types.NoSuchKey
		if errors.As(err, &missing) {
			return nil, fmt.Errorf("%w: %s", ErrArchiveKey, key)
		}
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	defer func() { _ = out.Body.Close() }()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(out.Body); err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return buf.Bytes(), nil
}

// List returns archived documents, newest key first.
func (a *S3Archive) List(ctx context.Context) ([]ArchiveEntry, error) {
	var entries []ArchiveEntry
	var token *string
	for {
		out, err := a.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(a.bucket),
			Prefix:            aws.String(a.prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, err
		}
		for _, obj := range out.Contents {
			entries = append(entries, ArchiveEntry{
				Key:          aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
		if aws.ToBool(out.IsTruncated) && out.NextContinuationToken != nil {
			token = out.NextContinuationToken
			continue
		}
		break
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key > entries[j].Key })
	return entries, nil
}
