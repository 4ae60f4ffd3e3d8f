package store

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/changeledger/changeledger/pkg/audit"
)

// S3Config configures the S3 archive destination
type S3Config struct {
	Bucket       string
	Region       string
	Endpoint     string // Override for MinIO or other S3-compatible stores
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
	KeyPrefix    string // Defaults to "audit-archive"
}

// S3Archiver uploads archived audit log batches as NDJSON objects
type S3Archiver struct {
	client *s3.Client
	bucket string
	prefix string
	now    func() time.Time
}

// NewS3Archiver creates a new S3 archiver
func NewS3Archiver(cfg S3Config) (*S3Archiver, error) {
	ctx := context.Background()

	var awsConfig aws.Config
	var err error

	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		// Static credentials for MinIO or AWS with explicit keys
		awsConfig, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AccessKey,
				cfg.SecretKey,
				"",
			)),
		)
	} else {
		// Default credential chain (IAM roles, env vars, etc.)
		awsConfig, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.Region),
		)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.UsePathStyle {
			o.UsePathStyle = true
		}
	})

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "audit-archive"
	}

	return &S3Archiver{
		client: client,
		bucket: cfg.Bucket,
		prefix: prefix,
		now:    time.Now,
	}, nil
}

// Archive uploads the batch as one NDJSON object. The key carries the
// archive date and a content hash so repeated uploads of the same batch
// land on the same object.
func (a *S3Archiver) Archive(ctx context.Context, logs []*audit.Log) error {
	if len(logs) == 0 {
		return nil
	}

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	for _, log := range logs {
		if err := encoder.Encode(log); err != nil {
			return fmt.Errorf("failed to encode archived log: %w", err)
		}
	}

	data := buf.Bytes()
	hash := sha256.Sum256(data)
	checksum := hex.EncodeToString(hash[:])

	key := fmt.Sprintf("%s/%s/%s.ndjson",
		a.prefix, a.now().UTC().Format("2006-01-02"), checksum[:16])

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/x-ndjson"),
		Metadata: map[string]string{
			"checksum-sha256": checksum,
			"record-count":    fmt.Sprintf("%d", len(logs)),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to upload archive batch to s3: %w", err)
	}

	return nil
}
