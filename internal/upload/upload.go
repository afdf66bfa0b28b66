// Package upload publishes exported schedule workbooks to an S3-compatible
// bucket (AWS S3, Cloudflare R2, MinIO).
package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// WorkbookContentType is the MIME type of .xlsx files.
const WorkbookContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Config struct {
	Bucket string
	// Endpoint overrides the AWS endpoint for other S3-compatible stores.
	// Requests use path-style addressing when it is set.
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	// PublicBaseURL prefixes object keys to form download links.
	PublicBaseURL string
}

type Result struct {
	Key      string `json:"key"`
	Location string `json:"location,omitempty"`
	ETag     string `json:"etag,omitempty"`
}

type Uploader interface {
	Upload(ctx context.Context, key, contentType string, body []byte) (Result, error)
}

type S3 struct {
	client        *s3.Client
	bucket        string
	publicBaseURL string
}

// NewS3 builds an uploader. Static credentials are used when both keys are
// set; otherwise the default AWS credential chain applies.
func NewS3(ctx context.Context, cfg Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("upload: bucket is required")
	}
	region := cfg.Region
	if region == "" {
		region = "auto"
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	sdkCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS SDK config: %w", err)
	}

	client := s3.NewFromConfig(sdkCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	})
	return &S3{client: client, bucket: cfg.Bucket, publicBaseURL: cfg.PublicBaseURL}, nil
}

func (u *S3) Upload(ctx context.Context, key, contentType string, body []byte) (Result, error) {
	out, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return Result{}, fmt.Errorf("uploading %s: %w", key, err)
	}
	res := Result{Key: key, Location: PublicURL(u.publicBaseURL, key)}
	if out.ETag != nil {
		// S3-compatible APIs quote the ETag
		res.ETag = strings.Trim(*out.ETag, `"`)
	}
	return res, nil
}

// ScheduleKey names the object for a tournament's workbook exported at t.
func ScheduleKey(tournamentID string, t time.Time) string {
	return fmt.Sprintf("schedules/%s/%s.xlsx", tournamentID, t.UTC().Format("20060102T150405Z"))
}

// PublicURL joins base and key, or returns "" when either is empty or base
// is not a URL.
func PublicURL(base, key string) string {
	if base == "" || key == "" {
		return ""
	}
	u, err := url.Parse(base)
	if err != nil {
		return ""
	}
	return u.JoinPath(key).String()
}
