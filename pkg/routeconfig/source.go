package routeconfig

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Source provides route files.
type Source interface {
	// Load reads and parses the route file.
	Load(ctx context.Context) (*File, error)

	// String returns the file's location.
	String() string
}

// FileSource reads a route file from disk.
type FileSource struct {
	Path string
}

// Load implements Source.
func (s FileSource) Load(ctx context.Context) (*File, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("routeconfig: %w", err)
	}
	return Parse(s.Path, data)
}

func (s FileSource) String() string { return s.Path }

// S3API is the part of the S3 client S3Source uses.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Source reads a route file from an S3 bucket.
type S3Source struct {
	Client S3API
	Bucket string
	Key    string

	// MaxSize bounds the object size. Default 4 MiB.
	MaxSize int64
}

const defaultMaxSize = 4 << 20

// Load implements Source.
func (s S3Source) Load(ctx context.Context) (*File, error) {
	out, err := s.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.Key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("routeconfig: %s: %w", s, fs.ErrNotExist)
		}
		return nil, fmt.Errorf("routeconfig: get %s: %w", s, err)
	}
	defer out.Body.Close()

	limit := s.MaxSize
	if limit <= 0 {
		limit = defaultMaxSize
	}
	data, err := io.ReadAll(io.LimitReader(out.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("routeconfig: read %s: %w", s, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("routeconfig: %s is larger than %d bytes", s, limit)
	}
	return Parse(s.Key, data)
}

func (s S3Source) String() string { return "s3://" + s.Bucket + "/" + s.Key }

// S3Options configures NewS3Client.
type S3Options struct {
	Region       string
	Endpoint     string
	UsePathStyle bool
}

// NewS3Client creates an S3 client. Credentials come from
// AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY and AWS_SESSION_TOKEN; without
// them requests are anonymous. The region falls back to AWS_REGION, then
// us-east-1.
func NewS3Client(opts S3Options) *s3.Client {
	region := opts.Region
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	if region == "" {
		region = "us-east-1"
	}

	o := s3.Options{
		Region:       region,
		UsePathStyle: opts.UsePathStyle,
		Credentials:  envCredentials(),
	}
	if opts.Endpoint != "" {
		o.BaseEndpoint = aws.String(opts.Endpoint)
	}
	return s3.New(o)
}

func envCredentials() aws.CredentialsProvider {
	id, secret := os.Getenv("AWS_ACCESS_KEY_ID"), os.Getenv("AWS_SECRET_ACCESS_KEY")
	if id == "" || secret == "" {
		return aws.AnonymousCredentials{}
	}
	token := os.Getenv("AWS_SESSION_TOKEN")
	return aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
		return aws.Credentials{
			AccessKeyID:     id,
			SecretAccessKey: secret,
			SessionToken:    token,
			Source:          "EnvironmentVariables",
		}, nil
	})
}

// ParseS3Location splits s3://bucket/key.
func ParseS3Location(location string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(location, "s3://")
	if !ok {
		return "", "", fmt.Errorf("routeconfig: %q is not an s3:// location", location)
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("routeconfig: %q needs a bucket and a key", location)
	}
	return bucket, key, nil
}

// Open returns the source for location: an s3://bucket/key URL or a
// file path. newClient is only called for S3 locations.
func Open(location string, newClient func() S3API) (Source, error) {
	if !strings.HasPrefix(location, "s3://") {
		return FileSource{Path: location}, nil
	}
	bucket, key, err := ParseS3Location(location)
	if err != nil {
		return nil, err
	}
	return S3Source{Client: newClient(), Bucket: bucket, Key: key}, nil
}
