package storage

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
	"time"

	voxerrors "vox-chat/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type S3Config struct {
	Region     string
	Bucket     string
	Prefix     string
	AccessKey  string
	SecretKey  string
	Endpoint   string
	PublicBase string
	PresignTTL time.Duration
}

type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Store keeps uploads in a bucket.
type S3Store struct {
	cfg     S3Config
	s3      objectAPI
	presign *s3.PresignClient
}

func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Region == "" || cfg.Bucket == "" {
		return nil, errors.New("s3 region and bucket are required")
	}

	var opts []func(*config.LoadOptions) error
	opts = append(opts, config.WithRegion(cfg.Region))

	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			endpoint := cfg.Endpoint
			if parsed, err := url.Parse(endpoint); err == nil {
				endpoint = parsed.String()
			}
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{
		cfg:     cfg,
		s3:      s3Client,
		presign: s3.NewPresignClient(s3Client),
	}, nil
}

func (c *S3Store) key(name string) string {
	if c.cfg.Prefix == "" {
		return name
	}
	return strings.TrimSuffix(c.cfg.Prefix, "/") + "/" + name
}

func (c *S3Store) Save(ctx context.Context, name, contentType string, r io.Reader, size int64) error {
	if err := ValidName(name); err != nil {
		return err
	}
	input := &s3.PutObjectInput{
		Bucket: aws.String(c.cfg.Bucket),
		Key:    aws.String(c.key(name)),
		Body:   r,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if size > 0 {
		input.ContentLength = aws.Int64(size)
	}
	_, err := c.s3.PutObject(ctx, input)
	return err
}

func (c *S3Store) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := ValidName(name); err != nil {
		return nil, err
	}
	out, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.cfg.Bucket),
		Key:    aws.String(c.key(name)),
	})
	if err != nil {
		var missing *types.NoSuchKey
		if errors.As(err, &missing) {
			return nil, voxerrors.ErrNotFound
		}
		return nil, err
	}
	return out.Body, nil
}

// RedirectURL returns the public URL of the object when a public base is
// configured, otherwise a presigned GET URL.
func (c *S3Store) RedirectURL(ctx context.Context, name string) (string, error) {
	if err := ValidName(name); err != nil {
		return "", err
	}
	if c.cfg.PublicBase != "" {
		return strings.TrimSuffix(c.cfg.PublicBase, "/") + "/" + c.key(name), nil
	}
	if c.presign == nil {
		return "", errors.New("s3 presign client not initialized")
	}
	presigned, err := c.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.cfg.Bucket),
		Key:    aws.String(c.key(name)),
	}, func(po *s3.PresignOptions) {
		if c.cfg.PresignTTL > 0 {
			po.Expires = c.cfg.PresignTTL
		}
	})
	if err != nil {
		return "", err
	}
	return presigned.URL, nil
}
