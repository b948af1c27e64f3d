package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type S3Config struct {
	Region     string
	Bucket     string
	AccessKey  string
	SecretKey  string
	Endpoint   string
	PublicBase string
}

type Client struct {
	cfg S3Config
	s3  *s3.Client
}

func NewClient(ctx context.Context, cfg S3Config) (*Client, error) {
	if cfg.Region == "" || cfg.Bucket == "" {
		return nil, errors.New("s3 region and bucket are required")
	}

	var opts []func(*config.LoadOptions) error
	opts = append(opts, config.WithRegion(cfg.Region))

	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		if parsed, err := url.Parse(endpoint); err == nil {
			endpoint = parsed.String()
		}
		opts = append(opts, config.WithEndpointResolverWithOptions(
			aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				if service == s3.ServiceID {
					return aws.Endpoint{URL: endpoint, SigningRegion: cfg.Region}, nil
				}
				return aws.Endpoint{}, &aws.EndpointNotFoundError{}
			}),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.UsePathStyle = true
		}
	})

	return &Client{cfg: cfg, s3: s3Client}, nil
}

// ChunkKey is the blob key for one uploaded chunk. Chunk blobs live under
// a prefix separate from assembled objects so cleanup can never clobber a
// finished file.
func ChunkKey(token string, index int) string {
	return fmt.Sprintf("chunks/%s/%d", token, index)
}

func (c *Client) PutChunk(ctx context.Context, token string, index int, data []byte) error {
	_, err := c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(c.cfg.Bucket),
		Key:    aws.String(ChunkKey(token, index)),
		Body:   bytes.NewReader(data),
	})
	return err
}

func (c *Client) GetChunk(ctx context.Context, token string, index int) ([]byte, error) {
	out, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.cfg.Bucket),
		Key:    aws.String(ChunkKey(token, index)),
	})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

// DeleteChunks removes every chunk blob for a session, batched at the S3
// DeleteObjects limit of 1000 keys.
func (c *Client) DeleteChunks(ctx context.Context, token string, totalChunks int) error {
	for start := 0; start < totalChunks; start += 1000 {
		end := start + 1000
		if end > totalChunks {
			end = totalChunks
		}
		ids := make([]types.ObjectIdentifier, 0, end-start)
		for i := start; i < end; i++ {
			ids = append(ids, types.ObjectIdentifier{Key: aws.String(ChunkKey(token, i))})
		}
		_, err := c.s3.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(c.cfg.Bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// ObjectUpload is a streaming write to one destination object. The object
// only becomes visible on Commit; Abort discards everything appended.
type ObjectUpload interface {
	Append(ctx context.Context, data []byte) error
	Commit(ctx context.Context) error
	Abort(ctx context.Context) error
}

// BeginObject starts a multipart upload to the destination key.
func (c *Client) BeginObject(ctx context.Context, key, contentType string) (ObjectUpload, error) {
	input := &s3.CreateMultipartUploadInput{
		Bucket: aws.String(c.cfg.Bucket),
		Key:    aws.String(key),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	out, err := c.s3.CreateMultipartUpload(ctx, input)
	if err != nil {
		return nil, err
	}
	return &multipartUpload{
		client:   c,
		key:      key,
		uploadID: aws.ToString(out.UploadId),
	}, nil
}

type multipartUpload struct {
	client   *Client
	key      string
	uploadID string
	partNum  int32
	parts    []types.CompletedPart
}

func (m *multipartUpload) Append(ctx context.Context, data []byte) error {
	m.partNum++
	out, err := m.client.s3.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:     aws.String(m.client.cfg.Bucket),
		Key:        aws.String(m.key),
		UploadId:   aws.String(m.uploadID),
		PartNumber: aws.Int32(m.partNum),
		Body:       bytes.NewReader(data),
	})
	if err != nil {
		return err
	}
	m.parts = append(m.parts, types.CompletedPart{
		ETag:       out.ETag,
		PartNumber: aws.Int32(m.partNum),
	})
	return nil
}

func (m *multipartUpload) Commit(ctx context.Context) error {
	_, err := m.client.s3.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(m.client.cfg.Bucket),
		Key:      aws.String(m.key),
		UploadId: aws.String(m.uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: m.parts,
		},
	})
	return err
}

func (m *multipartUpload) Abort(ctx context.Context) error {
	_, err := m.client.s3.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(m.client.cfg.Bucket),
		Key:      aws.String(m.key),
		UploadId: aws.String(m.uploadID),
	})
	return err
}

func (c *Client) FileURL(key string) string {
	if c == nil || key == "" {
		return ""
	}
	if c.cfg.PublicBase != "" {
		return c.cfg.PublicBase + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", c.cfg.Bucket, c.cfg.Region, key)
}
