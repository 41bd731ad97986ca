// Package s3client wraps the AWS SDK with the narrow object-storage
// surface the path layer needs: paginated listing, streaming get/put,
// copy, head, and batched delete, all behind a mockable interface.
package s3client

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/gofm/gofm/internal/credentials"
)

// deleteBatchSize is the S3 DeleteObjects per-request key limit.
const deleteBatchSize = 1000

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// ListPage is one page of a listing. Prefixes holds the common prefixes
// grouped by the delimiter; NextToken is nil on the final page.
type ListPage struct {
	Objects   []ObjectInfo
	Prefixes  []string
	NextToken *string
}

// Interface is the client contract the path layer depends on. The real
// Client and the in-memory MockClient both satisfy it.
type Interface interface {
	ListObjectsPage(ctx context.Context, prefix, delimiter string, token *string, maxKeys int32) (*ListPage, error)
	HeadObject(ctx context.Context, key string) (*ObjectInfo, error)
	HeadBucket(ctx context.Context) error
	GetObjectStream(ctx context.Context, key string) (io.ReadCloser, error)
	PutObjectStream(ctx context.Context, key string, body io.Reader) error
	CopyObject(ctx context.Context, sourceKey, destKey string) error
	DeleteObject(ctx context.Context, key string) error
	DeleteObjects(ctx context.Context, keys []string) error
}

// Client is an S3 client bound to a single bucket.
type Client struct {
	bucket   string
	region   string
	endpoint string
	creds    *credentials.Credentials
	s3Client *s3.Client
}

// NewClient creates a new S3 client for the given bucket.
func NewClient(bucket, region string, creds *credentials.Credentials) *Client {
	return NewClientWithEndpoint(bucket, region, "", creds)
}

// NewClientWithEndpoint creates a new S3 client with a custom endpoint,
// for LocalStack or other S3-compatible services.
func NewClientWithEndpoint(bucket, region, endpoint string, creds *credentials.Credentials) *Client {
	client := &Client{
		bucket:   bucket,
		region:   region,
		endpoint: endpoint,
		creds:    creds,
	}

	cfgOptions := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}
	if creds != nil && creds.IsValid() {
		cfgOptions = append(cfgOptions, config.WithCredentialsProvider(
			awscreds.NewStaticCredentialsProvider(
				creds.AccessKeyID,
				creds.SecretAccessKey,
				creds.SessionToken,
			)))
	}

	cfg, err := config.LoadDefaultConfig(context.Background(), cfgOptions...)
	if err == nil {
		s3Options := []func(*s3.Options){}
		if endpoint != "" {
			s3Options = append(s3Options, func(o *s3.Options) {
				o.BaseEndpoint = aws.String(endpoint)
				o.UsePathStyle = true // Required for LocalStack
			})
		}
		client.s3Client = s3.NewFromConfig(cfg, s3Options...)
	}

	return client
}

// Bucket returns the bucket this client is bound to.
func (c *Client) Bucket() string { return c.bucket }

// ListObjectsPage lists one page of objects under prefix. With a
// non-empty delimiter the result groups sub-keys into common prefixes.
// maxKeys <= 0 requests the service default page size.
func (c *Client) ListObjectsPage(ctx context.Context, prefix, delimiter string, token *string, maxKeys int32) (*ListPage, error) {
	if c.s3Client == nil {
		return nil, fmt.Errorf("S3 client not initialized")
	}

	input := &s3.ListObjectsV2Input{
		Bucket:            aws.String(c.bucket),
		Prefix:            aws.String(prefix),
		ContinuationToken: token,
	}
	if delimiter != "" {
		input.Delimiter = aws.String(delimiter)
	}
	if maxKeys > 0 {
		input.MaxKeys = aws.Int32(maxKeys)
	}

	var result *s3.ListObjectsV2Output
	err := withRetry(ctx, "ListObjectsV2", func() error {
		var err error
		result, err = c.s3Client.ListObjectsV2(ctx, input)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list objects: %w", err)
	}

	page := &ListPage{
		Objects:  make([]ObjectInfo, 0, len(result.Contents)),
		Prefixes: make([]string, 0, len(result.CommonPrefixes)),
	}
	for _, obj := range result.Contents {
		if obj.Key == nil {
			continue
		}
		info := ObjectInfo{Key: *obj.Key}
		if obj.Size != nil {
			info.Size = *obj.Size
		}
		if obj.LastModified != nil {
			info.LastModified = *obj.LastModified
		}
		page.Objects = append(page.Objects, info)
	}
	for _, cp := range result.CommonPrefixes {
		if cp.Prefix != nil {
			page.Prefixes = append(page.Prefixes, *cp.Prefix)
		}
	}
	if result.IsTruncated != nil && *result.IsTruncated {
		page.NextToken = result.NextContinuationToken
	}
	return page, nil
}

// HeadObject returns object metadata without downloading the body.
func (c *Client) HeadObject(ctx context.Context, key string) (*ObjectInfo, error) {
	if c.s3Client == nil {
		return nil, fmt.Errorf("S3 client not initialized")
	}

	input := &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}

	result, err := c.s3Client.HeadObject(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to head object: %w", err)
	}

	info := &ObjectInfo{Key: key}
	if result.ContentLength != nil {
		info.Size = *result.ContentLength
	}
	if result.LastModified != nil {
		info.LastModified = *result.LastModified
	}
	return info, nil
}

// HeadBucket checks that the bucket exists and is accessible.
func (c *Client) HeadBucket(ctx context.Context) error {
	if c.s3Client == nil {
		return fmt.Errorf("S3 client not initialized")
	}

	input := &s3.HeadBucketInput{
		Bucket: aws.String(c.bucket),
	}
	if _, err := c.s3Client.HeadBucket(ctx, input); err != nil {
		return fmt.Errorf("failed to head bucket: %w", err)
	}
	return nil
}

// GetObjectStream opens the object body for streaming reads. The caller
// must close the returned reader.
func (c *Client) GetObjectStream(ctx context.Context, key string) (io.ReadCloser, error) {
	if c.s3Client == nil {
		return nil, fmt.Errorf("S3 client not initialized")
	}

	input := &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}
	result, err := c.s3Client.GetObject(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	return result.Body, nil
}

// PutObjectStream uploads an object from a reader of unknown length.
// Bodies under one part are buffered and sent in a single sized put;
// larger bodies go through a multipart upload, so the reader never has
// to be seekable.
func (c *Client) PutObjectStream(ctx context.Context, key string, body io.Reader) error {
	if c.s3Client == nil {
		return fmt.Errorf("S3 client not initialized")
	}

	buf := make([]byte, partSize)
	n, err := readFullPart(body, buf)
	if err != nil {
		return fmt.Errorf("failed to read upload body: %w", err)
	}
	if n < partSize {
		return c.putObject(ctx, key, buf[:n])
	}
	return c.putObjectMultipart(ctx, key, buf, body)
}

// CopyObject copies an object within the bucket. Sources past the
// single-call copy limit are copied in ranged parts.
func (c *Client) CopyObject(ctx context.Context, sourceKey, destKey string) error {
	if c.s3Client == nil {
		return fmt.Errorf("S3 client not initialized")
	}

	info, err := c.HeadObject(ctx, sourceKey)
	if err != nil {
		return err
	}
	if info.Size > maxSingleCopySize {
		return c.copyObjectMultipart(ctx, sourceKey, destKey, info.Size)
	}

	input := &s3.CopyObjectInput{
		Bucket:     aws.String(c.bucket),
		Key:        aws.String(destKey),
		CopySource: aws.String(fmt.Sprintf("%s/%s", c.bucket, sourceKey)),
	}
	if _, err := c.s3Client.CopyObject(ctx, input); err != nil {
		return fmt.Errorf("failed to copy object: %w", err)
	}
	return nil
}

// DeleteObject deletes a single object.
func (c *Client) DeleteObject(ctx context.Context, key string) error {
	if c.s3Client == nil {
		return fmt.Errorf("S3 client not initialized")
	}

	input := &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}
	if _, err := c.s3Client.DeleteObject(ctx, input); err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// DeleteObjects deletes the given keys in batches bounded by the bulk
// delete API limit. A per-key failure inside a batch aborts the remaining
// batches.
func (c *Client) DeleteObjects(ctx context.Context, keys []string) error {
	if c.s3Client == nil {
		return fmt.Errorf("S3 client not initialized")
	}

	for len(keys) > 0 {
		batch := keys
		if len(batch) > deleteBatchSize {
			batch = keys[:deleteBatchSize]
		}
		keys = keys[len(batch):]

		objects := make([]types.ObjectIdentifier, 0, len(batch))
		for _, key := range batch {
			objects = append(objects, types.ObjectIdentifier{Key: aws.String(key)})
		}
		input := &s3.DeleteObjectsInput{
			Bucket: aws.String(c.bucket),
			Delete: &types.Delete{
				Objects: objects,
				Quiet:   aws.Bool(true),
			},
		}

		var result *s3.DeleteObjectsOutput
		err := withRetry(ctx, "DeleteObjects", func() error {
			var err error
			result, err = c.s3Client.DeleteObjects(ctx, input)
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to delete objects: %w", err)
		}
		for _, failed := range result.Errors {
			key := ""
			if failed.Key != nil {
				key = *failed.Key
			}
			msg := ""
			if failed.Message != nil {
				msg = *failed.Message
			}
			return fmt.Errorf("failed to delete object %s: %s", key, msg)
		}
	}
	return nil
}
