package s3client

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const (
	// partSize is the upload part size. S3 rejects parts below 5 MiB
	// except the final one, so this is also the multipart threshold.
	partSize = 5 * 1024 * 1024

	// copyPartSize sizes the ranged copies of a large-object copy.
	copyPartSize int64 = 256 * 1024 * 1024

	// maxSingleCopySize is the largest source CopyObject accepts in one
	// call; anything bigger must go through UploadPartCopy.
	maxSingleCopySize int64 = 5 * 1024 * 1024 * 1024
)

// readFullPart fills buf from r, returning how many bytes were read.
// A short read at end of stream is not an error; n == 0 means the
// stream is exhausted.
func readFullPart(r io.Reader, buf []byte) (int, error) {
	n, err := io.ReadFull(r, buf)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return n, nil
	}
	return n, err
}

// putObject uploads a fully buffered body in a single request. The
// seekable reader lets the SDK sign and size the payload.
func (c *Client) putObject(ctx context.Context, key string, data []byte) error {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if _, err := c.s3Client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to put object: %w", err)
	}
	return nil
}

// putObjectMultipart uploads first as part 1 and keeps draining rest in
// partSize chunks until the stream ends. Any failure aborts the upload
// so the bucket is not left holding orphaned parts.
func (c *Client) putObjectMultipart(ctx context.Context, key string, first []byte, rest io.Reader) error {
	uploadID, err := c.createMultipartUpload(ctx, key)
	if err != nil {
		return err
	}

	var parts []types.CompletedPart
	partNumber := int32(1)
	buf := first
	for {
		etag, err := c.uploadPart(ctx, key, uploadID, partNumber, buf)
		if err != nil {
			c.abortMultipartUpload(ctx, key, uploadID)
			return err
		}
		parts = append(parts, types.CompletedPart{
			ETag:       aws.String(etag),
			PartNumber: aws.Int32(partNumber),
		})
		partNumber++

		next := make([]byte, partSize)
		n, err := readFullPart(rest, next)
		if err != nil {
			c.abortMultipartUpload(ctx, key, uploadID)
			return fmt.Errorf("failed to read upload part: %w", err)
		}
		if n == 0 {
			break
		}
		buf = next[:n]
	}

	if err := c.completeMultipartUpload(ctx, key, uploadID, parts); err != nil {
		c.abortMultipartUpload(ctx, key, uploadID)
		return err
	}
	return nil
}

func (c *Client) createMultipartUpload(ctx context.Context, key string) (string, error) {
	input := &s3.CreateMultipartUploadInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}
	result, err := c.s3Client.CreateMultipartUpload(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to create multipart upload: %w", err)
	}
	if result.UploadId == nil {
		return "", fmt.Errorf("multipart upload returned no upload ID")
	}
	return *result.UploadId, nil
}

func (c *Client) uploadPart(ctx context.Context, key, uploadID string, partNumber int32, data []byte) (string, error) {
	input := &s3.UploadPartInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		UploadId:      aws.String(uploadID),
		PartNumber:    aws.Int32(partNumber),
		ContentLength: aws.Int64(int64(len(data))),
	}

	var result *s3.UploadPartOutput
	err := withRetry(ctx, "UploadPart", func() error {
		// Fresh reader per attempt; a retried attempt must re-send
		// the part from the start.
		input.Body = bytes.NewReader(data)
		var err error
		result, err = c.s3Client.UploadPart(ctx, input)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload part %d: %w", partNumber, err)
	}
	if result.ETag == nil {
		return "", fmt.Errorf("upload part %d returned no ETag", partNumber)
	}
	return *result.ETag, nil
}

func (c *Client) completeMultipartUpload(ctx context.Context, key, uploadID string, parts []types.CompletedPart) error {
	input := &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(c.bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: parts,
		},
	}
	if _, err := c.s3Client.CompleteMultipartUpload(ctx, input); err != nil {
		return fmt.Errorf("failed to complete multipart upload: %w", err)
	}
	return nil
}

// abortMultipartUpload is best effort cleanup after a failed upload;
// the original error is what the caller reports.
func (c *Client) abortMultipartUpload(ctx context.Context, key, uploadID string) {
	input := &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(c.bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	}
	c.s3Client.AbortMultipartUpload(ctx, input)
}

// copyObjectMultipart copies a source too large for a single CopyObject
// call by issuing ranged UploadPartCopy requests.
func (c *Client) copyObjectMultipart(ctx context.Context, sourceKey, destKey string, size int64) error {
	uploadID, err := c.createMultipartUpload(ctx, destKey)
	if err != nil {
		return err
	}

	var parts []types.CompletedPart
	partNumber := int32(1)
	for start := int64(0); start < size; start += copyPartSize {
		end := start + copyPartSize
		if end > size {
			end = size
		}

		input := &s3.UploadPartCopyInput{
			Bucket:          aws.String(c.bucket),
			Key:             aws.String(destKey),
			UploadId:        aws.String(uploadID),
			PartNumber:      aws.Int32(partNumber),
			CopySource:      aws.String(fmt.Sprintf("%s/%s", c.bucket, sourceKey)),
			CopySourceRange: aws.String(fmt.Sprintf("bytes=%d-%d", start, end-1)),
		}

		var result *s3.UploadPartCopyOutput
		err := withRetry(ctx, "UploadPartCopy", func() error {
			var err error
			result, err = c.s3Client.UploadPartCopy(ctx, input)
			return err
		})
		if err != nil {
			c.abortMultipartUpload(ctx, destKey, uploadID)
			return fmt.Errorf("failed to copy part %d: %w", partNumber, err)
		}
		if result.CopyPartResult == nil || result.CopyPartResult.ETag == nil {
			c.abortMultipartUpload(ctx, destKey, uploadID)
			return fmt.Errorf("copy part %d returned no ETag", partNumber)
		}
		parts = append(parts, types.CompletedPart{
			ETag:       result.CopyPartResult.ETag,
			PartNumber: aws.Int32(partNumber),
		})
		partNumber++
	}

	if err := c.completeMultipartUpload(ctx, destKey, uploadID, parts); err != nil {
		c.abortMultipartUpload(ctx, destKey, uploadID)
		return err
	}
	return nil
}
