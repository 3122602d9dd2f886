package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/marmos91/dittons/pkg/store/block"
	"github.com/marmos91/dittons/pkg/store/metadata"
)

// S3BlockStore stores blocks in an S3 (or S3-compatible) bucket.
//
// Object Layout:
//
// A block is a sequence of part objects sharing the key prefix
// "<keyPrefix><handle>/". Allocate writes the empty marker part 00000000;
// each Write uploads the next part. Appends therefore never rewrite
// earlier bytes, and reads stream parts in key order:
//
//	blocks/550e8400-e29b-41d4-a716-446655440000/00000000   (marker, 0 bytes)
//	blocks/550e8400-e29b-41d4-a716-446655440000/00000001
//	blocks/550e8400-e29b-41d4-a716-446655440000/00000002
//
// Thread Safety:
// Safe for concurrent use. Part sequence numbers are tracked per block in
// memory; after a restart the next number is recovered by listing.
type S3BlockStore struct {
	client    *s3.Client
	bucket    string
	keyPrefix string

	mu   sync.Mutex
	next map[metadata.BlockHandle]int
}

// S3BlockStoreConfig contains configuration for the S3 block store.
type S3BlockStoreConfig struct {
	// Client is the configured S3 client.
	Client *s3.Client

	// Bucket must already exist.
	Bucket string

	// KeyPrefix is prepended to every object key, e.g. "dittons/blocks/".
	KeyPrefix string
}

// markerPart is the zero-length part written by Allocate.
const markerPart = 0

// maxDeleteBatch is the S3 limit for DeleteObjects.
const maxDeleteBatch = 1000

// NewS3BlockStore creates the store and verifies bucket access.
func NewS3BlockStore(ctx context.Context, cfg S3BlockStoreConfig) (*S3BlockStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.Client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	store := &S3BlockStore{
		client:    cfg.Client,
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
		next:      make(map[metadata.BlockHandle]int),
	}
	if err := store.Healthcheck(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *S3BlockStore) blockPrefix(h metadata.BlockHandle) string {
	return s.keyPrefix + string(h) + "/"
}

func (s *S3BlockStore) partKey(h metadata.BlockHandle, seq int) string {
	return fmt.Sprintf("%s%08d", s.blockPrefix(h), seq)
}

func (s *S3BlockStore) Allocate(ctx context.Context, sizeHint int64) (metadata.BlockHandle, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	h := block.NewHandle()
	if err := s.putPart(ctx, h, markerPart, nil); err != nil {
		return "", err
	}

	s.mu.Lock()
	s.next[h] = markerPart + 1
	s.mu.Unlock()
	return h, nil
}

func (s *S3BlockStore) Write(ctx context.Context, h metadata.BlockHandle, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := block.ValidateHandle(h); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	seq, err := s.nextPart(ctx, h)
	if err != nil {
		return err
	}
	if err := s.putPart(ctx, h, seq, data); err != nil {
		return err
	}

	s.mu.Lock()
	s.next[h] = seq + 1
	s.mu.Unlock()
	return nil
}

// nextPart returns the sequence number for the next part of h.
func (s *S3BlockStore) nextPart(ctx context.Context, h metadata.BlockHandle) (int, error) {
	s.mu.Lock()
	seq, ok := s.next[h]
	s.mu.Unlock()
	if ok {
		return seq, nil
	}

	parts, err := s.listParts(ctx, h)
	if err != nil {
		return 0, err
	}
	if len(parts) == 0 {
		return 0, fmt.Errorf("block %s: %w", h, block.ErrBlockNotFound)
	}
	last := parts[len(parts)-1]
	n, err := strconv.Atoi(last.key[strings.LastIndex(last.key, "/")+1:])
	if err != nil {
		return 0, fmt.Errorf("block %s: malformed part key %q", h, last.key)
	}
	return n + 1, nil
}

func (s *S3BlockStore) putPart(ctx context.Context, h metadata.BlockHandle, seq int, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.partKey(h, seq)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return fmt.Errorf("failed to put block %s part %d: %w", h, seq, err)
	}
	return nil
}

type part struct {
	key  string
	size int64
}

// listParts returns the parts of h in key order.
func (s *S3BlockStore) listParts(ctx context.Context, h metadata.BlockHandle) ([]part, error) {
	var parts []part

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.blockPrefix(h)),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list block %s: %w", h, err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			parts = append(parts, part{key: *obj.Key, size: aws.ToInt64(obj.Size)})
		}
	}
	return parts, nil
}

func (s *S3BlockStore) Read(ctx context.Context, h metadata.BlockHandle) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := block.ValidateHandle(h); err != nil {
		return nil, err
	}

	parts, err := s.listParts(ctx, h)
	if err != nil {
		return nil, err
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("block %s: %w", h, block.ErrBlockNotFound)
	}

	keys := make([]string, 0, len(parts))
	for _, p := range parts {
		if p.size > 0 {
			keys = append(keys, p.key)
		}
	}
	return &partReader{ctx: ctx, store: s, keys: keys}, nil
}

func (s *S3BlockStore) Size(ctx context.Context, h metadata.BlockHandle) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := block.ValidateHandle(h); err != nil {
		return 0, err
	}

	parts, err := s.listParts(ctx, h)
	if err != nil {
		return 0, err
	}
	if len(parts) == 0 {
		return 0, fmt.Errorf("block %s: %w", h, block.ErrBlockNotFound)
	}

	var total uint64
	for _, p := range parts {
		total += uint64(p.size)
	}
	return total, nil
}

func (s *S3BlockStore) Release(ctx context.Context, h metadata.BlockHandle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := block.ValidateHandle(h); err != nil {
		return err
	}

	parts, err := s.listParts(ctx, h)
	if err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.next, h)
	s.mu.Unlock()

	keys := make([]string, len(parts))
	for i, p := range parts {
		keys[i] = p.key
	}
	return s.deleteKeys(ctx, keys)
}

// deleteKeys removes keys in DeleteObjects batches.
func (s *S3BlockStore) deleteKeys(ctx context.Context, keys []string) error {
	for i := 0; i < len(keys); i += maxDeleteBatch {
		end := min(i+maxDeleteBatch, len(keys))

		objects := make([]types.ObjectIdentifier, 0, end-i)
		for _, key := range keys[i:end] {
			objects = append(objects, types.ObjectIdentifier{Key: aws.String(key)})
		}

		result, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: objects, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("failed to delete objects: %w", err)
		}
		if len(result.Errors) > 0 {
			e := result.Errors[0]
			return fmt.Errorf("failed to delete %s: %s", aws.ToString(e.Key), aws.ToString(e.Message))
		}
	}
	return nil
}

func (s *S3BlockStore) Healthcheck(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		return fmt.Errorf("failed to access bucket %q: %w", s.bucket, err)
	}
	return nil
}

// ListAll returns every block that still has its marker part.
func (s *S3BlockStore) ListAll(ctx context.Context) ([]metadata.BlockHandle, error) {
	var handles []metadata.BlockHandle
	marker := fmt.Sprintf("/%08d", markerPart)

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.keyPrefix),
	})
	for paginator.HasMorePages() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		for _, obj := range page.Contents {
			key := strings.TrimPrefix(aws.ToString(obj.Key), s.keyPrefix)
			if !strings.HasSuffix(key, marker) {
				continue
			}
			h := metadata.BlockHandle(strings.TrimSuffix(key, marker))
			if block.ValidateHandle(h) == nil {
				handles = append(handles, h)
			}
		}
	}
	return handles, nil
}

// partReader streams a block's parts one GetObject at a time.
type partReader struct {
	ctx   context.Context
	store *S3BlockStore
	keys  []string
	body  io.ReadCloser
}

func (r *partReader) Read(p []byte) (int, error) {
	for {
		if err := r.ctx.Err(); err != nil {
			return 0, err
		}
		if r.body == nil {
			if len(r.keys) == 0 {
				return 0, io.EOF
			}
			out, err := r.store.client.GetObject(r.ctx, &s3.GetObjectInput{
				Bucket: aws.String(r.store.bucket),
				Key:    aws.String(r.keys[0]),
			})
			if err != nil {
				var noKey *types.NoSuchKey
				if errors.As(err, &noKey) {
					return 0, fmt.Errorf("part %s: %w", r.keys[0], block.ErrBlockNotFound)
				}
				return 0, fmt.Errorf("failed to get object: %w", err)
			}
			r.keys = r.keys[1:]
			r.body = out.Body
		}

		n, err := r.body.Read(p)
		if err == io.EOF {
			_ = r.body.Close()
			r.body = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (r *partReader) Close() error {
	if r.body != nil {
		err := r.body.Close()
		r.body = nil
		return err
	}
	return nil
}
