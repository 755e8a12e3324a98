package state

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"gopkg.in/yaml.v3"
)

// S3Store persists state records as YAML objects in an S3-compatible
// bucket. Locks are separate objects written with a conditional put, so
// two runs racing for the same location see a clean conflict instead of
// corrupting each other.
type S3Store struct {
	s3     *s3.Client
	bucket string
	prefix string
}

// S3Options configures an S3Store. Endpoint is optional and enables
// S3-compatible object stores outside AWS.
type S3Options struct {
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// NewS3Store builds the store over a freshly configured S3 client.
// Credentials come from the options when set, else the ambient AWS chain.
func NewS3Store(ctx context.Context, opts S3Options) (*S3Store, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 state store requires a bucket")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{s3: client, bucket: opts.Bucket, prefix: opts.Prefix}, nil
}

// NewS3StoreWithClient wires an existing client, mainly for tests.
func NewS3StoreWithClient(client *s3.Client, bucket, prefix string) *S3Store {
	return &S3Store{s3: client, bucket: bucket, prefix: prefix}
}

func (s *S3Store) key(loc Location) string {
	return path.Join(s.prefix, string(loc))
}

func (s *S3Store) lockKey(loc Location) string {
	return s.key(loc) + ".lock"
}

// Get implements Store.
func (s *S3Store) Get(ctx context.Context, loc Location) (*Record, error) {
	out, err := s.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(loc)),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get state %s: %w", loc, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read state %s: %w", loc, err)
	}

	var rec Record
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state %s: %w", loc, err)
	}
	return &rec, nil
}

// Put implements Store. The version check reads the stored record first;
// the exclusive lock held during an apply is what makes the
// read-compare-write safe.
func (s *S3Store) Put(ctx context.Context, loc Location, rec *Record, expectedVersion int64) error {
	current, err := s.Get(ctx, loc)
	if err != nil {
		return err
	}
	var storedVersion int64
	if current != nil {
		storedVersion = current.Version
	}
	if storedVersion != expectedVersion {
		return fmt.Errorf("put %s: expected version %d, stored %d: %w",
			loc, expectedVersion, storedVersion, ErrVersionConflict)
	}

	cp := *rec
	cp.Version = expectedVersion + 1
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now().UTC()
	}

	data, err := yaml.Marshal(&cp)
	if err != nil {
		return fmt.Errorf("failed to marshal state %s: %w", loc, err)
	}

	_, err = s.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(loc)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("failed to put state %s: %w", loc, err)
	}
	return nil
}

// Delete implements Store.
func (s *S3Store) Delete(ctx context.Context, loc Location) error {
	_, err := s.s3.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(loc)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete state %s: %w", loc, err)
	}
	return nil
}

// Lock implements Store using a conditional put of a lock object: the
// write succeeds only if no lock object exists yet.
func (s *S3Store) Lock(ctx context.Context, loc Location) (Token, error) {
	id := newLockID()

	_, err := s.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.lockKey(loc)),
		Body:        bytes.NewReader([]byte(id)),
		IfNoneMatch: aws.String("*"),
	})
	if err != nil {
		if isPreconditionFailed(err) {
			return Token{}, fmt.Errorf("lock %s: %w", loc, ErrLockConflict)
		}
		return Token{}, fmt.Errorf("failed to lock %s: %w", loc, err)
	}
	return Token{Location: loc, ID: id}, nil
}

// Unlock implements Store. The stored lock id is compared against the
// token so a run can never release a lock it does not hold.
func (s *S3Store) Unlock(ctx context.Context, token Token) error {
	out, err := s.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.lockKey(token.Location)),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return fmt.Errorf("unlock %s: %w", token.Location, ErrNotLocked)
		}
		return fmt.Errorf("failed to read lock %s: %w", token.Location, err)
	}
	defer out.Body.Close()

	held, err := io.ReadAll(out.Body)
	if err != nil {
		return fmt.Errorf("failed to read lock %s: %w", token.Location, err)
	}
	if string(held) != token.ID {
		return fmt.Errorf("unlock %s: %w", token.Location, ErrNotLocked)
	}

	_, err = s.s3.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.lockKey(token.Location)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete lock %s: %w", token.Location, err)
	}
	return nil
}

// isNoSuchKey checks for a missing object, falling back to API error codes
// for S3-compatible services that skip the typed errors.
func isNoSuchKey(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NoSuchKey" || code == "NotFound"
	}
	return false
}

// isPreconditionFailed checks for a failed conditional write.
func isPreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "PreconditionFailed"
	}
	return false
}
