package backup

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/voxalabs/storage-redundancy-engine/interfaces"
)

// Metadata carried on every archived object so a restore can rebuild the
// storage key without the replica index.
const (
	metaKeyID        = "key-id"
	metaOriginalSize = "original-size"
)

// Engine is the ciphertext-level slice of the redundancy manager the backup
// tooling needs. Plaintext never crosses this interface.
type Engine interface {
	TrackedFilenames(ctx context.Context) ([]string, error)
	RetrieveEncrypted(ctx context.Context, filename string) (interfaces.EncryptedBlob, interfaces.StorageKey, error)
	StoreEncrypted(ctx context.Context, blob interfaces.EncryptedBlob, key interfaces.StorageKey) error
}

// ObjectStore is the slice of the S3 API the exporter uses.
type ObjectStore interface {
	PutObjectWithContext(ctx aws.Context, input *s3.PutObjectInput, opts ...request.Option) (*s3.PutObjectOutput, error)
	GetObjectWithContext(ctx aws.Context, input *s3.GetObjectInput, opts ...request.Option) (*s3.GetObjectOutput, error)
	ListObjectsV2WithContext(ctx aws.Context, input *s3.ListObjectsV2Input, opts ...request.Option) (*s3.ListObjectsV2Output, error)
	HeadBucketWithContext(ctx aws.Context, input *s3.HeadBucketInput, opts ...request.Option) (*s3.HeadBucketOutput, error)
}

// S3Config locates the bucket that receives cold exports.
type S3Config struct {
	Bucket string
	Prefix string
	Region string

	// Endpoint overrides the AWS endpoint for S3-compatible services.
	Endpoint string

	AccessKey string
	SecretKey string

	// ForcePathStyle addresses the bucket in the URL path rather than the
	// host, which most self-hosted S3 implementations require.
	ForcePathStyle bool
}

// NewS3Client creates an S3 client for the configured bucket endpoint.
func NewS3Client(cfg S3Config) (*s3.S3, error) {
	awsCfg := aws.Config{
		Region: aws.String(cfg.Region),
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
	}
	if cfg.ForcePathStyle {
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	}

	sess, err := session.NewSession(&awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	return s3.New(sess), nil
}

// Exporter copies ciphertext replicas between the engine and an
// S3-compatible bucket.
type Exporter struct {
	engine Engine
	store  ObjectStore
	bucket string
	prefix string
	log    *slog.Logger
}

// NewExporter creates an exporter over the given engine and bucket.
func NewExporter(engine Engine, store ObjectStore, cfg S3Config, log *slog.Logger) *Exporter {
	return &Exporter{
		engine: engine,
		store:  store,
		bucket: cfg.Bucket,
		prefix: strings.TrimSuffix(cfg.Prefix, "/"),
		log:    log,
	}
}

// FileError records one filename that failed during a pass.
type FileError struct {
	Filename string
	Err      error
}

// Report summarizes one export or restore pass. A pass keeps going past
// individual failures and collects them here.
type Report struct {
	Completed int
	Failed    []FileError
}

// Err folds the per-file failures into a single error, nil when there were
// none.
func (r Report) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d files failed", len(r.Failed), r.Completed+len(r.Failed))
}

// CheckBucket verifies the bucket is reachable with the configured
// credentials before a pass starts.
func (e *Exporter) CheckBucket(ctx context.Context) error {
	_, err := e.store.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(e.bucket),
	})
	if err != nil {
		return fmt.Errorf("bucket %s is not reachable: %w", e.bucket, err)
	}
	return nil
}

// Export walks every tracked filename and writes its ciphertext to the
// bucket. Replicas are fetched through the usual fallback chain, so a
// degraded fleet can still be exported as long as each file keeps one
// reachable holder.
func (e *Exporter) Export(ctx context.Context) (Report, error) {
	names, err := e.engine.TrackedFilenames(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("could not list tracked files: %w", err)
	}

	var report Report
	for _, name := range names {
		if err := e.exportOne(ctx, name); err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			e.log.Error("Failed to export file", "err", err, slog.String("filename", name))
			report.Failed = append(report.Failed, FileError{Filename: name, Err: err})
			continue
		}
		report.Completed++
	}

	e.log.Info("Export finished",
		slog.Int("exported", report.Completed),
		slog.Int("failed", len(report.Failed)),
		slog.String("bucket", e.bucket))
	return report, nil
}

func (e *Exporter) exportOne(ctx context.Context, filename string) error {
	blob, key, err := e.engine.RetrieveEncrypted(ctx, filename)
	if err != nil {
		return fmt.Errorf("could not fetch ciphertext: %w", err)
	}

	_, err = e.store.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(e.bucket),
		Key:    aws.String(e.objectKey(filename)),
		Body:   bytes.NewReader(blob.Bytes),
		Metadata: map[string]*string{
			metaKeyID:        aws.String(key.KeyID),
			metaOriginalSize: aws.String(strconv.FormatInt(blob.OriginalSize, 10)),
		},
	})
	if err != nil {
		return fmt.Errorf("could not upload object: %w", err)
	}

	e.log.Debug("Exported file",
		slog.String("filename", filename),
		slog.Int("size", len(blob.Bytes)))
	return nil
}

// Restore lists the bucket under the prefix and re-seeds every object into
// the engine at its current redundancy level. Ciphertext is stored as-is
// under its original key ID, so the engine's keyring must still derive that
// key.
func (e *Exporter) Restore(ctx context.Context) (Report, error) {
	var report Report
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(e.bucket),
	}
	if e.prefix != "" {
		input.Prefix = aws.String(e.prefix + "/")
	}

	for {
		page, err := e.store.ListObjectsV2WithContext(ctx, input)
		if err != nil {
			return report, fmt.Errorf("could not list bucket %s: %w", e.bucket, err)
		}

		for _, obj := range page.Contents {
			objectKey := aws.StringValue(obj.Key)
			filename := e.filenameFor(objectKey)
			if filename == "" {
				continue
			}
			if err := e.restoreOne(ctx, objectKey, filename); err != nil {
				if ctx.Err() != nil {
					return report, ctx.Err()
				}
				e.log.Error("Failed to restore file", "err", err, slog.String("filename", filename))
				report.Failed = append(report.Failed, FileError{Filename: filename, Err: err})
				continue
			}
			report.Completed++
		}

		if !aws.BoolValue(page.IsTruncated) {
			break
		}
		input.ContinuationToken = page.NextContinuationToken
	}

	e.log.Info("Restore finished",
		slog.Int("restored", report.Completed),
		slog.Int("failed", len(report.Failed)),
		slog.String("bucket", e.bucket))
	return report, nil
}

func (e *Exporter) restoreOne(ctx context.Context, objectKey, filename string) error {
	result, err := e.store.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(e.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return fmt.Errorf("could not get object: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return fmt.Errorf("could not read object body: %w", err)
	}

	keyID := metadataValue(result.Metadata, metaKeyID)
	if keyID == "" {
		return fmt.Errorf("object %s carries no %s metadata", objectKey, metaKeyID)
	}

	blob := interfaces.EncryptedBlob{Bytes: data}
	if raw := metadataValue(result.Metadata, metaOriginalSize); raw != "" {
		size, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("object %s carries malformed %s metadata: %w", objectKey, metaOriginalSize, err)
		}
		blob.OriginalSize = size
	}

	key := interfaces.StorageKey{Filename: filename, KeyID: keyID}
	if err := e.engine.StoreEncrypted(ctx, blob, key); err != nil {
		return fmt.Errorf("could not re-seed replicas: %w", err)
	}

	e.log.Debug("Restored file",
		slog.String("filename", filename),
		slog.Int("size", len(data)))
	return nil
}

func (e *Exporter) objectKey(filename string) string {
	if e.prefix == "" {
		return filename
	}
	return path.Join(e.prefix, filename)
}

// filenameFor strips the prefix from an object key. Directory markers and
// keys outside the prefix layout yield "" and are skipped.
func (e *Exporter) filenameFor(objectKey string) string {
	name := objectKey
	if e.prefix != "" {
		var ok bool
		name, ok = strings.CutPrefix(objectKey, e.prefix+"/")
		if !ok {
			return ""
		}
	}
	if strings.HasSuffix(name, "/") {
		return ""
	}
	return name
}

// metadataValue reads an object metadata field regardless of case. The SDK
// canonicalizes metadata keys on responses, so "key-id" comes back "Key-Id".
func metadataValue(meta map[string]*string, name string) string {
	for k, v := range meta {
		if strings.EqualFold(k, name) {
			return aws.StringValue(v)
		}
	}
	return ""
}
