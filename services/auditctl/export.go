package auditctl

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"activityaudit/services/audit"
)

// Exporter streams the trail as CSV. *audit.QueryService satisfies it.
type Exporter interface {
	Export(ctx context.Context, id audit.AdminIdentity, w io.Writer) (int64, error)
}

// Uploader stores finished exports. *s3.Client satisfies it.
type Uploader interface {
	PutObject(ctx context.Context, bucket, key, contentType string, r io.Reader, size int64, sha256 string) error
	PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
}

// ExportResult describes the bytes produced by WriteExport.
type ExportResult struct {
	Rows       int64
	Bytes      int64
	SHA256     string
	Compressed bool
}

// ContentType returns the MIME type of the produced archive.
func (r ExportResult) ContentType() string {
	if r.Compressed {
		return "application/zstd"
	}
	return "text/csv"
}

// WriteExport writes the CSV export to w, zstd compressed when compress is
// set. Size and checksum cover the bytes written to w.
func WriteExport(ctx context.Context, q Exporter, id audit.AdminIdentity, w io.Writer, compress bool) (ExportResult, error) {
	hash := sha256.New()
	counter := &byteCounter{}
	out := io.MultiWriter(w, hash, counter)

	res := ExportResult{Compressed: compress}
	var err error
	if compress {
		var enc *zstd.Encoder
		enc, err = zstd.NewWriter(out)
		if err != nil {
			return ExportResult{}, fmt.Errorf("zstd writer: %w", err)
		}
		res.Rows, err = q.Export(ctx, id, enc)
		if cerr := enc.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close zstd writer: %w", cerr)
		}
	} else {
		res.Rows, err = q.Export(ctx, id, out)
	}
	if err != nil {
		return ExportResult{}, err
	}

	res.Bytes = counter.n
	res.SHA256 = hex.EncodeToString(hash.Sum(nil))
	return res, nil
}

// ObjectKey returns the bucket key an export taken at now is stored under.
func ObjectKey(now time.Time, id uuid.UUID, compressed bool) string {
	name := id.String() + ".csv"
	if compressed {
		name += ".zst"
	}
	return path.Join("exports", now.UTC().Format("2006/01/02"), name)
}

// UploadConfig controls UploadExport.
type UploadConfig struct {
	Bucket     string
	Compress   bool
	PresignTTL time.Duration
	Now        time.Time
}

// Upload is the outcome of UploadExport.
type Upload struct {
	ExportResult
	Key string
	URL string
}

// UploadExport spools the export to a temporary file, uploads it with its
// checksum and returns a presigned download URL.
func UploadExport(ctx context.Context, q Exporter, up Uploader, id audit.AdminIdentity, cfg UploadConfig) (Upload, error) {
	if cfg.Bucket == "" {
		return Upload{}, errors.New("bucket is required")
	}
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = 15 * time.Minute
	}
	if cfg.Now.IsZero() {
		cfg.Now = time.Now()
	}

	tmp, err := os.CreateTemp("", "audit-export-*")
	if err != nil {
		return Upload{}, fmt.Errorf("create spool file: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	res, err := WriteExport(ctx, q, id, tmp, cfg.Compress)
	if err != nil {
		return Upload{}, err
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return Upload{}, fmt.Errorf("rewind spool file: %w", err)
	}

	key := ObjectKey(cfg.Now, uuid.New(), cfg.Compress)
	if err := up.PutObject(ctx, cfg.Bucket, key, res.ContentType(), tmp, res.Bytes, res.SHA256); err != nil {
		return Upload{}, fmt.Errorf("upload %s: %w", key, err)
	}
	url, err := up.PresignGet(ctx, cfg.Bucket, key, cfg.PresignTTL)
	if err != nil {
		return Upload{}, fmt.Errorf("presign %s: %w", key, err)
	}
	return Upload{ExportResult: res, Key: key, URL: url}, nil
}

type byteCounter struct{ n int64 }

func (c *byteCounter) Write(p []byte) (int, error) {
	c.n += int64(len(p))
	return len(p), nil
}

// Destination is the parsed target of an export command.
type Destination struct {
	Output string
	Upload bool
	Bucket string
	// BucketSet records whether the bucket was given explicitly.
	BucketSet bool
}

// ResolveBucket returns the bucket to upload to, or "" when the export is
// written locally. defaultBucket is only consulted for an upload request.
func (d Destination) ResolveBucket(defaultBucket string) (string, error) {
	upload := d.Upload || d.BucketSet
	if !upload {
		return "", nil
	}
	if d.Output != "" {
		return "", errors.New("--output cannot be combined with an upload")
	}
	bucket := d.Bucket
	if bucket == "" {
		bucket = defaultBucket
	}
	if bucket == "" {
		return "", errors.New("no bucket: pass --bucket or set S3_BUCKET")
	}
	return bucket, nil
}
