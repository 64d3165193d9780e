package s3blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/alanyoungcy/polyseries/internal/domain"
	"github.com/alanyoungcy/polyseries/internal/output"
)

const (
	latestDir = "latest"
	runsDir   = "runs"

	defaultMultipartThreshold int64 = 64 * 1024 * 1024
)

// PublisherConfig configures a Publisher.
type PublisherConfig struct {
	Prefix string // key prefix, e.g. "polyseries"
	// Archive also keeps an immutable copy under runs/<UTC timestamp>/.
	Archive bool
	// Files larger than MultipartThreshold go through the multipart uploader.
	MultipartThreshold int64
}

// Publisher uploads finished output tables to
// {prefix}/latest/{file} and, when archiving, {prefix}/runs/{stamp}/{file}.
type Publisher struct {
	writer domain.BlobWriter
	cfg    PublisherConfig
	now    func() time.Time
	logger *slog.Logger
}

// NewPublisher creates a Publisher writing through w.
func NewPublisher(w domain.BlobWriter, cfg PublisherConfig, logger *slog.Logger) *Publisher {
	if cfg.MultipartThreshold <= 0 {
		cfg.MultipartThreshold = defaultMultipartThreshold
	}
	return &Publisher{
		writer: w,
		cfg:    cfg,
		now:    time.Now,
		logger: logger.With(slog.String("component", "s3-publisher")),
	}
}

// Publish uploads each named file of dir. Every file is attempted; the
// failures are joined into the returned error.
func (p *Publisher) Publish(ctx context.Context, dir string, files []string) error {
	stamp := p.now().UTC().Format("20060102T150405Z")

	var errs []error
	for _, name := range files {
		keys := []string{ObjectKey(p.cfg.Prefix, latestDir, name)}
		if p.cfg.Archive {
			keys = append(keys, ObjectKey(p.cfg.Prefix, runsDir, stamp, name))
		}
		for _, key := range keys {
			if err := p.upload(ctx, filepath.Join(dir, name), key); err != nil {
				errs = append(errs, err)
				continue
			}
			p.logger.DebugContext(ctx, "uploaded output", slog.String("key", key))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	p.logger.InfoContext(ctx, "outputs published",
		slog.Int("files", len(files)),
		slog.String("prefix", p.cfg.Prefix),
	)
	return nil
}

func (p *Publisher) upload(ctx context.Context, localPath, key string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("s3blob: publish %s: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("s3blob: publish %s: %w", localPath, err)
	}
	if info.Size() > p.cfg.MultipartThreshold {
		return p.writer.PutMultipart(ctx, key, f, minPartSize)
	}
	return p.writer.Put(ctx, key, f, contentType(localPath))
}

// Restore downloads {prefix}/latest/{file} into dir for every named file
// that is missing locally, so a job can start on a fresh host. Objects
// absent from the bucket are skipped. It returns the files it restored.
func Restore(ctx context.Context, r domain.BlobReader, prefix, dir string, files []string) ([]string, error) {
	var restored []string
	for _, name := range files {
		local := filepath.Join(dir, name)
		if _, err := os.Stat(local); err == nil {
			continue
		} else if !errors.Is(err, os.ErrNotExist) {
			return restored, fmt.Errorf("s3blob: restore %s: %w", local, err)
		}

		body, err := r.Get(ctx, ObjectKey(prefix, latestDir, name))
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return restored, err
		}
		data, err := io.ReadAll(body)
		body.Close()
		if err != nil {
			return restored, fmt.Errorf("s3blob: restore %s: read: %w", name, err)
		}
		if err := output.WriteFileAtomic(local, data); err != nil {
			return restored, err
		}
		restored = append(restored, name)
	}
	return restored, nil
}

// ObjectKey joins key parts with "/", ignoring empty parts and surrounding
// slashes of the prefix.
func ObjectKey(prefix string, parts ...string) string {
	all := make([]string, 0, len(parts)+1)
	if p := strings.Trim(prefix, "/"); p != "" {
		all = append(all, p)
	}
	all = append(all, parts...)
	return path.Join(all...)
}

func contentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return "text/csv; charset=utf-8"
	case ".jsonl":
		return "application/x-ndjson"
	default:
		return "application/octet-stream"
	}
}
