// Package datasource opens the dataset named by a pipeline source: a local
// file, an HTTP(S) URL or an S3 object. Names ending in ".gz" are
// decompressed transparently.
package datasource

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"jobmarket/internal/config"
	"jobmarket/internal/datasource/file"
	"jobmarket/internal/datasource/httpds"
	"jobmarket/internal/datasource/s3ds"
	apperrors "jobmarket/internal/errors"
)

// Name returns a human-readable location for src, used in logs and the
// ingest run log.
func Name(src config.Source) string {
	switch src.Kind {
	case "file":
		if src.File != nil {
			return src.File.Path
		}
	case "http":
		if src.HTTP != nil {
			return src.HTTP.URL
		}
	case "s3":
		if src.S3 != nil {
			return s3ds.URI(*src.S3)
		}
	}
	return src.Kind
}

// Open returns a reader over the decoded dataset bytes of src.
//
// Errors:
//   - SourceNotFound when the file, URL or object does not exist.
//   - InvalidConfig when src.Kind is unknown or its section is missing.
func Open(ctx context.Context, src config.Source) (io.ReadCloser, error) {
	raw, err := openRaw(ctx, src)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(strings.ToLower(Name(src)), ".gz") {
		return raw, nil
	}
	zr, err := gzip.NewReader(raw)
	if err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("gzip %s: %w", Name(src), err)
	}
	return &gzipReadCloser{Reader: zr, raw: raw}, nil
}

func openRaw(ctx context.Context, src config.Source) (io.ReadCloser, error) {
	switch src.Kind {
	case "file":
		if src.File == nil {
			return nil, apperrors.InvalidConfig("source.kind=file requires source.file", nil)
		}
		return file.Open(src.File.Path)
	case "http":
		if src.HTTP == nil {
			return nil, apperrors.InvalidConfig("source.kind=http requires source.http", nil)
		}
		return httpds.Open(ctx, nil, *src.HTTP)
	case "s3":
		if src.S3 == nil {
			return nil, apperrors.InvalidConfig("source.kind=s3 requires source.s3", nil)
		}
		client, err := s3ds.NewClient(ctx, *src.S3)
		if err != nil {
			return nil, err
		}
		return s3ds.Open(ctx, client, *src.S3)
	default:
		return nil, apperrors.InvalidConfig(fmt.Sprintf("unsupported source.kind=%q", src.Kind), nil)
	}
}

type gzipReadCloser struct {
	*gzip.Reader
	raw io.ReadCloser
}

func (g *gzipReadCloser) Close() error {
	zerr := g.Reader.Close()
	if err := g.raw.Close(); err != nil {
		return err
	}
	return zerr
}

// ParseURI turns a location given on the command line into a source:
// "s3://bucket/key", "http(s)://..." or a local path.
func ParseURI(uri string) (config.Source, error) {
	switch {
	case strings.HasPrefix(uri, "s3://"):
		u, err := url.Parse(uri)
		if err != nil {
			return config.Source{}, apperrors.InvalidConfig("parse "+uri, err)
		}
		key := strings.TrimPrefix(u.Path, "/")
		if u.Host == "" || key == "" {
			return config.Source{}, apperrors.InvalidConfig(fmt.Sprintf("s3 uri %q needs a bucket and a key", uri), nil)
		}
		return config.Source{Kind: "s3", S3: &config.S3Source{Bucket: u.Host, Key: key}}, nil
	case strings.HasPrefix(uri, "http://"), strings.HasPrefix(uri, "https://"):
		return config.Source{Kind: "http", HTTP: &config.HTTPSource{URL: uri}}, nil
	case uri == "":
		return config.Source{}, apperrors.InvalidConfig("empty source location", nil)
	default:
		return config.Source{Kind: "file", File: &config.FileSource{Path: uri}}, nil
	}
}

// Fetch copies the raw bytes of src to dest, creating dest's directory.
// dest is replaced atomically; a failed fetch leaves any previous file in
// place. The content is stored as served, without gzip decoding.
func Fetch(ctx context.Context, src config.Source, dest string) (int64, error) {
	r, err := openRaw(ctx, src)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".fetch-*")
	if err != nil {
		return 0, err
	}
	tmpName := tmp.Name()

	n, copyErr := io.Copy(tmp, r)
	closeErr := tmp.Close()
	if copyErr != nil {
		_ = os.Remove(tmpName)
		return n, fmt.Errorf("fetch %s: %w", Name(src), copyErr)
	}
	if closeErr != nil {
		_ = os.Remove(tmpName)
		return n, closeErr
	}
	if err := os.Rename(tmpName, dest); err != nil {
		_ = os.Remove(tmpName)
		return n, err
	}
	return n, nil
}
