package cli

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/treediff/treediff/internal/platform"
	"github.com/treediff/treediff/pkg/vfs"
)

// openLocation opens the backend for a location argument. Supported forms:
//
//	s3://bucket/prefix           S3-compatible object storage
//	dav://host/path              WebDAV over HTTP
//	davs://host/path             WebDAV over HTTPS
//	archive.zip                  ZIP archive
//	archive.tar[.gz] / .tgz      TAR archive
//	/some/directory              local filesystem
//
// S3 credentials come from AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY,
// AWS_REGION and S3_ENDPOINT. WebDAV credentials come from
// WEBDAV_USERNAME and WEBDAV_PASSWORD.
func openLocation(location string) (vfs.FS, error) {
	switch {
	case strings.HasPrefix(location, "s3://"):
		return openS3(location)
	case strings.HasPrefix(location, "dav://"), strings.HasPrefix(location, "davs://"):
		return openWebDAV(location)
	}

	location = platform.NormalizePath(location)

	// Archive extensions only apply to actual files; a directory named
	// data.zip is still a directory
	if info, err := os.Stat(location); err == nil && !info.IsDir() {
		switch {
		case strings.HasSuffix(location, ".zip"):
			return vfs.NewZip(location)
		case strings.HasSuffix(location, ".tar"),
			strings.HasSuffix(location, ".tar.gz"),
			strings.HasSuffix(location, ".tgz"):
			return vfs.NewTar(location)
		default:
			return nil, fmt.Errorf("location is a file but not a supported archive: %s", location)
		}
	}

	return vfs.NewLocal(location)
}

func openS3(location string) (vfs.FS, error) {
	parsed, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("invalid s3 location %q: %w", location, err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("s3 location %q is missing a bucket name", location)
	}

	endpoint := os.Getenv("S3_ENDPOINT")
	useSSL := true
	if strings.HasPrefix(endpoint, "http://") {
		endpoint = strings.TrimPrefix(endpoint, "http://")
		useSSL = false
	} else if strings.HasPrefix(endpoint, "https://") {
		endpoint = strings.TrimPrefix(endpoint, "https://")
	}
	if endpoint == "" {
		endpoint = "s3.amazonaws.com"
	}

	return vfs.NewS3(vfs.S3Config{
		Endpoint:  endpoint,
		Bucket:    parsed.Host,
		Prefix:    strings.Trim(parsed.Path, "/"),
		AccessKey: os.Getenv("AWS_ACCESS_KEY_ID"),
		SecretKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		Region:    os.Getenv("AWS_REGION"),
		UseSSL:    useSSL,
	})
}

func openWebDAV(location string) (vfs.FS, error) {
	baseURL := location
	if strings.HasPrefix(location, "davs://") {
		baseURL = "https://" + strings.TrimPrefix(location, "davs://")
	} else {
		baseURL = "http://" + strings.TrimPrefix(location, "dav://")
	}

	return vfs.NewWebDAV(vfs.WebDAVConfig{
		BaseURL:  baseURL,
		Username: os.Getenv("WEBDAV_USERNAME"),
		Password: os.Getenv("WEBDAV_PASSWORD"),
	})
}
