package fetcher

import (
	"context"
	"io"
)

// Downloader retrieves a dataset URL in full. The FTP mirrors used for older
// census releases only support this.
type Downloader interface {
	Download(ctx context.Context, url string) (io.ReadCloser, error)
}

// Fetcher adds ETag revalidation, used by Cache when a refresh is requested.
type Fetcher interface {
	Downloader
	// HeadETag returns the current ETag without transferring the body.
	HeadETag(ctx context.Context, url string) (string, error)
	// DownloadIfChanged sends a conditional GET. changed is false and the body
	// nil when the server still holds etag.
	DownloadIfChanged(ctx context.Context, url string, etag string) (body io.ReadCloser, newETag string, changed bool, err error)
}

var (
	_ Fetcher    = (*HTTPFetcher)(nil)
	_ Downloader = (*FTPFetcher)(nil)
)
