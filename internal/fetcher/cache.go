package fetcher

import (
	"context"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrUnavailable is returned when a source cannot be downloaded and no cached
// copy exists.
var ErrUnavailable = eris.New("fetcher: source unavailable")

// Source names a remote dataset.
type Source struct {
	// Name is the cache file stem, e.g. "schools".
	Name string
	URL  string
	// Ext overrides the file extension taken from the URL path. Query-style
	// endpoints such as ArcGIS "…/query?f=geojson" need it.
	Ext string
}

// Cache keeps one local copy per Source under Dir. A cached copy is reused
// as is unless Refresh is set, in which case HTTP sources are revalidated
// with the ETag stored in a "<file>.etag" sidecar: a HEAD request first, and
// a conditional GET when the HEAD is refused or reports a different tag.
type Cache struct {
	Dir     string
	Refresh bool

	http Fetcher
	ftp  Downloader
}

// NewCache creates a Cache backed by the given HTTP and FTP fetchers.
func NewCache(dir string, refresh bool, httpF Fetcher, ftpF Downloader) *Cache {
	return &Cache{Dir: dir, Refresh: refresh, http: httpF, ftp: ftpF}
}

// Path returns where src is (or would be) cached.
func (c *Cache) Path(src Source) (string, error) {
	u, err := url.Parse(src.URL)
	if err != nil {
		return "", eris.Wrapf(err, "fetcher: parse url for %s", src.Name)
	}
	ext := src.Ext
	if ext == "" {
		ext = path.Ext(u.Path)
	}
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return filepath.Join(c.Dir, src.Name+ext), nil
}

// Get returns the local path of src, downloading it if needed.
func (c *Cache) Get(ctx context.Context, src Source) (string, error) {
	dest, err := c.Path(src)
	if err != nil {
		return "", err
	}
	log := zap.L().With(
		zap.String("component", "fetcher"),
		zap.String("source", src.Name),
		zap.String("path", dest),
	)

	cached := fileExists(dest)
	if cached && !c.Refresh {
		log.Debug("using cached copy")
		return dest, nil
	}
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return "", eris.Wrap(err, "fetcher: create cache dir")
	}

	err = c.download(ctx, src.URL, dest, cached)
	switch {
	case err == nil:
		return dest, nil
	case cached:
		log.Warn("refresh failed, keeping cached copy", zap.Error(err))
		return dest, nil
	default:
		return "", eris.Wrapf(ErrUnavailable, "%s from %s: %v", src.Name, src.URL, err)
	}
}

// GetAll fetches sources concurrently and returns their paths keyed by name.
func (c *Cache) GetAll(ctx context.Context, sources []Source) (map[string]string, error) {
	paths := make([]string, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(3)
	for i, src := range sources {
		g.Go(func() error {
			p, err := c.Get(gctx, src)
			if err != nil {
				return err
			}
			paths[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]string, len(sources))
	for i, src := range sources {
		out[src.Name] = paths[i]
	}
	return out, nil
}

func (c *Cache) download(ctx context.Context, rawURL, dest string, cached bool) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return eris.Wrap(err, "parse url")
	}

	switch u.Scheme {
	case "http", "https":
		if c.http == nil {
			return eris.New("no http fetcher configured")
		}
		etag := ""
		if cached {
			etag = readETag(dest)
		}
		if etag != "" {
			current, err := c.http.HeadETag(ctx, rawURL)
			switch {
			case err != nil:
				zap.L().Debug("fetcher: head failed, falling back to conditional get",
					zap.String("url", rawURL), zap.Error(err))
			case current == etag:
				zap.L().Info("fetcher: source not modified", zap.String("url", rawURL))
				return nil
			}
		}
		body, newTag, changed, err := c.http.DownloadIfChanged(ctx, rawURL, etag)
		if err != nil {
			return err
		}
		if !changed {
			zap.L().Info("fetcher: source not modified", zap.String("url", rawURL))
			return nil
		}
		defer body.Close() //nolint:errcheck
		if err := replaceFile(dest, body); err != nil {
			return err
		}
		return writeETag(dest, newTag)

	case "ftp":
		if c.ftp == nil {
			return eris.New("no ftp fetcher configured")
		}
		body, err := c.ftp.Download(ctx, rawURL)
		if err != nil {
			return err
		}
		defer body.Close() //nolint:errcheck
		return replaceFile(dest, body)

	default:
		return eris.Errorf("unsupported scheme %q", u.Scheme)
	}
}

// replaceFile writes r to a temporary file in dest's directory and renames it
// over dest, so an interrupted download never leaves a truncated cache entry.
func replaceFile(dest string, r io.Reader) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".fetch-*")
	if err != nil {
		return eris.Wrap(err, "create temp file")
	}
	tmpName := tmp.Name()

	_, err = io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmpName)
		return eris.Wrap(err, "write temp file")
	}
	if err := os.Rename(tmpName, dest); err != nil {
		_ = os.Remove(tmpName)
		return eris.Wrap(err, "move into cache")
	}
	return nil
}

func readETag(dest string) string {
	b, err := os.ReadFile(dest + ".etag")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

func writeETag(dest, etag string) error {
	if etag == "" {
		_ = os.Remove(dest + ".etag")
		return nil
	}
	if err := os.WriteFile(dest+".etag", []byte(etag+"\n"), 0o644); err != nil {
		return eris.Wrap(err, "write etag")
	}
	return nil
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir() && info.Size() > 0
}
