package main

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/settlement-cli/internal/config"
	"github.com/sells-group/settlement-cli/internal/fetcher"
)

// dataset is one configured input. A local path wins over a URL.
type dataset struct {
	name string
	path string
	url  string
}

func configuredDatasets(c *config.Config) []dataset {
	return []dataset{
		{name: "schools", path: c.Schools.Path, url: c.Schools.URL},
		{name: "settlements", path: c.Settlements.Path, url: c.Settlements.URL},
		{name: "census", path: c.Census.Path, url: c.Census.URL},
		{name: "valuation", path: c.Valuation.Path, url: c.Valuation.URL},
	}
}

// source builds the cache entry for a dataset URL. ArcGIS query endpoints
// carry the format in the query string rather than the path.
func (d dataset) source() fetcher.Source {
	src := fetcher.Source{Name: d.name, URL: d.url}
	if u, err := url.Parse(d.url); err == nil {
		switch strings.ToLower(u.Query().Get("f")) {
		case "geojson", "pgeojson":
			src.Ext = ".geojson"
		case "csv":
			src.Ext = ".csv"
		}
	}
	return src
}

func newCache(c *config.Config) *fetcher.Cache {
	timeout := time.Duration(c.Fetch.TimeoutSecs) * time.Second
	httpF := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:  c.Fetch.UserAgent,
		Timeout:    timeout,
		MaxRetries: c.Fetch.MaxRetries,
	})
	ftpF := fetcher.NewFTPFetcher(fetcher.FTPOptions{Timeout: timeout})
	return fetcher.NewCache(c.Fetch.CacheDir, c.Fetch.Refresh, httpF, ftpF)
}

// resolveDatasets returns a local path for each named dataset, downloading
// those configured only by URL.
func resolveDatasets(ctx context.Context, c *config.Config, names ...string) (map[string]string, error) {
	byName := make(map[string]dataset)
	for _, d := range configuredDatasets(c) {
		byName[d.name] = d
	}

	paths := make(map[string]string, len(names))
	var remote []fetcher.Source
	for _, name := range names {
		d, ok := byName[name]
		if !ok {
			return nil, eris.Errorf("unknown dataset %q", name)
		}
		switch {
		case d.path != "":
			paths[name] = d.path
		case d.url != "":
			remote = append(remote, d.source())
		default:
			return nil, eris.Errorf("%s: no path or url configured", name)
		}
	}
	if len(remote) == 0 {
		return paths, nil
	}

	fetched, err := newCache(c).GetAll(ctx, remote)
	if err != nil {
		return nil, eris.Wrap(err, "fetch datasets")
	}
	for name, p := range fetched {
		paths[name] = p
	}
	return paths, nil
}
