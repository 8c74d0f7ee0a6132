// Package export writes the settlement ratio table and the data-quality
// report to their sinks.
package export

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/settlement-cli/internal/db"
	"github.com/sells-group/settlement-cli/internal/pipeline"
)

// Output formats.
const (
	FormatCSV      = "csv"
	FormatGeoJSON  = "geojson"
	FormatXLSX     = "xlsx"
	FormatSQLite   = "sqlite"
	FormatPostgres = "postgres"
)

// Columns of the ratio table, in output order.
var Columns = []string{"id", "name", "total_schoolchildren", "total_school_places", "ratio", "outlier"}

// Options selects a sink.
type Options struct {
	Format      string
	Path        string
	Table       string
	DatabaseURL string
}

// Write sends the ratio table to the configured sink.
func Write(ctx context.Context, opts Options, out *pipeline.Output) error {
	log := zap.L().With(zap.String("component", "export"), zap.String("format", opts.Format))

	var err error
	switch opts.Format {
	case FormatCSV:
		err = writeFile(opts.Path, func(f *os.File) error { return WriteCSV(f, out.Records) })
	case FormatGeoJSON:
		err = writeFile(opts.Path, func(f *os.File) error { return WriteGeoJSON(f, out.Records, out.Settlements) })
	case FormatXLSX:
		err = WriteXLSX(opts.Path, out.Records)
	case FormatSQLite:
		err = WriteSQLite(ctx, opts.Path, opts.Table, out.Records)
	case FormatPostgres:
		pool, cerr := db.Connect(ctx, opts.DatabaseURL)
		if cerr != nil {
			return cerr
		}
		defer pool.Close()
		_, err = WritePostGIS(ctx, pool, opts.Table, out.Records, out.Settlements)
	default:
		return eris.Errorf("export: unknown format %q", opts.Format)
	}
	if err != nil {
		return err
	}

	log.Info("export: ratio table written",
		zap.String("path", opts.Path),
		zap.String("table", opts.Table),
		zap.Int("rows", len(out.Records)),
	)
	return nil
}

// WriteReport writes the data-quality report as YAML.
func WriteReport(path string, report *pipeline.Report) error {
	return writeFile(path, func(f *os.File) error {
		enc := yaml.NewEncoder(f)
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return eris.Wrap(err, "export: encode report")
		}
		if err := enc.Close(); err != nil {
			return eris.Wrap(err, "export: flush report")
		}
		return nil
	})
}

// writeFile creates path and hands it to fn, closing it afterwards.
func writeFile(path string, fn func(*os.File) error) error {
	if path == "" {
		return eris.New("export: output path is empty")
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	err = fn(f)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = eris.Wrapf(cerr, "export: close %s", path)
	}
	return err
}
