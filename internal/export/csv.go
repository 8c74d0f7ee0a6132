package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"

	"github.com/sells-group/settlement-cli/internal/ratio"
)

// WriteCSV writes the ratio table with a header row. Ratios use the shortest
// decimal form that round-trips, never exponent notation.
func WriteCSV(w io.Writer, records []ratio.Record) error {
	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)
	enc.Register(func(f float64) ([]byte, error) {
		return strconv.AppendFloat(nil, f, 'f', -1, 64), nil
	})

	if err := enc.EncodeHeader(ratio.Record{}); err != nil {
		return eris.Wrap(err, "export: csv header")
	}
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return eris.Wrapf(err, "export: csv row %s", r.ID)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return eris.Wrap(err, "export: flush csv")
	}
	return nil
}
