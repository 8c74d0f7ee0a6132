package export

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/settlement-cli/internal/ratio"
)

// WriteXLSX writes the ratio table to a single-sheet workbook.
func WriteXLSX(path string, records []ratio.Record) error {
	if path == "" {
		return eris.New("export: output path is empty")
	}

	f := xlsx.NewFile()
	sheet, err := f.AddSheet("settlement_ratios")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, c := range Columns {
		header.AddCell().SetString(c)
	}
	for _, r := range records {
		row := sheet.AddRow()
		row.AddCell().SetString(r.ID)
		row.AddCell().SetString(r.Name)
		row.AddCell().SetInt64(r.Children)
		row.AddCell().SetInt64(r.Places)
		row.AddCell().SetFloat(r.Ratio)
		row.AddCell().SetBool(r.Outlier)
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}
	return nil
}
