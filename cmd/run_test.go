package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/settlement-cli/internal/config"
)

const testSettlements = `{
  "type": "FeatureCollection",
  "crs": {"type": "name", "properties": {"name": "urn:ogc:def:crs:EPSG::2157"}},
  "features": [
    {"type": "Feature",
     "properties": {"GUID": "3f2504e0-4f89-11d3-9a0c-0305e82c3301", "SETTL_NAME": "SettlementA"},
     "geometry": {"type": "Polygon", "coordinates": [[[599000,749000],[601000,749000],[601000,751000],[599000,751000],[599000,749000]]]}},
    {"type": "Feature",
     "properties": {"GUID": "3f2504e0-4f89-11d3-9a0c-0305e82c3302", "SETTL_NAME": "SettlementB"},
     "geometry": {"type": "Polygon", "coordinates": [[[700000,700000],[701000,700000],[701000,701000],[700000,701000],[700000,700000]]]}}
  ]
}`

const testSchools = `Roll Number,Official Name,Longitude,Latitude,Total Pupils
00001A,Scoil Mhuire,-8.0,53.5,200
00002B,Scoil Iosef,-8.005,53.502,300
00003C,Scoil Bhride,-7.9,53.5,500
`

const testCensus = `GUID,T1_1AGE5T,T1_1AGE6T,T1_1AGE7T,T1_1AGE8T,T1_1AGE9T,T1_1AGE10T,T1_1AGE11T,T1_1AGE12T
3F2504E0-4F89-11D3-9A0C-0305E82C3301,100,110,120,130,140,100,100,100
3F2504E0-4F89-11D3-9A0C-0305E82C3302,10,10,10,10,10,10,10,10
`

const testValuations = `Property Number,Category,Area,Valuation
1,OFFICE,100,50000
2,OFFICE,200,80000
3,RETAIL,25,10000
4,RETAIL,0,9999
`

const testConfig = `log:
  level: error
schools:
  path: schools.csv
settlements:
  path: settlements.geojson
census:
  path: census.csv
valuation:
  path: valuations.csv
`

// workspace writes the datasets and a config file into a temp dir and makes
// it the working directory.
func workspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"settlements.geojson": testSettlements,
		"schools.csv":         testSchools,
		"census.csv":          testCensus,
		"valuations.csv":      testValuations,
		"config.yaml":         testConfig,
	}
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	t.Chdir(dir)
	return dir
}

func resetFlags(t *testing.T) {
	t.Helper()
	for _, c := range []*pflag.FlagSet{runCmd.Flags(), fetchCmd.Flags()} {
		c.VisitAll(func(f *pflag.Flag) {
			require.NoError(t, f.Value.Set(f.DefValue))
			f.Changed = false
		})
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(t)
	t.Cleanup(func() { resetFlags(t) })

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRun_EndToEnd(t *testing.T) {
	dir := workspace(t)

	out, err := execute(t, "run", "--output", "ratios.csv", "--report", "report.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "1 settlements analysed, 1 above 1.6 children per place")

	data, err := os.ReadFile(filepath.Join(dir, "ratios.csv"))
	require.NoError(t, err)
	assert.Equal(t,
		"id,name,total_schoolchildren,total_school_places,ratio,outlier\n"+
			"3f2504e0-4f89-11d3-9a0c-0305e82c3301,SettlementA,900,500,1.8,true\n",
		string(data))

	raw, err := os.ReadFile(filepath.Join(dir, "report.yaml"))
	require.NoError(t, err)
	var report map[string]any
	require.NoError(t, yaml.Unmarshal(raw, &report))
	assert.Equal(t, "EPSG:2157", report["crs"])
	assert.Equal(t, []any{"3f2504e0-4f89-11d3-9a0c-0305e82c3302"}, report["no_supply"])
	join := report["join"].(map[string]any)
	assert.Equal(t, []any{"00003C"}, join["unmatched_ids"])
}

func TestRun_OutputIsByteIdentical(t *testing.T) {
	dir := workspace(t)

	_, err := execute(t, "run", "--output", "first.csv")
	require.NoError(t, err)
	_, err = execute(t, "run", "--output", "second.csv")
	require.NoError(t, err)

	first, err := os.ReadFile(filepath.Join(dir, "first.csv"))
	require.NoError(t, err)
	second, err := os.ReadFile(filepath.Join(dir, "second.csv"))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRun_ThresholdFlag(t *testing.T) {
	dir := workspace(t)

	out, err := execute(t, "run", "--output", "ratios.csv", "--threshold", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "0 above 2 children per place")

	data, err := os.ReadFile(filepath.Join(dir, "ratios.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(data), ",1.8,false\n")
}

func TestRun_SQLiteFormat(t *testing.T) {
	dir := workspace(t)

	_, err := execute(t, "run", "--format", "sqlite", "--output", "ratios.db")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "ratios.db"))
}

func TestRun_InvalidFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown format", []string{"run", "--format", "parquet"}, `output.format "parquet" is not supported`},
		{"unknown boundary policy", []string{"run", "--boundary", "touching"}, "analysis.boundary_policy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			workspace(t)
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRun_MissingInput(t *testing.T) {
	dir := workspace(t)
	require.NoError(t, os.Remove(filepath.Join(dir, "census.csv")))

	_, err := execute(t, "run", "--output", "ratios.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "merge_census")
	assert.NoFileExists(t, filepath.Join(dir, "ratios.csv"))
}

func TestRun_WithoutCensus(t *testing.T) {
	dir := workspace(t)
	settlements := `{
  "type": "FeatureCollection",
  "crs": {"type": "name", "properties": {"name": "EPSG:2157"}},
  "features": [
    {"type": "Feature",
     "properties": {"GUID": "s1", "SETTL_NAME": "SettlementA",
       "T1_1AGE5T": 100, "T1_1AGE6T": 110, "T1_1AGE7T": 120, "T1_1AGE8T": 130,
       "T1_1AGE9T": 140, "T1_1AGE10T": 100, "T1_1AGE11T": 100, "T1_1AGE12T": 100},
     "geometry": {"type": "Polygon", "coordinates": [[[599000,749000],[601000,749000],[601000,751000],[599000,751000],[599000,749000]]]}}
  ]
}`
	config := "log:\n  level: error\nschools:\n  path: schools.csv\nsettlements:\n  path: settlements.geojson\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "settlements.geojson"), []byte(settlements), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(config), 0o644))
	require.NoError(t, os.Remove(filepath.Join(dir, "census.csv")))

	out, err := execute(t, "run", "--output", "ratios.csv")
	require.NoError(t, err)
	assert.Contains(t, out, "1 settlements analysed, 1 above 1.6 children per place")

	data, err := os.ReadFile(filepath.Join(dir, "ratios.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "s1,SettlementA,900,500,1.8,true\n")
}

func TestApplyRunFlags(t *testing.T) {
	resetFlags(t)
	t.Cleanup(func() { resetFlags(t) })
	require.NoError(t, runCmd.Flags().Parse([]string{
		"--threshold", "2.5", "--output", "x.geojson", "--format", "geojson",
		"--report", "r.yaml", "--boundary", "include", "--refresh",
	}))

	c := &config.Config{}
	c.Analysis.Threshold = 1.6
	c.Analysis.BoundaryPolicy = "exclude"
	require.NoError(t, applyRunFlags(runCmd, c))

	assert.Equal(t, 2.5, c.Analysis.Threshold)
	assert.Equal(t, "x.geojson", c.Output.Path)
	assert.Equal(t, "geojson", c.Output.Format)
	assert.Equal(t, "r.yaml", c.Output.ReportPath)
	assert.Equal(t, "include", c.Analysis.BoundaryPolicy)
	assert.True(t, c.Fetch.Refresh)
}

func TestApplyRunFlags_UnsetFlagsKeepConfig(t *testing.T) {
	resetFlags(t)
	c := &config.Config{}
	c.Analysis.Threshold = 3
	c.Output.Format = "xlsx"
	require.NoError(t, applyRunFlags(runCmd, c))
	assert.Equal(t, 3.0, c.Analysis.Threshold)
	assert.Equal(t, "xlsx", c.Output.Format)
}

func TestValuation_EndToEnd(t *testing.T) {
	workspace(t)

	out, err := execute(t, "valuation")
	require.NoError(t, err)
	assert.Contains(t, out, "OFFICE")
	assert.Contains(t, out, "RETAIL")
	assert.Contains(t, out, "rows: 3 used, 0 rejected, 1 filtered")
}

func TestFetch_NoURLs(t *testing.T) {
	workspace(t)

	_, err := execute(t, "fetch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no dataset has a url configured")
}
