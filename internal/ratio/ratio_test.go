package ratio

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/settlement-cli/internal/aggregate"
)

func TestAnalyze(t *testing.T) {
	demand := []aggregate.Demand{
		{ID: "a", Name: "SettlementA", Children: 900},
		{ID: "b", Name: "SettlementB", Children: 300},
		{ID: "c", Name: "SettlementC", Children: 120},
		{ID: "d", Name: "SettlementD", Children: 0},
	}
	supply := []aggregate.Supply{
		{PolygonID: "d", Places: 50, Schools: 1},
		{PolygonID: "a", Places: 500, Schools: 2},
		{PolygonID: "b", Places: 300, Schools: 1},
		{PolygonID: "z", Places: 80, Schools: 1},
	}

	res, err := Analyze(demand, supply, 1.6)
	require.NoError(t, err)

	assert.Equal(t, []Record{
		{ID: "a", Name: "SettlementA", Children: 900, Places: 500, Ratio: 1.8, Outlier: true},
		{ID: "b", Name: "SettlementB", Children: 300, Places: 300, Ratio: 1, Outlier: false},
		{ID: "d", Name: "SettlementD", Children: 0, Places: 50, Ratio: 0, Outlier: false},
	}, res.Records)
	assert.Equal(t, []string{"c"}, res.NoSupply)
	assert.Equal(t, []string{"z"}, res.NoDemand)
	assert.Equal(t, 1, res.Outliers())
	assert.Equal(t, 1.6, res.Threshold)
}

func TestAnalyze_NeverDividesByZero(t *testing.T) {
	demand := []aggregate.Demand{{ID: "a", Children: 10}, {ID: "b", Children: 0}}
	supply := []aggregate.Supply{{PolygonID: "a", Places: 0, Schools: 3}, {PolygonID: "b", Places: 0, Schools: 1}}

	res, err := Analyze(demand, supply, 1.6)
	require.NoError(t, err)
	assert.Empty(t, res.Records)
	assert.Equal(t, []string{"a", "b"}, res.NoSupply)
	for _, r := range res.Records {
		assert.False(t, math.IsNaN(r.Ratio) || math.IsInf(r.Ratio, 0))
	}
}

func TestAnalyze_Thresholds(t *testing.T) {
	demand := []aggregate.Demand{
		{ID: "a", Children: 900},
		{ID: "b", Children: 50},
		{ID: "c", Children: 0},
	}
	supply := []aggregate.Supply{
		{PolygonID: "a", Places: 500},
		{PolygonID: "b", Places: 100},
		{PolygonID: "c", Places: 10},
	}

	tests := []struct {
		name      string
		threshold float64
		want      []bool
	}{
		{"zero flags every settlement with demand", 0, []bool{true, true, false}},
		{"above maximum flags none", 1.81, []bool{false, false, false}},
		{"equal to ratio is not an outlier", 1.8, []bool{false, false, false}},
		{"negative flags everything", -1, []bool{true, true, true}},
		{"default", 1.6, []bool{true, false, false}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Analyze(demand, supply, tt.threshold)
			require.NoError(t, err)
			require.Len(t, res.Records, 3)
			got := make([]bool, len(res.Records))
			for i, r := range res.Records {
				got[i] = r.Outlier
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAnalyze_InvalidInput(t *testing.T) {
	_, err := Analyze(nil, nil, math.NaN())
	assert.Error(t, err)
	_, err = Analyze(nil, nil, math.Inf(1))
	assert.Error(t, err)

	_, err = Analyze([]aggregate.Demand{{ID: "a"}, {ID: "a"}}, nil, 1)
	assert.Error(t, err)
	_, err = Analyze(nil, []aggregate.Supply{{PolygonID: "a"}, {PolygonID: "a"}}, 1)
	assert.Error(t, err)
}
