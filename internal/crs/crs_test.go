package crs

import (
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Code
		wantErr error
	}{
		{name: "epsg prefix", in: "EPSG:2157", want: IrishTM},
		{name: "lower case", in: "epsg:4326", want: WGS84},
		{name: "bare number", in: "3857", want: WebMercator},
		{name: "ogc urn", in: "urn:ogc:def:crs:EPSG::2157", want: IrishTM},
		{name: "crs84 urn", in: "urn:ogc:def:crs:OGC:1.3:CRS84", want: WGS84},
		{name: "surrounding space", in: "  EPSG:32629 ", want: Code(32629)},
		{name: "empty", in: "", wantErr: ErrUndeclared},
		{name: "not epsg", in: "ESRI:102100", wantErr: ErrUnsupported},
		{name: "garbage", in: "EPSG:abc", wantErr: ErrUnsupported},
		{name: "negative", in: "-5", wantErr: ErrUnsupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, eris.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCodeString(t *testing.T) {
	assert.Equal(t, "EPSG:2157", IrishTM.String())
	assert.Equal(t, "undeclared", Code(0).String())
	assert.True(t, WGS84.Geographic())
	assert.False(t, IrishTM.Geographic())
}

func TestResolve(t *testing.T) {
	c, err := Resolve(IrishTM, 0)
	require.NoError(t, err)
	assert.Equal(t, IrishTM, c)

	c, err = Resolve(0, WGS84)
	require.NoError(t, err)
	assert.Equal(t, WGS84, c)

	c, err = Resolve(IrishTM, IrishTM)
	require.NoError(t, err)
	assert.Equal(t, IrishTM, c)

	_, err = Resolve(0, 0)
	assert.True(t, eris.Is(err, ErrUndeclared))

	_, err = Resolve(IrishTM, WGS84)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrMismatch))
	assert.Contains(t, err.Error(), "EPSG:2157")
}

func TestRequireSame(t *testing.T) {
	assert.NoError(t, RequireSame(IrishTM, IrishTM))
	assert.True(t, eris.Is(RequireSame(IrishTM, WGS84), ErrMismatch))
	assert.True(t, eris.Is(RequireSame(0, WGS84), ErrUndeclared))
}

func TestFromPRJ(t *testing.T) {
	tests := []struct {
		name string
		wkt  string
		want Code
	}{
		{
			name: "irish transverse mercator",
			wkt:  `PROJCS["IRENET95_Irish_Transverse_Mercator",GEOGCS["GCS_IRENET95",DATUM["D_IRENET95",SPHEROID["GRS_1980",6378137.0,298.257222101]]]]`,
			want: IrishTM,
		},
		{
			name: "geographic wgs84",
			wkt:  `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]]]`,
			want: WGS84,
		},
		{
			name: "utm 29 north",
			wkt:  `PROJCS["WGS_1984_UTM_Zone_29N",GEOGCS["GCS_WGS_1984"]]`,
			want: Code(32629),
		},
		{
			name: "utm 33 south",
			wkt:  `PROJCS["WGS_1984_UTM_Zone_33S",GEOGCS["GCS_WGS_1984"]]`,
			want: Code(32733),
		},
		{
			name: "web mercator",
			wkt:  `PROJCS["WGS_1984_Web_Mercator_Auxiliary_Sphere",GEOGCS["GCS_WGS_1984"]]`,
			want: WebMercator,
		},
		{
			name: "unknown projection",
			wkt:  `PROJCS["TM65_Irish_Grid",GEOGCS["GCS_TM65"]]`,
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FromPRJ(tt.wkt))
		})
	}
}
