package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const qartestPayload = `<?xml version="1.0"?>
<contactinfo>
<logger>QARTest 14.9.1</logger>
<contestname>CQ-WW-SSB</contestname>
<timestamp>2024-10-24 09:00:00</timestamp>
<mycall>XXXXXX</mycall>
<band>40</band>
<txfreq>0</txfreq>
<mode>SSB</mode>
<call>N1CALL</call>
<countryprefix>N</countryprefix>
<duplicate>True</duplicate>
</contactinfo>`

func TestParseContactRecord_QARTestPayload(t *testing.T) {
	rec, err := ParseContactRecord([]byte(qartestPayload))
	require.NoError(t, err)
	assert.Equal(t, ContactRecord{Call: "N1CALL", Band: "40"}, rec)
}

func TestParseContactRecord_MinimalPayload(t *testing.T) {
	rec, err := ParseContactRecord([]byte(`<contactinfo><call> IS0GVH </call><band>20m</band></contactinfo>`))
	require.NoError(t, err)
	assert.Equal(t, "IS0GVH", rec.Call)
	assert.Equal(t, "20m", rec.Band)
}

func TestParseContactRecord_EmptyBandAccepted(t *testing.T) {
	rec, err := ParseContactRecord([]byte(`<contactinfo><call>K1ABC</call><band></band></contactinfo>`))
	require.NoError(t, err)
	assert.Empty(t, rec.Band)
}

func TestParseContactRecord_TrailingWhitespaceAndCommentsAccepted(t *testing.T) {
	payload := "<contactinfo><call>K1ABC</call><band>20</band></contactinfo>\n<!-- sent by logger -->\n"
	rec, err := ParseContactRecord([]byte(payload))
	require.NoError(t, err)
	assert.Equal(t, ContactRecord{Call: "K1ABC", Band: "20"}, rec)
}

func TestParseContactRecord_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		detail  string
	}{
		{name: "empty", payload: "", detail: "empty payload"},
		{name: "whitespace", payload: "  \n", detail: "empty payload"},
		{name: "not xml", payload: "hello", detail: ""},
		{name: "wrong root", payload: `<qso><call>K1ABC</call><band>20</band></qso>`, detail: "contactinfo"},
		{name: "missing call", payload: `<contactinfo><band>20</band></contactinfo>`, detail: "call"},
		{name: "blank call", payload: `<contactinfo><call>  </call><band>20</band></contactinfo>`, detail: "call"},
		{name: "missing band", payload: `<contactinfo><call>K1ABC</call></contactinfo>`, detail: "band"},
		{name: "truncated", payload: `<contactinfo><call>K1ABC`, detail: ""},
		{name: "trailing garbage", payload: `<contactinfo><call>K1ABC</call><band>20</band></contactinfo><garbage`, detail: ""},
		{name: "trailing text", payload: `<contactinfo><call>K1ABC</call><band>20</band></contactinfo>junk`, detail: "trailing content"},
		{name: "two records", payload: `<contactinfo><call>K1ABC</call><band>20</band></contactinfo><contactinfo><call>K2XYZ</call><band>40</band></contactinfo>`, detail: "trailing content"},
		{name: "repeated call", payload: `<contactinfo><call>K1ABC</call><call>K2XYZ</call><band>20</band></contactinfo>`, detail: "call"},
		{name: "repeated band", payload: `<contactinfo><call>K1ABC</call><band>20</band><band>40</band></contactinfo>`, detail: "band"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseContactRecord([]byte(tt.payload))
			require.ErrorIs(t, err, ErrMalformedContact)
			if tt.detail != "" {
				assert.Contains(t, err.Error(), tt.detail)
			}
		})
	}
}

func TestEnrichedContact_UnknownLocation(t *testing.T) {
	assert.True(t, EnrichedContact{Call: "K1ABC"}.UnknownLocation())
	assert.False(t, EnrichedContact{Call: "K1ABC", Latitude: 1}.UnknownLocation())
	assert.False(t, EnrichedContact{Call: "K1ABC", Longitude: -1}.UnknownLocation())
}

func TestEnrichedContact_String(t *testing.T) {
	c := EnrichedContact{Call: "IS0GVH", Band: "20m", Latitude: 39.123456, Longitude: 9.654321}
	assert.Equal(t, "IS0GVH (20m) [39.123456 9.654321]", c.String())
}
