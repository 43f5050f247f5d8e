package txpipe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatAmount(t *testing.T) {
	cases := []struct {
		name    string
		asset   string
		raw     string
		micro   bool
		style   formatStyle
		want    string
		wantErr string
	}{
		{name: "ust display", asset: "ust", raw: "1234.5678", style: styleDisplay, want: "1,234.568 UST"},
		{name: "ust input", asset: "UST", raw: "1234.5678", style: styleInput, want: "1234.568 UST"},
		{name: "luna micro", asset: "uluna", raw: "5000000", micro: true, style: styleDisplay, want: "5.000000 LUNA"},
		{name: "bluna micro", asset: "ubluna", raw: "4800000", micro: true, style: styleDisplay, want: "4.800000 bLUNA"},
		{name: "luna postfix", asset: "luna", raw: "2500000", style: stylePostfix, want: "2.500M LUNA"},
		{name: "ust postfix", asset: "ust", raw: "2500000", style: stylePostfix, want: "2.50M UST"},
		{name: "anc fluid", asset: "anc", raw: "0.00000012", style: styleFluid, want: "0.0000001 ANC"},
		{name: "malformed", asset: "ust", raw: "abc", style: styleDisplay, wantErr: "invalid amount"},
		{name: "negative", asset: "ust", raw: "-1", style: styleDisplay, wantErr: "negative amount"},
		{name: "unknown asset", asset: "btc", raw: "1", style: styleDisplay, wantErr: "unknown asset"},
		{name: "unknown style", asset: "ust", raw: "1", style: "fancy", wantErr: "unknown style"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := formatAmount(tc.asset, tc.raw, tc.micro, tc.style)
			if tc.wantErr != "" {
				assert.ErrorContains(t, err, tc.wantErr)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
