package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doeshing/cmdai-go/internal/domain"
)

func TestParseFormat(t *testing.T) {
	cases := []struct {
		flag       string
		configured string
		want       domain.OutputFormat
	}{
		{"", "", domain.OutputText},
		{"text", "", domain.OutputText},
		{"json", "", domain.OutputJSON},
		{"JSON", "", domain.OutputJSON},
		{"yaml", "", domain.OutputYAML},
		{"yml", "", domain.OutputYAML},
		{"", "json", domain.OutputJSON},
		{"text", "json", domain.OutputText}, // flag wins over config
		{"", "bogus", domain.OutputText},    // bad config value degrades quietly
	}
	for _, tc := range cases {
		got, err := parseFormat(tc.flag, tc.configured)
		require.NoError(t, err, "flag=%q configured=%q", tc.flag, tc.configured)
		assert.Equal(t, tc.want, got, "flag=%q configured=%q", tc.flag, tc.configured)
	}
}

func TestParseFormatRejectsUnknownFlag(t *testing.T) {
	_, err := parseFormat("xml", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown output format")
}

func TestSpinnerNilSafe(t *testing.T) {
	var s *Spinner
	s.Start()
	s.Stop()
}
