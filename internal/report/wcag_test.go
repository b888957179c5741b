package report

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormatWCAG(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{in: "wcag143", want: "1.4.3"},
		{in: "wcag111", want: "1.1.1"},
		{in: "wcag1410", want: "1.4.10"},
		{in: "best-practice", want: "best-practice"},
		{in: "wcag2aa", want: "wcag2aa"},
		{in: "WCAG143", want: "WCAG143"},
		{in: "", want: ""},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, FormatWCAG(tc.in), "input %q", tc.in)
	}
}
