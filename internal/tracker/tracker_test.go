package tracker

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFormatDuration(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   time.Duration
		want string
	}{
		{in: 0, want: "0s"},
		{in: 42 * time.Second, want: "42s"},
		{in: 2*time.Minute + 5*time.Second, want: "2m 5s"},
		{in: time.Hour + 2*time.Minute + 3*time.Second, want: "1h 2m 3s"},
		{in: time.Hour + 4*time.Second, want: "1h 0m 4s"},
		{in: 1500 * time.Millisecond, want: "2s"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, FormatDuration(tc.in), "duration %v", tc.in)
	}
}

func TestStageErrorUnwraps(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("canonicalize: %w", ErrReportMissing)
	stageErr := &StageError{Stage: StageCanonicalizeFailed, Site: "Example", Err: err}

	require.ErrorIs(t, stageErr, ErrReportMissing)
	require.Contains(t, stageErr.Error(), "Example")
	require.Contains(t, stageErr.Error(), string(StageCanonicalizeFailed))

	var target *StageError
	require.True(t, errors.As(fmt.Errorf("wrapped: %w", stageErr), &target))
	require.Equal(t, StageCanonicalizeFailed, target.Stage)
}

func TestStageClassification(t *testing.T) {
	t.Parallel()

	require.True(t, StageScanFailed.Failed())
	require.True(t, StagePublished.Terminal())
	require.False(t, StagePublished.Failed())
	require.False(t, StageScanning.Terminal())
}

func TestRunResultReason(t *testing.T) {
	t.Parallel()

	require.Empty(t, RunResult{}.Reason())
	require.Equal(t, "scan failed", RunResult{Err: ErrScanFailed}.Reason())
}

func TestSpreadsheetURL(t *testing.T) {
	t.Parallel()

	require.Empty(t, SpreadsheetURL(""))
	require.Equal(t, "https://docs.google.com/spreadsheets/d/abc/edit", SpreadsheetURL("abc"))
}
