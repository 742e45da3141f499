package model

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseProduct(t *testing.T) {
	testCases := []struct {
		input    string
		expected Product
		fails    bool
	}{
		{input: "trino", expected: Trino},
		{input: " Starburst ", expected: Starburst},
		{input: "TRINO", expected: Trino},
		{input: "presto", fails: true},
		{input: "", fails: true},
	}

	for _, test := range testCases {
		p, err := ParseProduct(test.input)
		if test.fails {
			var validation *ValidationError
			require.ErrorAs(t, err, &validation, test.input)
			require.Equal(t, "product", validation.Field)
			continue
		}
		require.NoError(t, err, test.input)
		require.Equal(t, test.expected, p)
	}
}

func TestFetchErrorRetryable(t *testing.T) {
	require.True(t, (&FetchError{StatusCode: 503}).Retryable())
	require.True(t, (&FetchError{StatusCode: 429}).Retryable())
	require.False(t, (&FetchError{StatusCode: 404}).Retryable())
	require.True(t, (&FetchError{StatusCode: 404}).NotFound())
	require.False(t, (&FetchError{Err: errors.New("empty body")}).Retryable())
}

func TestErrorsUnwrap(t *testing.T) {
	cause := context.DeadlineExceeded
	fetchErr := fmt.Errorf("scrape: %w", &FetchError{Product: Trino, Target: "476", Err: cause})
	require.ErrorIs(t, fetchErr, context.DeadlineExceeded)

	var target *FetchError
	require.ErrorAs(t, fetchErr, &target)
	require.Equal(t, "476", target.Target)

	rangeErr := &InvalidRangeError{
		Product: Trino,
		From:    "400",
		To:      "476",
		Err:     &UnknownVersionError{Product: Trino, Label: "400"},
	}
	var unknown *UnknownVersionError
	require.ErrorAs(t, rangeErr, &unknown)
	require.Equal(t, "400", unknown.Label)
}

func TestFragmentBreaking(t *testing.T) {
	require.True(t, ParsedFragment{SectionKind: SectionBreaking}.Breaking())
	require.True(t, ParsedFragment{BreakingHint: true}.Breaking())
	require.False(t, ParsedFragment{}.Breaking())
}

func TestParseWarningString(t *testing.T) {
	w := ParseWarning{Product: Trino, Version: "476", Section: "Hive connector", Reason: "empty list"}
	require.Equal(t, "trino 476 (Hive connector): empty list", w.String())
}
