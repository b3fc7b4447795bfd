package utils

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestShortAddress(t *testing.T) {
	require.Equal(t, "0xd8da6b...96045a",
		ShortAddress("0xd8da6bf26964af9d7eed9e03e53415d37aa96045a"))
	require.Equal(t, "short", ShortAddress("short"))
	require.Equal(t, "", ShortAddress(""))
}

func TestFormatUnits(t *testing.T) {
	require.Equal(t, "2", FormatUnits("2000000000000000000", 18))
	require.Equal(t, "1.5", FormatUnits("1500000000000000000", 18))
	require.Equal(t, "250.5", FormatUnits("250500000", 6))
	require.Equal(t, "0.000001", FormatUnits("1", 6))
	require.Equal(t, "0", FormatUnits("0", 18))
	require.Equal(t, "12345", FormatUnits("12345", 0))
	require.Equal(t, "0", FormatUnits("not-a-number", 18))
}
