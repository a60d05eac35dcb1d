package invoice

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPadCounterZeroPadsToSixDigits(t *testing.T) {
	require.Equal(t, "000001", padCounter(1))
	require.Equal(t, "004211", padCounter(4211))
	require.Equal(t, "999999", padCounter(999999))
}

func TestPadCounterGrowsPastSixDigits(t *testing.T) {
	require.Equal(t, "1000000", padCounter(1000000))
	require.Equal(t, "1234567890", padCounter(1234567890))
}

func TestFormatNumberCarriesYearPrefix(t *testing.T) {
	want := time.Now().UTC().Format("INV-2006-") + "000042"
	require.Equal(t, want, formatNumber(42))
}
