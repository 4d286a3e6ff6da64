package signal

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewValidSignal(t *testing.T) {
	s, err := New("BTC/USDT", Buy, 0.5)
	require.NoError(t, err)
	require.NotEmpty(t, s.ID)
	require.Equal(t, "BTC/USDT", s.Pair)
	require.Equal(t, Buy, s.Action)
}

func TestNewRejectsInvalid(t *testing.T) {
	_, err := New("", Buy, 1)
	require.Error(t, err)

	_, err = New("BTC/USDT", Action("hold"), 1)
	require.Error(t, err)

	_, err = New("BTC/USDT", Sell, 0)
	require.Error(t, err)

	_, err = New("BTC/USDT", Sell, -1)
	require.Error(t, err)
}

func TestValidateConfidenceBounds(t *testing.T) {
	s, err := New("ETH/USDT", Buy, 1)
	require.NoError(t, err)

	s.Confidence = 1.5
	require.Error(t, s.Validate())

	s.Confidence = 0.8
	require.NoError(t, s.Validate())
}

func TestTakeProfitVariants(t *testing.T) {
	single := SingleTarget(105.0)
	require.False(t, single.IsScaled())
	require.Equal(t, 105.0, single.Single())
	require.Equal(t, []float64{105.0}, single.Levels())

	scaled := ScaledTargets([]float64{105, 110, 120})
	require.True(t, scaled.IsScaled())
	require.Len(t, scaled.Scaled(), 3)
	require.Equal(t, []float64{105, 110, 120}, scaled.Levels())

	var nilTP *TakeProfit
	require.False(t, nilTP.IsScaled())
	require.Nil(t, nilTP.Levels())
	require.Equal(t, "none", nilTP.String())
}

func TestValidateScaledAmounts(t *testing.T) {
	require.NoError(t, ValidateScaledAmounts([]float64{0.5, 0.3, 0.2}))
	require.NoError(t, ValidateScaledAmounts([]float64{0.5, 0.3}))
	require.Error(t, ValidateScaledAmounts([]float64{0.6, 0.5}))
	require.Error(t, ValidateScaledAmounts([]float64{0.5, -0.1}))
}

func TestFilterDropsInvalid(t *testing.T) {
	good, err := New("BTC/USDT", Buy, 1)
	require.NoError(t, err)

	bad := &Signal{Pair: "ETH/USDT", Action: Buy, Amount: -5}

	rejected := 0
	valid := Filter([]*Signal{good, bad}, func(s *Signal, err error) {
		rejected++
		require.Equal(t, "ETH/USDT", s.Pair)
	})
	require.Len(t, valid, 1)
	require.Equal(t, 1, rejected)
	require.Equal(t, good.ID, valid[0].ID)
}
