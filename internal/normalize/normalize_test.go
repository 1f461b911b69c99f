package normalize_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timelock-wallet/tlw/internal/normalize"
	"github.com/timelock-wallet/tlw/pkg/errclass"
	"github.com/timelock-wallet/tlw/pkg/model"
)

var (
	now    = time.Unix(1_700_000_000, 0)
	policy = normalize.StaticPolicy{
		model.AssetNative: decimal.RequireFromString("0.001"),
		model.AssetToken:  decimal.NewFromInt(1),
	}
)

func req(amount string, asset model.Asset, mag int64, unit model.DurationUnit) normalize.Request {
	return normalize.Request{Amount: decimal.RequireFromString(amount), Asset: asset, Magnitude: mag, Unit: unit}
}

func TestNormalize_UnitArithmetic(t *testing.T) {
	tests := []struct {
		mag  int64
		unit model.DurationUnit
		want int64
	}{
		{1, model.UnitHours, 3600},
		{2, model.UnitDays, 172800},
		{5, model.UnitMinutes, 300},
		{1, model.UnitWeeks, 604800},
		{1, model.UnitMonths, 30 * 86400},
	}
	for _, tt := range tests {
		t.Run(string(tt.unit), func(t *testing.T) {
			ts, err := normalize.Normalize(req("1", model.AssetNative, tt.mag, tt.unit), policy, now)
			require.NoError(t, err)
			assert.Equal(t, now.Unix()+tt.want, ts)
		})
	}
}

func TestNormalize_Rejections(t *testing.T) {
	tests := []struct {
		name string
		r    normalize.Request
		msg  string
	}{
		{"zero amount", req("0", model.AssetNative, 1, model.UnitDays), "greater than zero"},
		{"negative amount", req("-2", model.AssetToken, 1, model.UnitDays), "greater than zero"},
		{"below native minimum", req("0.0001", model.AssetNative, 1, model.UnitDays), "minimum amount is 0.001 SOL"},
		{"below token minimum", req("0.5", model.AssetToken, 1, model.UnitDays), "minimum amount is 1 USDC"},
		{"zero duration", req("1", model.AssetNative, 0, model.UnitDays), "positive whole number"},
		{"negative duration", req("1", model.AssetNative, -3, model.UnitHours), "positive whole number"},
		{"unknown unit", req("1", model.AssetNative, 1, "fortnights"), "unsupported duration unit"},
		{"unknown asset", req("1", "btc", 1, model.UnitDays), "unsupported asset"},
		{"overflow", req("1", model.AssetNative, 1<<62, model.UnitMonths), "too long"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := normalize.Normalize(tt.r, policy, now)
			require.ErrorIs(t, err, errclass.ErrInvalidInput)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestNormalize_MinimumIsPerAsset(t *testing.T) {
	// 0.5 clears the native floor but not the token floor.
	_, err := normalize.Normalize(req("0.5", model.AssetNative, 1, model.UnitDays), policy, now)
	assert.NoError(t, err)
	_, err = normalize.Normalize(req("0.5", model.AssetToken, 1, model.UnitDays), policy, now)
	assert.ErrorIs(t, err, errclass.ErrInvalidInput)

	// Exactly the minimum is allowed.
	_, err = normalize.Normalize(req("0.001", model.AssetNative, 1, model.UnitDays), policy, now)
	assert.NoError(t, err)
}

func TestNormalize_MissingPolicy(t *testing.T) {
	_, err := normalize.Normalize(req("5", model.AssetToken, 1, model.UnitDays), normalize.StaticPolicy{}, now)
	assert.ErrorIs(t, err, errclass.ErrInvalidInput)
}

func TestParseRequest(t *testing.T) {
	r, err := normalize.ParseRequest(" 0.5 ", "SOL", "1", "day")
	require.NoError(t, err)
	assert.True(t, r.Amount.Equal(decimal.RequireFromString("0.5")))
	assert.Equal(t, model.AssetNative, r.Asset)
	assert.Equal(t, int64(1), r.Magnitude)
	assert.Equal(t, model.UnitDays, r.Unit)

	bad := [][4]string{
		{"abc", "sol", "1", "days"},
		{"1", "doge", "1", "days"},
		{"1", "sol", "1.5", "days"},
		{"1", "sol", "", "days"},
		{"1", "sol", "1", "eons"},
	}
	for _, b := range bad {
		_, err := normalize.ParseRequest(b[0], b[1], b[2], b[3])
		assert.ErrorIs(t, err, errclass.ErrInvalidInput, b)
	}
}
