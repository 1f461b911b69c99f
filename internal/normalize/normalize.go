// Package normalize turns a user-entered amount and duration into an absolute
// unlock timestamp and enforces the per-asset minimum policy.
package normalize

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/timelock-wallet/tlw/pkg/errclass"
	"github.com/timelock-wallet/tlw/pkg/model"
)

// Request is a validated-shape lock request. Amount may still be below policy.
type Request struct {
	Amount    decimal.Decimal
	Asset     model.Asset
	Magnitude int64
	Unit      model.DurationUnit
}

// Policy supplies the minimum lockable amount per asset.
type Policy interface {
	MinimumAmount(asset model.Asset) (decimal.Decimal, bool)
}

// StaticPolicy is a fixed minimum table.
type StaticPolicy map[model.Asset]decimal.Decimal

// MinimumAmount implements Policy.
func (p StaticPolicy) MinimumAmount(asset model.Asset) (decimal.Decimal, bool) {
	d, ok := p[asset]
	return d, ok
}

// Normalize validates req against policy and returns the unlock timestamp
// now + Magnitude*Unit.Seconds(). Months are a flat 30 days.
func Normalize(req Request, policy Policy, now time.Time) (int64, error) {
	if !req.Asset.Valid() {
		return 0, errclass.ErrInvalidInput.WithMessagef("unsupported asset %q", req.Asset)
	}
	if !req.Amount.IsPositive() {
		return 0, errclass.ErrInvalidInput.WithMessage("amount must be greater than zero")
	}
	floor, ok := policy.MinimumAmount(req.Asset)
	if !ok {
		return 0, errclass.ErrInvalidInput.WithMessagef("no minimum configured for %s", req.Asset.Symbol())
	}
	if req.Amount.LessThan(floor) {
		return 0, errclass.ErrInvalidInput.WithMessagef("minimum amount is %s %s", floor.String(), req.Asset.Symbol())
	}
	if req.Magnitude <= 0 {
		return 0, errclass.ErrInvalidInput.WithMessage("duration must be a positive whole number")
	}
	unit := req.Unit.Seconds()
	if unit == 0 {
		return 0, errclass.ErrInvalidInput.WithMessagef("unsupported duration unit %q", req.Unit)
	}
	if req.Magnitude > (math.MaxInt64-now.Unix())/unit {
		return 0, errclass.ErrInvalidInput.WithMessage("duration is too long")
	}
	return now.Unix() + req.Magnitude*unit, nil
}

// ParseRequest converts raw form fields into a Request. It only checks that
// the fields are well formed; policy is applied by Normalize.
func ParseRequest(amount, asset, magnitude, unit string) (Request, error) {
	amt, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return Request{}, errclass.ErrInvalidInput.WithMessagef("amount %q is not a number", amount)
	}
	a, err := model.ParseAsset(asset)
	if err != nil {
		return Request{}, errclass.ErrInvalidInput.WithMessage(err.Error())
	}
	mag, err := strconv.ParseInt(strings.TrimSpace(magnitude), 10, 64)
	if err != nil {
		return Request{}, errclass.ErrInvalidInput.WithMessagef("duration %q is not a whole number", magnitude)
	}
	u, err := model.ParseDurationUnit(unit)
	if err != nil {
		return Request{}, errclass.ErrInvalidInput.WithMessage(err.Error())
	}
	return Request{Amount: amt, Asset: a, Magnitude: mag, Unit: u}, nil
}
