package model

import (
	"fmt"
	"strings"
)

// Asset is the kind of fungible asset a lock holds.
type Asset string

const (
	AssetNative Asset = "native"
	AssetToken  Asset = "token"
)

// Assets lists every supported asset in display order.
var Assets = []Asset{AssetNative, AssetToken}

// ParseAsset accepts the asset name or its ticker symbol, case-insensitively.
func ParseAsset(s string) (Asset, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "native", "sol":
		return AssetNative, nil
	case "token", "usdc":
		return AssetToken, nil
	}
	return "", fmt.Errorf("unknown asset %q (want native|sol|token|usdc)", s)
}

// Symbol returns the ticker shown to users.
func (a Asset) Symbol() string {
	switch a {
	case AssetNative:
		return "SOL"
	case AssetToken:
		return "USDC"
	}
	return strings.ToUpper(string(a))
}

// Valid reports whether a is one of the supported assets.
func (a Asset) Valid() bool {
	return a == AssetNative || a == AssetToken
}

// DurationUnit is the unit a lock duration is entered in.
type DurationUnit string

const (
	UnitMinutes DurationUnit = "minutes"
	UnitHours   DurationUnit = "hours"
	UnitDays    DurationUnit = "days"
	UnitWeeks   DurationUnit = "weeks"
	UnitMonths  DurationUnit = "months"
)

// Unit lengths in seconds. A month is a flat 30 days; no calendar arithmetic
// is done, so "1 month" from Jan 31 lands on Mar 2 (or Mar 1 in leap years).
const (
	SecondsPerMinute int64 = 60
	SecondsPerHour   int64 = 3600
	SecondsPerDay    int64 = 86400
	SecondsPerWeek   int64 = 7 * SecondsPerDay
	SecondsPerMonth  int64 = 30 * SecondsPerDay
)

// ParseDurationUnit accepts plural, singular and short forms ("d", "day", "days").
func ParseDurationUnit(s string) (DurationUnit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "m", "min", "mins", "minute", "minutes":
		return UnitMinutes, nil
	case "h", "hr", "hrs", "hour", "hours":
		return UnitHours, nil
	case "d", "day", "days":
		return UnitDays, nil
	case "w", "wk", "week", "weeks":
		return UnitWeeks, nil
	case "mo", "month", "months":
		return UnitMonths, nil
	}
	return "", fmt.Errorf("unknown duration unit %q (want minutes|hours|days|weeks|months)", s)
}

// Seconds returns the length of one unit, or 0 for an unknown unit.
func (u DurationUnit) Seconds() int64 {
	switch u {
	case UnitMinutes:
		return SecondsPerMinute
	case UnitHours:
		return SecondsPerHour
	case UnitDays:
		return SecondsPerDay
	case UnitWeeks:
		return SecondsPerWeek
	case UnitMonths:
		return SecondsPerMonth
	}
	return 0
}
