package plan

import (
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DefaultWarningPercent is the usage share at which a category is "near" its limit.
const DefaultWarningPercent = 80

var frPrinter = message.NewPrinter(language.French)

func IsUnlimited(limit int64) bool {
	return limit == Unlimited
}

// FormatLimit renders a limit for end users, with French digit grouping.
func FormatLimit(limit int64) string {
	if IsUnlimited(limit) {
		return "Illimité"
	}
	return frPrinter.Sprintf("%d", limit)
}

// UsagePercent returns current/limit as a rounded percentage clamped to [0, 100].
// Unlimited limits always report 0.
func UsagePercent(current, limit int64) int {
	if IsUnlimited(limit) {
		return 0
	}
	if limit <= 0 {
		if current > 0 {
			return 100
		}
		return 0
	}
	pct := math.Round(float64(current) * 100 / float64(limit))
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	}
	return int(pct)
}

func IsNearLimit(current, limit int64) bool {
	return IsNearLimitAt(current, limit, DefaultWarningPercent)
}

// IsNearLimitAt reports whether usage reached threshold percent of limit.
func IsNearLimitAt(current, limit int64, threshold int) bool {
	if IsUnlimited(limit) || limit <= 0 {
		return false
	}
	return current*100 >= int64(threshold)*limit
}

func IsLimitReached(current, limit int64) bool {
	if IsUnlimited(limit) {
		return false
	}
	return current >= limit
}

// Remaining returns what is left under limit, or Unlimited.
func Remaining(current, limit int64) int64 {
	if IsUnlimited(limit) {
		return Unlimited
	}
	if current >= limit {
		return 0
	}
	return limit - current
}
