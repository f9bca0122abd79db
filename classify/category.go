package classify

// Category is the classifier's judgement about what kind of failure occurred.
type Category int

const (
	CategoryOther Category = iota
	CategoryRateLimited
	CategoryServiceUnavailable
	CategoryGatewayTimeout
	CategoryInternalError
	CategoryDailyQuotaExhausted
)

func (c Category) String() string {
	switch c {
	case CategoryRateLimited:
		return "rate_limited"
	case CategoryServiceUnavailable:
		return "service_unavailable"
	case CategoryGatewayTimeout:
		return "gateway_timeout"
	case CategoryInternalError:
		return "internal_error"
	case CategoryDailyQuotaExhausted:
		return "daily_quota_exhausted"
	default:
		return "other"
	}
}

// Label is the short human-readable name used in status lines.
func (c Category) Label() string {
	switch c {
	case CategoryRateLimited:
		return "Rate limited"
	case CategoryServiceUnavailable:
		return "Service unavailable"
	case CategoryGatewayTimeout:
		return "Gateway timeout"
	case CategoryInternalError:
		return "Internal server error"
	case CategoryDailyQuotaExhausted:
		return "Daily quota exhausted"
	default:
		return "API error"
	}
}

// Transient reports whether failures of this category are retryable by default.
func (c Category) Transient() bool {
	switch c {
	case CategoryRateLimited, CategoryServiceUnavailable, CategoryGatewayTimeout, CategoryInternalError:
		return true
	default:
		return false
	}
}

// CategoryForStatus maps an HTTP-like status to a category. A 429 is reported
// as RateLimited here; the daily quota distinction needs the error body.
func CategoryForStatus(status int) Category {
	switch status {
	case 429:
		return CategoryRateLimited
	case 503:
		return CategoryServiceUnavailable
	case 504:
		return CategoryGatewayTimeout
	case 500:
		return CategoryInternalError
	default:
		return CategoryOther
	}
}
