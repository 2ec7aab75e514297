package reliability

import "time"

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// IsPermanentHTTPStatus reports client errors that no retry can fix.
func IsPermanentHTTPStatus(code int) bool {
	return code >= 400 && code < 500 && code != 429 && code != 408
}

// LinearBackoff returns unit*(attempt+1). Attempts count from zero.
func LinearBackoff(attempt int, unit time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	return unit * time.Duration(attempt+1)
}

// ExponentialBackoff computes a deterministic capped backoff duration.
func ExponentialBackoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt <= 0 {
		return base
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return d
}
