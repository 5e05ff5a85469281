package clock

import "time"

// NowFunc returns current time. Override in tests for determinism.
var NowFunc = time.Now

// Now is a thin wrapper around NowFunc.
func Now() time.Time { return NowFunc() }

// Since returns the time elapsed since t measured with NowFunc. A nil t
// yields zero so that callers can pass optional timestamps directly.
func Since(t *time.Time) time.Duration {
	if t == nil {
		return 0
	}
	return NowFunc().Sub(*t)
}

// Ptr returns the address of the current time, used for optional timestamp fields.
func Ptr() *time.Time {
	now := NowFunc()
	return &now
}
