package custody

import "errors"

// Construction-time integrity errors.
var (
	ErrInvalidComposition = errors.New("there must be exactly 5 guardians")
	ErrInvalidAddress     = errors.New("invalid address")
	ErrDuplicateGuardian  = errors.New("duplicate guardian address")
)

// Authorization and quorum errors.
var (
	ErrUnauthorized    = errors.New("not an authorized account")
	ErrAlreadyApproved = errors.New("guardian already approved this request")
	ErrQuorumNotMet    = errors.New("not enough approvals from guardians")
	ErrNotFound        = errors.New("not found")
)

// Gate errors.
var (
	ErrPaused    = errors.New("vault is paused")
	ErrNotPaused = errors.New("vault is not paused")
)

// Accounting errors.
var (
	ErrInvalidAmount       = errors.New("amount must be greater than 0")
	ErrInsufficientBalance = errors.New("insufficient wrapped balance")
	ErrInsufficientReserve = errors.New("insufficient reserve balance")
	ErrInvalidAsset        = errors.New("invalid foreign asset")
)

// Vesting errors.
var (
	ErrTooSoon          = errors.New("release interval has not elapsed")
	ErrScheduleComplete = errors.New("all vesting tranches have been released")
)

// ErrorCode returns a stable machine-readable name for err, or "internal"
// when err does not wrap any custody sentinel.
func ErrorCode(err error) string {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrInvalidComposition, "invalid_composition"},
	{ErrInvalidAddress, "invalid_address"},
	{ErrDuplicateGuardian, "duplicate_guardian"},
	{ErrUnauthorized, "unauthorized"},
	{ErrAlreadyApproved, "already_approved"},
	{ErrQuorumNotMet, "quorum_not_met"},
	{ErrNotFound, "not_found"},
	{ErrPaused, "paused"},
	{ErrNotPaused, "not_paused"},
	{ErrInvalidAmount, "invalid_amount"},
	{ErrInsufficientBalance, "insufficient_balance"},
	{ErrInsufficientReserve, "insufficient_reserve"},
	{ErrInvalidAsset, "invalid_asset"},
	{ErrTooSoon, "too_soon"},
	{ErrScheduleComplete, "schedule_complete"},
}
