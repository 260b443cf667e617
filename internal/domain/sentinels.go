package domain

import "errors"

// Sentinel causes wrapped by classified *Error values. Kept distinct from
// ErrorKind so callers can still errors.Is a specific cause when they need
// to, while branching logic uses the coarser Kind.
var (
	errEmptyName             = errors.New("name must not be empty")
	errEmptyChains            = errors.New("target_chains must not be empty")
	errEmptyProtocols         = errors.New("target_protocols must not be empty")
	errNonPositiveAllocation  = errors.New("max_allocation_usd must be positive")
	errIntervalTooShort       = errors.New("execution_interval_minutes must be >= 1")
	errRiskLevelOutOfRange    = errors.New("risk_level must be in 1..=10")
	errAllocationExceedsMax   = errors.New("allocated_capital exceeds config.max_allocation_usd")
	errActiveWithoutSchedule  = errors.New("active strategy must have positive capital and a next_execution")
	errHistoryOverflow        = errors.New("execution_history exceeds HistoryLimit")
	errOpportunityWindow      = errors.New("opportunity expires_at must be after discovered_at")
	errNonFiniteValue         = errors.New("value must be finite (NaN/Inf rejected at boundary)")
)
