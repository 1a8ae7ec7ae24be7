package domain

import "errors"

var (
	ErrWalletNotFound     = errors.New("wallet not found")
	ErrUnitNotFound       = errors.New("investment unit not found")
	ErrClusterNotFound    = errors.New("cluster not found")
	ErrCycleNotFound      = errors.New("cycle not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrCommodityNotFound  = errors.New("commodity not found")
	ErrWithdrawalNotFound = errors.New("withdrawal not found")

	ErrInvalidAmount                        = errors.New("amount must be greater than zero")
	ErrInsufficientBalance                  = errors.New("insufficient wallet balance")
	ErrInsufficientLockedBalance            = errors.New("insufficient locked balance")
	ErrInsufficientPendingWithdrawalBalance = errors.New("insufficient pending withdrawal balance")
	ErrNegativeBalance                      = errors.New("balance would become negative")

	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrKYCRequired            = errors.New("kyc verification required")
	ErrRejectReasonRequired   = errors.New("rejection reason required")
	ErrInvalidProfitMode      = errors.New("invalid profit mode")
	ErrInvalidCycleStartMode  = errors.New("invalid cycle start mode")
	ErrMissingReference       = errors.New("provider reference required")

	ErrWindowNotOpen = errors.New("exit window not open yet")
	ErrWindowClosed  = errors.New("exit window closed")
	ErrWrongPhase    = errors.New("early exit only allowed in extended phase")

	ErrMissingCycleRecord = errors.New("missing running cycle record")
	ErrStaleCycle         = errors.New("cycle already processed")
	ErrCycleNotDue        = errors.New("cycle has not reached maturity")
	ErrClusterNotFull     = errors.New("cluster not filled to capacity")
	ErrClusterFull        = errors.New("cluster at capacity")

	ErrTransactionUnsupported = errors.New("transactions not supported by store")
	ErrConcurrentUpdate       = errors.New("concurrent wallet update")

	ErrInvalidPenaltyTable = errors.New("exit penalty table must be non-increasing with rates in [0,1]")
	ErrInvalidSettings     = errors.New("invalid economic settings")
)
