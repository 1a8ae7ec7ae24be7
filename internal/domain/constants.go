package domain

const (
	RoleInvestor = "INVESTOR"
	RoleAdmin    = "ADMIN"
)

// Ledger movement types. Profit types land in the earnings bucket.
const (
	TxTypeDeposit           = "deposit"
	TxTypeWithdrawal        = "withdrawal"
	TxTypeWithdrawalHold    = "withdrawal_hold"
	TxTypeWithdrawalRelease = "withdrawal_release"
	TxTypeLock              = "lock"
	TxTypeUnlock            = "unlock"
	TxTypePurchase          = "purchase"
	TxTypeProfit            = "profit"
	TxTypeCompoundedProfit  = "compounded_profit"
	TxTypePrincipalReturn   = "principal_return"
	TxTypeExitRefund        = "exit_refund"
	TxTypeAdjustment        = "adjustment"
)

// IsProfitType reports whether a credit of this type belongs to earnings.
func IsProfitType(t string) bool {
	return t == TxTypeProfit || t == TxTypeCompoundedProfit
}

const (
	TxStatusPending   = "pending"
	TxStatusCompleted = "completed"
)

const (
	WithdrawalPending  = "PENDING"
	WithdrawalApproved = "APPROVED"
	WithdrawalRejected = "REJECTED"
)

const (
	PaymentPending   = "PENDING"
	PaymentCompleted = "COMPLETED"
	PaymentFailed    = "FAILED"
)

// Notification types emitted by the engine.
const (
	NotifyPurchaseSubmitted = "PURCHASE_SUBMITTED"
	NotifyUnitApproved      = "UNIT_APPROVED"
	NotifyUnitRejected      = "UNIT_REJECTED"
	NotifyCycleStarted      = "CYCLE_STARTED"
	NotifyProfitCredited    = "PROFIT_CREDITED"
	NotifyUnitMatured       = "UNIT_MATURED"
	NotifyUnitExited        = "UNIT_EXITED"
	NotifyExitWindowOpened  = "EXIT_WINDOW_OPENED"
	NotifyDepositConfirmed  = "DEPOSIT_CONFIRMED"
	NotifyWithdrawalDecided = "WITHDRAWAL_DECIDED"
)

// DefaultClusterCapacity is the fixed number of units pooled in one cluster.
const DefaultClusterCapacity = 10
