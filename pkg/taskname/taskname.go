package taskname

const (
	// Withdrawal tasks
	WithdrawalCreated = "withdrawal:created"
	WithdrawalSettle  = "withdrawal:settle"

	// Ledger tasks
	LedgerVerifyChain = "ledger:verify_chain"
)

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)
