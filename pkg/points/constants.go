package points

const (
	operationAppend  = "append"
	operationGrant   = "grant"
	operationCorrect = "correct"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	// ManualAmountMin and ManualAmountMax bound manually granted entries.
	ManualAmountMin int64 = 1
	ManualAmountMax int64 = 100

	correctionReasonFormat = "correction of %s: %s"
)
