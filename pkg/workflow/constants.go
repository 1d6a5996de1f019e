package workflow

const (
	actionCreate     = "create"
	actionUpdate     = "update"
	actionApprove    = "approve"
	actionReject     = "reject"
	actionUndo       = "undo_rejection"
	actionRemove     = "remove"
	actionComplete   = "complete"
	actionCancel     = "cancel"
	actionSubmit     = "submit"
	actionResubmit   = "resubmit"
	actionConfirm    = "confirm"
	actionAttendance = "record_attendance"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	membershipGrantReason = "club member approved"
	eventGrantReason      = "event completed: %s"
	attendeeGrantReason   = "attended event: %s"
	taskGrantReason       = "task approved: %s"
	reportGrantReason     = "monthly report approved: %02d/%d"
	sessionGrantReason    = "session hosted: %s"
	sessionAttendeeReason = "attended session: %s"
)
