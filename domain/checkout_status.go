package domain

type CheckoutStatus string

const (
	CheckoutStatusIdle                 CheckoutStatus = "IDLE"
	CheckoutStatusValidatingForm       CheckoutStatus = "VALIDATING_FORM"
	CheckoutStatusAwaitingIntent       CheckoutStatus = "AWAITING_INTENT"
	CheckoutStatusAwaitingConfirmation CheckoutStatus = "AWAITING_CONFIRMATION"
	CheckoutStatusMaterializing        CheckoutStatus = "MATERIALIZING"
	CheckoutStatusCompleted            CheckoutStatus = "COMPLETED"
	CheckoutStatusFailed               CheckoutStatus = "FAILED"
)

func (s CheckoutStatus) IsTerminal() bool {
	return s == CheckoutStatusCompleted || s == CheckoutStatusFailed
}

// String representation (for logging)
func (s CheckoutStatus) String() string {
	return string(s)
}

// FailureReason qualifies a FAILED attempt.
type FailureReason string

const (
	FailureNone            FailureReason = ""
	FailureValidation      FailureReason = "VALIDATION_ERROR"
	FailurePaymentSetup    FailureReason = "PAYMENT_SETUP_ERROR"
	FailurePaymentDeclined FailureReason = "PAYMENT_DECLINED"
	FailureMaterialization FailureReason = "MATERIALIZATION_ERROR"
)

var transitions = map[CheckoutStatus][]CheckoutStatus{
	CheckoutStatusIdle:                 {CheckoutStatusValidatingForm},
	CheckoutStatusValidatingForm:       {CheckoutStatusAwaitingIntent},
	CheckoutStatusAwaitingIntent:       {CheckoutStatusAwaitingConfirmation},
	CheckoutStatusAwaitingConfirmation: {CheckoutStatusMaterializing},
	CheckoutStatusMaterializing:        {CheckoutStatusCompleted, CheckoutStatusMaterializing},
}

// CanTransitionTo reports whether the state machine allows moving from one status to another.
// FAILED is reachable from every non-terminal status. Leaving FAILED is only possible
// through CanReconcile.
func CanTransitionTo(from, to CheckoutStatus) bool {
	if from.IsTerminal() {
		return false
	}
	if to == CheckoutStatusFailed {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CanReconcile reports whether materialization may be (re)run for an attempt:
// either it is stuck mid-materialization or a previous run failed after payment capture.
func CanReconcile(status CheckoutStatus, reason FailureReason) bool {
	if status == CheckoutStatusMaterializing {
		return true
	}
	return status == CheckoutStatusFailed && reason == FailureMaterialization
}

// CanRetryIntent reports whether a FAILED attempt may go back to AWAITING_INTENT.
// Only attempts that never obtained an intent qualify.
func CanRetryIntent(status CheckoutStatus, reason FailureReason) bool {
	return status == CheckoutStatusFailed && reason == FailurePaymentSetup
}
