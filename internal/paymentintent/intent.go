package paymentintent

// IntentState is the gateway's view of a payment intent.
type IntentState string

const (
	IntentRequiresPaymentMethod IntentState = "requires_payment_method"
	IntentRequiresConfirmation  IntentState = "requires_confirmation"
	IntentRequiresAction        IntentState = "requires_action"
	IntentProcessing            IntentState = "processing"
	IntentRequiresCapture       IntentState = "requires_capture"
	IntentCanceled              IntentState = "canceled"
	IntentSucceeded             IntentState = "succeeded"
)

// Paid reports whether the funds are secured for the merchant.
func (s IntentState) Paid() bool {
	return s == IntentSucceeded || s == IntentRequiresCapture
}

// Intent is a payment intent freshly created at the gateway.
type Intent struct {
	ID           string
	ClientSecret string
}

type IntentStatusRequest struct {
	IntentID string `json:"intent_id"`
}

type IntentStatusResponse struct {
	IntentID string      `json:"intent_id"`
	State    IntentState `json:"state"`
	Amount   int64       `json:"amount"`
	// DeclineCode and DeclineMessage describe the last failed payment on the intent, if any.
	DeclineCode    string `json:"decline_code,omitempty"`
	DeclineMessage string `json:"decline_message,omitempty"`
}
