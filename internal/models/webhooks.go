package models

// RevenueCat event types
const (
	EventInitialPurchase = "INITIAL_PURCHASE"
	EventRenewal         = "RENEWAL"
	EventCancellation    = "CANCELLATION"
	EventExpiration      = "EXPIRATION"
	EventBillingIssue    = "BILLING_ISSUE"
	EventProductChange   = "PRODUCT_CHANGE"
	EventTest            = "TEST"
)

type RevenueCatWebhookPayload struct {
	Event *RevenueCatEvent `json:"event"`
}

// RevenueCatEvent carries the fields this service reads; the provider
// sends many more which are ignored.
type RevenueCatEvent struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	AppUserID   string `json:"app_user_id"`
	ProductID   string `json:"product_id,omitempty"`
	Environment string `json:"environment,omitempty"`
}
