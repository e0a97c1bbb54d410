package events

// NotificationEvent is delivered to the push-notification pipeline when a
// background stage produced something the account owner should see.
type NotificationEvent struct {
	AccountID string `json:"account_id"`
	Subject   string `json:"subject"`
	Message   string `json:"message"`
	EntityID  string `json:"entity_id,omitempty"`
}

// OperatorAlertEvent is emitted when a work item exhausts its retries and
// requires operator attention.
type OperatorAlertEvent struct {
	WorkItemID string `json:"work_item_id"`
	Kind       string `json:"kind"`
	LastError  string `json:"last_error"`
	Attempts   int    `json:"attempts"`
}
