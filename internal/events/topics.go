package events

// Topic constants for domain events emitted by the platform.
const (
	TopicInvoiceCreated         = "invoice.created"
	TopicInvoiceItemsReconciled = "invoice.items_reconciled"
	TopicInvoicePaid            = "invoice.paid"
	TopicPaymentRecorded        = "payment.recorded"
	TopicTaskCompleted          = "task.completed"
)

// DefaultTopics returns the canonical list of topics that support notifications.
func DefaultTopics() []string {
	return []string{
		TopicInvoiceCreated,
		TopicInvoiceItemsReconciled,
		TopicInvoicePaid,
		TopicPaymentRecorded,
		TopicTaskCompleted,
	}
}
