package common

const (
	ApprovalNotApproved   = "not_approved"
	ApprovalManually      = "manually"
	ApprovalAutomatically = "automatically"

	// Tag put on line items that were synced from the time tracker. Only
	// tagged items are touched by reconciliation.
	WorklogTag = "jira_worklog"

	TemplateDefault = "default"

	InvoiceEventCreated   = "invoice_created"
	InvoiceEventApproved  = "invoice_approved"
	InvoiceEventFinalized = "invoice_finalized"
	InvoiceEventPaid      = "invoice_paid"
)
