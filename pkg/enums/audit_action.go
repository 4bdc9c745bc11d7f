package enums

// AuditAction names the engine operations recorded in the audit trail.
type AuditAction string

const (
	AuditActionCreateTransaction AuditAction = "create_transaction"
	AuditActionUpdateTransaction AuditAction = "update_transaction"
	AuditActionDeleteTransaction AuditAction = "delete_transaction"
)

var validAuditActions = []AuditAction{
	AuditActionCreateTransaction,
	AuditActionUpdateTransaction,
	AuditActionDeleteTransaction,
}

// IsValid reports whether the value matches the canonical audit action enum.
func (a AuditAction) IsValid() bool {
	for _, candidate := range validAuditActions {
		if candidate == a {
			return true
		}
	}
	return false
}
