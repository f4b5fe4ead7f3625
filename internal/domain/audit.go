package domain

import "time"

// AuditEvent is the kind of an audit log entry.
type AuditEvent string

const (
	AuditRiskDecision            AuditEvent = "risk_decision"
	AuditObservation             AuditEvent = "observation"
	AuditExecutionResult         AuditEvent = "execution_result"
	AuditEmergencyExit           AuditEvent = "emergency_exit"
	AuditMonitorCheckpointFailed AuditEvent = "monitor_checkpoint_failed"
	AuditCorruptionFlagged       AuditEvent = "corruption_flagged"
	AuditReconciliationRequired  AuditEvent = "reconciliation_required"
	AuditPositionClosed          AuditEvent = "position_closed"
)

// AuditEntry is an append-only audit log record.
// Corresponds to audit_log table in PostgreSQL.
type AuditEntry struct {
	ID        string
	UserID    string
	Event     AuditEvent
	Mint      string
	Detail    map[string]any
	CreatedAt time.Time
}
