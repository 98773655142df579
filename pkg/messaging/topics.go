package messaging

// Audit events flow through one JetStream stream, one subject per entity and
// action: audit.<entity>.<action>.
const (
	AuditStreamName      = "oko-audit"
	AuditSubjectWildcard = "audit.>"

	AuditConsumerName = "audit-writer"
)

// FormatAuditTopic builds the subject for one audit record.
func FormatAuditTopic(entity, action string) string {
	return "audit." + entity + "." + action
}
