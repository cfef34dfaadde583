package engine

import "log"

// AuditSink is the engine's dependency on the optional event log —
// satisfied by internal/audit.Store. Never consulted to decide a
// reconciliation action, only written to, so a nil AuditSink (no database
// configured) changes nothing about reconciliation behavior.
type AuditSink interface {
	LogEvent(appName, eventType, message string, details map[string]interface{}) error
}

func logAudit(sink AuditSink, appName, eventType, message string) {
	if sink == nil {
		return
	}
	if err := sink.LogEvent(appName, eventType, message, nil); err != nil {
		log.Printf("audit log for %s failed: %v", appName, err)
	}
}
