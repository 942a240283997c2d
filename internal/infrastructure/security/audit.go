package security

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/doeshing/cmdai-go/internal/domain"
	"github.com/doeshing/cmdai-go/internal/pkg/filesystem"
	"github.com/doeshing/cmdai-go/internal/ports"
)

// FileAuditLogger appends pipe-delimited lines to ~/.cmdai/audit.log. It
// records refusals, critical overrides, and executions of risky commands.
type FileAuditLogger struct {
	logger *log.Logger
}

// NewFileAuditLogger opens (or creates) the audit log. When the file cannot
// be opened the logger degrades to stderr rather than dropping events.
func NewFileAuditLogger() *FileAuditLogger {
	path := filepath.Join(filesystem.AppDir(), "audit.log")
	if err := os.MkdirAll(filepath.Dir(path), domain.DirectoryPermissions); err != nil {
		return &FileAuditLogger{logger: log.New(os.Stderr, "", 0)}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, domain.SecureFilePermissions)
	if err != nil {
		return &FileAuditLogger{logger: log.New(os.Stderr, "", 0)}
	}
	return &FileAuditLogger{logger: log.New(f, "", 0)}
}

// Record implements ports.AuditLogger.
func (a *FileAuditLogger) Record(event ports.AuditEvent) error {
	if a.logger == nil {
		return nil
	}
	line := fmt.Sprintf("%s|session:%s|%s|level:%s|rules:%s|%s|%s",
		event.Time.Format(domain.TimestampFormat),
		event.Session,
		event.Kind,
		event.Level,
		strings.Join(event.Rules, ","),
		sanitize(event.Command),
		sanitize(event.Detail),
	)
	a.logger.Println(line)
	return nil
}

// sanitize keeps one event per line even when commands embed newlines or the
// field delimiter.
func sanitize(s string) string {
	s = strings.ReplaceAll(s, "\n", "\\n")
	return strings.ReplaceAll(s, "|", "\\|")
}

// NopAudit discards events. Used when audit logging is disabled in config.
type NopAudit struct{}

func (NopAudit) Record(ports.AuditEvent) error { return nil }

var (
	_ ports.AuditLogger = (*FileAuditLogger)(nil)
	_ ports.AuditLogger = NopAudit{}
)
