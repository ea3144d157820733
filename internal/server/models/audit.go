package models

import "time"

// AuditAction names a mutating operation recorded in the audit log.
type AuditAction string

const (
	AuditFileCreate          AuditAction = "FILE_CREATE"
	AuditFileSave            AuditAction = "FILE_SAVE"
	AuditFileDeleteSoft      AuditAction = "FILE_DELETE_SOFT"
	AuditFileRestore         AuditAction = "FILE_RESTORE"
	AuditFileDeletePermanent AuditAction = "FILE_DELETE_PERMANENT"
	AuditFileFavorite        AuditAction = "FILE_FAVORITE"
	AuditFileAssetCreate     AuditAction = "FILE_ASSET_CREATE"
	AuditAuthRegister        AuditAction = "AUTH_REGISTER"
	AuditAuthLogin           AuditAction = "AUTH_LOGIN"
)

type AuditRecord struct {
	ID          string
	Action      AuditAction
	ActorUserID string
	FileID      *string
	TeamID      *string
	Metadata    map[string]any
	CreatedAt   time.Time
}
