package database

import (
	"log/slog"

	"wbpmisueso/internal/models"

	"gorm.io/gorm"
)

// helper for writing to the audit log; failures are logged and dropped
func CreateAuditLog(db *gorm.DB, userID *uint, entity string, entityID uint, action, details string) {
	if db == nil {
		return
	}
	record := models.AuditLog{
		UserID:   userID,
		Entity:   entity,
		EntityID: entityID,
		Action:   action,
		Details:  details,
	}
	if err := db.Create(&record).Error; err != nil {
		slog.Warn("failed to write audit log", "entity", entity, "entity_id", entityID, "action", action, "error", err)
	}
}

func ListAuditLogs(db *gorm.DB, entity string, limit int) ([]models.AuditLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 200
	}
	q := db.Order("created_at desc").Order("id desc").Limit(limit)
	if entity != "" {
		q = q.Where("entity = ?", entity)
	}
	var logs []models.AuditLog
	if err := q.Find(&logs).Error; err != nil {
		return nil, Unavailable("list audit logs", err)
	}
	return logs, nil
}
