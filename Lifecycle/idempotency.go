package Lifecycle

import (
	"fmt"

	"Pitstop/Models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// claimRequest reserves (action, key) inside tx. When the pair was already
// claimed by a committed request it returns that request's entity id and
// fresh=false, and the caller must replay instead of acting. An empty key
// disables the check.
func claimRequest(tx *gorm.DB, action, key string) (entityID uint, fresh bool, err error) {
	if key == "" {
		return 0, true, nil
	}
	req := Models.ActionRequest{Action: action, RequestKey: key}
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&req)
	if res.Error != nil {
		return 0, false, fmt.Errorf("claim request %s: %w", action, res.Error)
	}
	if res.RowsAffected == 1 {
		return 0, true, nil
	}

	var existing Models.ActionRequest
	if err := tx.Where("action = ? AND request_key = ?", action, key).First(&existing).Error; err != nil {
		return 0, false, fmt.Errorf("load request %s: %w", action, err)
	}
	return existing.EntityID, false, nil
}

// settleRequest stores the entity produced by a claimed request.
func settleRequest(tx *gorm.DB, action, key string, entityID uint) error {
	if key == "" {
		return nil
	}
	return tx.Model(&Models.ActionRequest{}).
		Where("action = ? AND request_key = ?", action, key).
		Update("entity_id", entityID).Error
}

func taskAction(action string, taskID uint) string {
	return fmt.Sprintf("task.%s/%d", action, taskID)
}

func issueAction(action string, issueID uint) string {
	return fmt.Sprintf("issue.%s/%d", action, issueID)
}
