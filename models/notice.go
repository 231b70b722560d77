package models

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Notice is a one-shot operator message. At most one notice is stored per
// user; a newer notice replaces the previous unread one, and reading a
// notice removes it.
type Notice struct {
	ID        int            `gorm:"primary_key" json:"id"`
	UserId    int            `gorm:"not null;uniqueIndex" json:"user_id"`
	Severity  NoticeSeverity `gorm:"type:enum('error','warning','info');not null" json:"severity"`
	Message   string         `gorm:"type:text;not null" json:"message"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

func (Notice) TableName() string { return "notices" }

type NoticeStore struct {
	DB *gorm.DB
}

func NewNoticeStore(db *gorm.DB) *NoticeStore {
	return &NoticeStore{DB: db}
}

func (s *NoticeStore) Emit(ctx context.Context, userID int, severity NoticeSeverity, message string) error {
	return s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"severity", "message", "created_at"}),
	}).Create(&Notice{
		UserId:   userID,
		Severity: severity,
		Message:  message,
	}).Error
}

// ConsumeAndClear returns the user's pending notice, removing it so it is
// shown exactly once. Returns nil when there is nothing to show.
func (s *NoticeStore) ConsumeAndClear(ctx context.Context, userID int) (*Notice, error) {
	var notice Notice
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).First(&notice).Error; err != nil {
			return err
		}
		return tx.Delete(&Notice{}, notice.ID).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &notice, nil
}
