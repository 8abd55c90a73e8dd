package store

import (
	"errors"
	"fmt"

	"quickchat/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// 存储层错误，调用方用 errors.Is 区分处理。
var (
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrUnknownMessage   = errors.New("unknown message")
)

// Store 封装消息与已读回执的持久化操作。
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AppendMessage 插入一条消息并返回带 id 和 created_at 的完整记录。
// 写入失败时不伪造 id，直接返回 ErrStoreUnavailable。
func (s *Store) AppendMessage(name, text string) (*models.Message, error) {
	msg := models.Message{Name: name, Text: text}
	if err := s.db.Create(&msg).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return &msg, nil
}

// ListRecent 返回最近 limit 条消息，按 id 升序（最旧在前）。
func (s *Store) ListRecent(limit int) ([]models.Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var msgs []models.Message
	if err := s.db.Order("id desc").Limit(limit).Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	// 反转为升序
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// RecordReadReceipt 记录 reader 已读 messageID，返回是否新插入了一行。
// 同一 (messageID, reader) 重复记录是 no-op，返回 false；
// messageID 不存在时返回 ErrUnknownMessage。
func (s *Store) RecordReadReceipt(messageID uint, reader string) (bool, error) {
	var count int64
	if err := s.db.Model(&models.Message{}).Where("id = ?", messageID).Count(&count).Error; err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if count == 0 {
		return false, fmt.Errorf("%w: id %d", ErrUnknownMessage, messageID)
	}
	rec := models.ReadReceipt{MessageID: messageID, ReaderName: reader}
	res := s.db.Clauses(clause.OnConflict{DoNothing: true}).Omit(clause.Associations).Create(&rec)
	if res.Error != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, res.Error)
	}
	return res.RowsAffected > 0, nil
}
