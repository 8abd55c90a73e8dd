package models

import "time"

// Message 是聊天消息的持久化记录，写入后不可修改。
// 自增 id 是消息的权威全序。
type Message struct {
	ID        uint      `gorm:"primaryKey"`
	Name      string    `gorm:"size:64;not null"`
	Text      string    `gorm:"type:text;not null"`
	CreatedAt time.Time
}

// ReadReceipt 记录某个读者看过某条消息。
// (message_id, reader_name) 唯一，重复插入是 no-op；消息删除时级联清理回执。
type ReadReceipt struct {
	ID         uint      `gorm:"primaryKey"`
	MessageID  uint      `gorm:"uniqueIndex:idx_receipt_msg_reader;not null"`
	Message    Message   `gorm:"constraint:OnDelete:CASCADE"`
	ReaderName string    `gorm:"uniqueIndex:idx_receipt_msg_reader;size:64;not null"`
	ReadAt     time.Time `gorm:"autoCreateTime"`
}
