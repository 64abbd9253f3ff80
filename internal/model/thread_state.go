package model

import "time"

type ThreadState struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement"`
	ThreadID   uint64    `gorm:"column:thread_id;uniqueIndex:uniq_thread_uid"`
	Identity   string    `gorm:"column:identity;size:64;uniqueIndex:uniq_thread_uid"`
	LastReadAt time.Time `gorm:"column:last_read_at;autoUpdateTime"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime"`
}

func (ThreadState) TableName() string {
	return "thread_states"
}
