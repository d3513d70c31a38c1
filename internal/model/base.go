package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BaseModel 自增主键，用于任务、目标、汇总等内部行
// swagger:model
type BaseModel struct {
	ID        uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// UUIDBase 对外暴露的记录（作答记录、普通成绩），ID 即接口返回的 resultId
// swagger:model
type UUIDBase struct {
	ID        string         `gorm:"primaryKey;type:varchar(36)" json:"id"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeCreate 未指定 ID 时生成 UUID；指定了则必须是合法 UUID，统一成小写规范格式
func (b *UUIDBase) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
		return nil
	}
	id, err := uuid.Parse(b.ID)
	if err != nil {
		return fmt.Errorf("record id %q: %w", b.ID, err)
	}
	b.ID = id.String()
	return nil
}
