package model

// swagger:model Test
type Test struct {
	BaseModel
	CreatorID   uint   `gorm:"index" json:"creatorId"`
	Title       string `gorm:"size:255;not null" json:"title"`
	Description string `gorm:"type:text" json:"description"`
}

func (Test) TableName() string {
	return "tests"
}
