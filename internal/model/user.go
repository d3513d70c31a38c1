package model

type UserRole string

const (
	Student UserRole = "student"
	Teacher UserRole = "teacher"
	Admin   UserRole = "admin"
)

// User 由账号服务维护，这里只读取，用于把学生信息冗余到作答记录上
// swagger:model User
type User struct {
	BaseModel
	Name  string   `gorm:"size:100;not null" json:"name"`
	Email string   `gorm:"size:100;uniqueIndex;not null" json:"email"`
	Role  UserRole `gorm:"size:20;default:'student'" json:"role"`
}

func (User) TableName() string {
	return "users"
}
