package repository

import (
	"time"

	"github.com/nimasrn/voice-broadcast/internal/model"
)

type EmployeeEntity struct {
	ID           int64     `db:"id"            gorm:"primaryKey;autoIncrement;column:id"`
	FirstName    string    `db:"first_name"    gorm:"column:first_name;not null"`
	LastName     string    `db:"last_name"     gorm:"column:last_name;not null"`
	PhoneNumber  string    `db:"phone_number"  gorm:"column:phone_number"`
	DepartmentID *int64    `db:"department_id" gorm:"column:department_id;index"`
	DistrictID   *int64    `db:"district_id"   gorm:"column:district_id;index"`
	IsActive     bool      `db:"is_active"     gorm:"column:is_active;not null;default:true"`
	CreatedAt    time.Time `db:"created_at"    gorm:"column:created_at;autoCreateTime"`
}

func (EmployeeEntity) TableName() string { return "employees" }

// GroupMemberEntity links employees to notification groups.
type GroupMemberEntity struct {
	ID         int64 `db:"id"          gorm:"primaryKey;autoIncrement;column:id"`
	GroupID    int64 `db:"group_id"    gorm:"column:group_id;not null;index"`
	EmployeeID int64 `db:"employee_id" gorm:"column:employee_id;not null;index"`
}

func (GroupMemberEntity) TableName() string { return "group_members" }

func toEmployeeModel(e *EmployeeEntity) *model.Employee {
	return &model.Employee{
		ID:           e.ID,
		FirstName:    e.FirstName,
		LastName:     e.LastName,
		PhoneNumber:  e.PhoneNumber,
		DepartmentID: e.DepartmentID,
		DistrictID:   e.DistrictID,
		IsActive:     e.IsActive,
		CreatedAt:    e.CreatedAt,
	}
}

func toEmployeeModels(entities []*EmployeeEntity) []*model.Employee {
	out := make([]*model.Employee, 0, len(entities))
	for _, e := range entities {
		out = append(out, toEmployeeModel(e))
	}
	return out
}

func toEmployeeEntity(m *model.Employee) *EmployeeEntity {
	return &EmployeeEntity{
		ID:           m.ID,
		FirstName:    m.FirstName,
		LastName:     m.LastName,
		PhoneNumber:  m.PhoneNumber,
		DepartmentID: m.DepartmentID,
		DistrictID:   m.DistrictID,
		IsActive:     m.IsActive,
		CreatedAt:    m.CreatedAt,
	}
}
