package repository

import (
	"context"

	"github.com/nimasrn/voice-broadcast/internal/model"
	"github.com/nimasrn/voice-broadcast/pkg/pg"
)

type EmployeeRepository struct {
	*pg.DB
}

func NewEmployeeRepository(db *pg.DB) *EmployeeRepository {
	return &EmployeeRepository{
		db,
	}
}

func (r *EmployeeRepository) Create(ctx context.Context, e *model.Employee) (*model.Employee, error) {
	entity := toEmployeeEntity(e)
	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		return nil, err
	}
	return toEmployeeModel(entity), nil
}

func (r *EmployeeRepository) AddGroupMember(ctx context.Context, groupID, employeeID int64) error {
	return r.Write(ctx).WithContext(ctx).Create(&GroupMemberEntity{
		GroupID:    groupID,
		EmployeeID: employeeID,
	}).Error
}

// ListActiveByIDs returns the active employees among the given ids.
func (r *EmployeeRepository) ListActiveByIDs(ctx context.Context, ids []int64) ([]*model.Employee, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var entities []*EmployeeEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("id IN ? AND is_active = ?", ids, true).
		Find(&entities).Error
	if err != nil {
		return nil, err
	}
	return toEmployeeModels(entities), nil
}

func (r *EmployeeRepository) ListActiveByDepartments(ctx context.Context, departmentIDs []int64) ([]*model.Employee, error) {
	if len(departmentIDs) == 0 {
		return nil, nil
	}
	var entities []*EmployeeEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("department_id IN ? AND is_active = ?", departmentIDs, true).
		Find(&entities).Error
	if err != nil {
		return nil, err
	}
	return toEmployeeModels(entities), nil
}

func (r *EmployeeRepository) ListActiveByDistricts(ctx context.Context, districtIDs []int64) ([]*model.Employee, error) {
	if len(districtIDs) == 0 {
		return nil, nil
	}
	var entities []*EmployeeEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("district_id IN ? AND is_active = ?", districtIDs, true).
		Find(&entities).Error
	if err != nil {
		return nil, err
	}
	return toEmployeeModels(entities), nil
}

func (r *EmployeeRepository) ListActiveByGroups(ctx context.Context, groupIDs []int64) ([]*model.Employee, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}
	var entities []*EmployeeEntity
	err := r.Read(ctx).WithContext(ctx).
		Joins("JOIN group_members gm ON gm.employee_id = employees.id").
		Where("gm.group_id IN ? AND employees.is_active = ?", groupIDs, true).
		Find(&entities).Error
	if err != nil {
		return nil, err
	}
	return toEmployeeModels(entities), nil
}
