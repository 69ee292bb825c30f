package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/nimasrn/voice-broadcast/internal/model"
	"github.com/nimasrn/voice-broadcast/pkg/logger"
)

var (
	// ErrEmptyAudience is returned when targeting criteria resolve to no
	// reachable recipient. It is fatal to a broadcast run.
	ErrEmptyAudience = errors.New("targeting criteria resolved to an empty audience")
)

// EmployeeRepository is the directory storage the resolver reads from.
type EmployeeRepository interface {
	ListActiveByIDs(ctx context.Context, ids []int64) ([]*model.Employee, error)
	ListActiveByDepartments(ctx context.Context, departmentIDs []int64) ([]*model.Employee, error)
	ListActiveByDistricts(ctx context.Context, districtIDs []int64) ([]*model.Employee, error)
	ListActiveByGroups(ctx context.Context, groupIDs []int64) ([]*model.Employee, error)
}

// Resolver expands a broadcast's targeting criteria into the deduplicated
// recipient list the dispatcher works from.
type Resolver struct {
	employees EmployeeRepository
}

func NewResolver(employees EmployeeRepository) *Resolver {
	return &Resolver{
		employees: employees,
	}
}

// ResolveRecipients resolves each criterion, takes the union, deduplicates
// by employee id and drops employees without a usable phone number. Order
// follows first appearance: explicit ids, then departments, districts,
// groups.
func (r *Resolver) ResolveRecipients(ctx context.Context, criteria model.TargetCriteria) ([]model.Recipient, error) {
	type resolveStep struct {
		name string
		run  func() ([]*model.Employee, error)
	}

	steps := []resolveStep{
		{"employee_ids", func() ([]*model.Employee, error) {
			return r.employees.ListActiveByIDs(ctx, criteria.EmployeeIDs)
		}},
		{"department_ids", func() ([]*model.Employee, error) {
			return r.employees.ListActiveByDepartments(ctx, criteria.DepartmentIDs)
		}},
		{"district_ids", func() ([]*model.Employee, error) {
			return r.employees.ListActiveByDistricts(ctx, criteria.DistrictIDs)
		}},
		{"group_ids", func() ([]*model.Employee, error) {
			return r.employees.ListActiveByGroups(ctx, criteria.GroupIDs)
		}},
	}

	seen := make(map[int64]struct{})
	var recipients []model.Recipient
	dropped := 0

	for _, step := range steps {
		employees, err := step.run()
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", step.name, err)
		}
		for _, e := range employees {
			if _, ok := seen[e.ID]; ok {
				continue
			}
			seen[e.ID] = struct{}{}
			if e.PhoneNumber == "" {
				dropped++
				continue
			}
			recipients = append(recipients, model.Recipient{
				EmployeeID:  e.ID,
				PhoneNumber: e.PhoneNumber,
			})
		}
	}

	if dropped > 0 {
		logger.Warn("dropped recipients without phone numbers", "count", dropped)
	}

	if len(recipients) == 0 {
		return nil, ErrEmptyAudience
	}

	return recipients, nil
}
