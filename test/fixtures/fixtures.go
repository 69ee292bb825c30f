package fixtures

import (
	"time"

	"github.com/nimasrn/voice-broadcast/internal/model"
)

var (
	TestEmployee1 = model.Employee{
		ID:          1,
		FirstName:   "Alex",
		LastName:    "Morgan",
		PhoneNumber: "+1234567890",
		IsActive:    true,
	}

	TestEmployee2 = model.Employee{
		ID:          2,
		FirstName:   "Sam",
		LastName:    "Rivera",
		PhoneNumber: "+9876543210",
		IsActive:    true,
	}

	TestEmployeeNoPhone = model.Employee{
		ID:        3,
		FirstName: "Jordan",
		LastName:  "Lee",
		IsActive:  true,
	}

	TestEmployeeInactive = model.Employee{
		ID:          4,
		FirstName:   "Casey",
		LastName:    "Nguyen",
		PhoneNumber: "+4412345678",
		IsActive:    false,
	}
)

func NewTestBroadcast(title, message string, criteria model.TargetCriteria) *model.Broadcast {
	return &model.Broadcast{
		Title:     title,
		Message:   message,
		Type:      model.BroadcastTypeVoice,
		Status:    model.BroadcastStatusPending,
		Criteria:  criteria,
		CreatedBy: "test-operator",
		CreatedAt: time.Now(),
	}
}

func NewTestBroadcastCreateRequest(title, message string, criteria model.TargetCriteria) model.BroadcastCreateRequest {
	return model.BroadcastCreateRequest{
		Title:     title,
		Message:   message,
		Type:      model.BroadcastTypeVoice,
		Criteria:  criteria,
		CreatedBy: "test-operator",
	}
}

func NewTestCall(broadcastID, employeeID int64, callID, phone string) *model.Call {
	return &model.Call{
		CallID:      callID,
		BroadcastID: &broadcastID,
		EmployeeID:  employeeID,
		PhoneNumber: phone,
		Status:      model.CallStatusPending,
		Attempts:    1,
		CreatedAt:   time.Now(),
	}
}

var (
	ValidPhoneNumbers = []string{
		"+1234567890",
		"+9876543210",
		"+4412345678",
		"+33123456789",
		"+81312345678",
	}

	InvalidPhoneNumbers = []string{
		"",
		"123",
		"invalid",
		"+",
		"abc123",
	}
)

func CriteriaForEmployees(ids ...int64) model.TargetCriteria {
	return model.TargetCriteria{EmployeeIDs: ids}
}

func CriteriaForDepartments(ids ...int64) model.TargetCriteria {
	return model.TargetCriteria{DepartmentIDs: ids}
}

func CriteriaForGroups(ids ...int64) model.TargetCriteria {
	return model.TargetCriteria{GroupIDs: ids}
}

func BroadcastCreateRequestValid() model.BroadcastCreateRequest {
	return NewTestBroadcastCreateRequest("Severe weather warning",
		"A storm warning is in effect for your district.",
		CriteriaForEmployees(1, 2))
}

func BroadcastCreateRequestEmptyCriteria() model.BroadcastCreateRequest {
	return NewTestBroadcastCreateRequest("Untargeted broadcast",
		"This broadcast targets nobody.",
		model.TargetCriteria{})
}

func BroadcastCreateRequestMissingTitle() model.BroadcastCreateRequest {
	return NewTestBroadcastCreateRequest("", "No title given.", CriteriaForEmployees(1))
}

func BroadcastFilterByStatus(statuses ...model.BroadcastStatus) model.BroadcastFilter {
	return model.BroadcastFilter{
		Statuses: statuses,
		Limit:    50,
		Offset:   0,
		Desc:     false,
	}
}

func BroadcastFilterWithPagination(limit, offset int) model.BroadcastFilter {
	return model.BroadcastFilter{
		Limit:  limit,
		Offset: offset,
		Desc:   false,
	}
}

func CallFilterByBroadcast(broadcastID int64) model.CallFilter {
	return model.CallFilter{
		BroadcastID: &broadcastID,
		Limit:       50,
		Offset:      0,
		Desc:        false,
	}
}

func FastDispatchConfig() model.DispatchConfig {
	return model.DispatchConfig{
		MaxConcurrentCalls: 5,
		CallTimeoutSeconds: 2,
		RetryFailedCalls:   false,
		MaxRetries:         0,
	}
}

func RetryingDispatchConfig(maxRetries int) model.DispatchConfig {
	return model.DispatchConfig{
		MaxConcurrentCalls: 5,
		CallTimeoutSeconds: 2,
		RetryFailedCalls:   true,
		MaxRetries:         maxRetries,
	}
}
