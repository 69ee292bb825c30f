package model

import "time"

// Employee is a directory entry that can be targeted by a broadcast.
type Employee struct {
	ID           int64     `json:"id"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	PhoneNumber  string    `json:"phone_number"` // consider E.164 normalization
	DepartmentID *int64    `json:"department_id,omitempty"`
	DistrictID   *int64    `json:"district_id,omitempty"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

// Recipient is one addressable target of a broadcast run: the minimal
// identity the dispatcher needs to place a call.
type Recipient struct {
	EmployeeID  int64  `json:"employee_id"`
	PhoneNumber string `json:"phone_number"`
}
