package helpers

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/nimasrn/voice-broadcast/internal/model"
	"github.com/nimasrn/voice-broadcast/internal/repository"
	"github.com/nimasrn/voice-broadcast/pkg/pg"
	"github.com/nimasrn/voice-broadcast/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func SetupTestDB(t *testing.T) *pg.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&repository.BroadcastEntity{},
		&repository.CallEntity{},
		&repository.EmployeeEntity{},
		&repository.GroupMemberEntity{},
	)
	require.NoError(t, err)

	pgDB := &pg.DB{}
	pgDBValue := reflect.ValueOf(pgDB).Elem()

	readField := pgDBValue.FieldByName("read")
	writeField := pgDBValue.FieldByName("write")

	readField = reflect.NewAt(readField.Type(), readField.Addr().UnsafePointer()).Elem()
	writeField = reflect.NewAt(writeField.Type(), writeField.Addr().UnsafePointer()).Elem()

	readField.Set(reflect.ValueOf(db))
	writeField.Set(reflect.ValueOf(db))

	return pgDB
}

func SetupTestRedis(t *testing.T) (*miniredis.Miniredis, redis.RedisAdapter) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	adapter, err := redis.NewRedisAdapter("test", "", &goredis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, err)

	return mr, adapter
}

func CreateTestEmployee(t *testing.T, db *pg.DB, id int64, phone string, departmentID *int64) *repository.EmployeeEntity {
	ctx := context.Background()
	employee := &repository.EmployeeEntity{
		ID:           id,
		FirstName:    "Test",
		LastName:     "Employee",
		PhoneNumber:  phone,
		DepartmentID: departmentID,
		IsActive:     true,
	}
	err := db.Write(ctx).Create(employee).Error
	require.NoError(t, err)
	return employee
}

func AddTestGroupMember(t *testing.T, db *pg.DB, groupID, employeeID int64) {
	ctx := context.Background()
	err := db.Write(ctx).Create(&repository.GroupMemberEntity{
		GroupID:    groupID,
		EmployeeID: employeeID,
	}).Error
	require.NoError(t, err)
}

func CreateTestBroadcast(t *testing.T, db *pg.DB, title string, criteria model.TargetCriteria) *model.Broadcast {
	ctx := context.Background()
	repo := repository.NewBroadcastRepository(db)
	b, err := repo.Create(ctx, &model.Broadcast{
		Title:     title,
		Message:   "test broadcast message",
		Type:      model.BroadcastTypeVoice,
		Status:    model.BroadcastStatusPending,
		Criteria:  criteria,
		CreatedBy: "test-operator",
	})
	require.NoError(t, err)
	return b
}

func CreateTestCall(t *testing.T, db *pg.DB, broadcastID, employeeID int64, callID string, status model.CallStatus) *model.Call {
	ctx := context.Background()
	repo := repository.NewCallRepository(db)
	c, err := repo.Create(ctx, &model.Call{
		CallID:      callID,
		BroadcastID: &broadcastID,
		EmployeeID:  employeeID,
		PhoneNumber: "+1234567890",
		Status:      status,
		Attempts:    1,
	})
	require.NoError(t, err)
	return c
}

func WaitForCondition(t *testing.T, timeout time.Duration, condition func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func AssertEventually(t *testing.T, timeout time.Duration, condition func() bool, msg string) {
	if !WaitForCondition(t, timeout, condition) {
		t.Fatal(msg)
	}
}

func ContextWithTimeout(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

func Ptr[T any](v T) *T {
	return &v
}
