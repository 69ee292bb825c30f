package repository

import (
	"reflect"
	"testing"

	"github.com/nimasrn/voice-broadcast/pkg/pg"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testDB struct {
	*pg.DB
	rawDB *gorm.DB
}

// setupTestDB backs a pg.DB with an in-memory sqlite database so repository
// tests run without a postgres instance. Criteria columns are stored as JSON
// text, which both engines accept.
func setupTestDB(t *testing.T) *testDB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(&BroadcastEntity{}, &CallEntity{}, &EmployeeEntity{}, &GroupMemberEntity{})
	require.NoError(t, err)

	pgDB := &pg.DB{}
	setUnexported(pgDB, "read", db)
	setUnexported(pgDB, "write", db)

	return &testDB{
		DB:    pgDB,
		rawDB: db,
	}
}

// setUnexported points one of pg.DB's unexported gorm handles at the sqlite
// connection. pg.DB only constructs itself from postgres configs, so tests
// reach in with reflection rather than widening its API.
func setUnexported(target *pg.DB, field string, db *gorm.DB) {
	v := reflect.ValueOf(target).Elem().FieldByName(field)
	v = reflect.NewAt(v.Type(), v.Addr().UnsafePointer()).Elem()
	v.Set(reflect.ValueOf(db))
}
