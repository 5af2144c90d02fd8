package database

import (
	"errors"
	"fmt"
	"testing"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestOptionsDSN(t *testing.T) {
	dsn := Options{Addr: "db:3306", User: "app", Password: "p@ss", Database: "storefront"}.DSN()

	cfg, err := mysqldriver.ParseDSN(dsn)
	assert.NoError(t, err)
	assert.Equal(t, "db:3306", cfg.Addr)
	assert.Equal(t, "p@ss", cfg.Passwd)
	assert.Equal(t, "storefront", cfg.DBName)
	assert.True(t, cfg.ParseTime)
}

func TestIsDuplicateKey(t *testing.T) {
	dup := &mysqldriver.MySQLError{Number: 1062, Message: "Duplicate entry"}
	assert.True(t, IsDuplicateKey(dup))
	assert.True(t, IsDuplicateKey(fmt.Errorf("insert: %w", dup)))
	assert.True(t, IsDuplicateKey(gorm.ErrDuplicatedKey))
	assert.False(t, IsDuplicateKey(&mysqldriver.MySQLError{Number: 1452}))
	assert.False(t, IsDuplicateKey(errors.New("other")))
}
