// Package storetest 为各包测试提供隔离的内存 SQLite 数据库。
package storetest

import (
	"fmt"
	"strings"
	"testing"

	"storefront/internal/store"

	"gorm.io/gorm"
)

// New 每个测试一个独立的内存库，测试结束自动关闭。
func New(t testing.TB) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := store.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}
