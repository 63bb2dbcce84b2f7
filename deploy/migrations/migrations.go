package migrations

import "embed"

// Files 内嵌市场任务表的 SQL 迁移，文件名前缀即版本号。
//
//go:embed *.sql
var Files embed.FS
