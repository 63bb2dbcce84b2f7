// Package mysql 负责打开 MySQL 连接池并执行内嵌的 schema 迁移，
// 任务状态的读写由 internal/job 中的 MySQLStore 完成。
package mysql
