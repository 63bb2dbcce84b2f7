package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"

	"MindPress-Market/deploy/migrations"
	"MindPress-Market/pkg/logger"
)

var embeddedMigrations fs.FS = migrations.Files

const schemaTableDDL = `CREATE TABLE IF NOT EXISTS schema_migrations (
        version VARCHAR(32) NOT NULL PRIMARY KEY,
        applied_at BIGINT NOT NULL
)`

type migrationFile struct {
	version    string
	name       string
	statements []string
}

// Migrate 执行内嵌的 SQL 迁移，返回本次新应用的版本。
func Migrate(ctx context.Context, db *sql.DB) ([]string, error) {
	return migrate(ctx, db, embeddedMigrations)
}

// migrate 按版本顺序执行 src 中尚未记录在 schema_migrations 的迁移。
// 每个版本在独立事务中执行，失败时回滚该版本并停止。
func migrate(ctx context.Context, db *sql.DB, src fs.FS) ([]string, error) {
	if db == nil {
		return nil, fmt.Errorf("MySQL 连接不能为空")
	}
	if _, err := db.ExecContext(ctx, schemaTableDDL); err != nil {
		return nil, fmt.Errorf("创建 schema_migrations 表失败: %w", err)
	}
	done, err := appliedVersions(ctx, db)
	if err != nil {
		return nil, err
	}
	files, err := loadMigrationFiles(src)
	if err != nil {
		return nil, err
	}

	log := logger.Named("mysql")
	var applied []string
	for _, file := range files {
		if done[file.version] {
			continue
		}
		started := time.Now()
		if err := applyMigration(ctx, db, file); err != nil {
			return applied, err
		}
		log.Info("迁移已应用",
			slog.String("version", file.version),
			slog.String("file", file.name),
			slog.Int("statements", len(file.statements)),
			slog.Duration("elapsed", time.Since(started)),
		)
		applied = append(applied, file.version)
	}
	return applied, nil
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("查询 schema_migrations 失败: %w", err)
	}
	defer rows.Close()

	done := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("解析 schema_migrations 失败: %w", err)
		}
		done[version] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历 schema_migrations 失败: %w", err)
	}
	return done, nil
}

func applyMigration(ctx context.Context, db *sql.DB, file migrationFile) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启迁移事务失败: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for i, stmt := range file.statements {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("执行迁移 %s 第 %d 条语句失败: %w", file.name, i+1, err)
		}
	}
	if _, err = tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`,
		file.version, time.Now().Unix()); err != nil {
		return fmt.Errorf("记录迁移版本 %s 失败: %w", file.version, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("提交迁移事务失败: %w", err)
	}
	return nil
}

// loadMigrationFiles 读取 src 根目录下的 .sql 文件，版本取文件名中第一个下划线之前的部分。
// 两个文件解析出相同版本视为错误。
func loadMigrationFiles(src fs.FS) ([]migrationFile, error) {
	names, err := fs.Glob(src, "*.sql")
	if err != nil {
		return nil, fmt.Errorf("读取迁移目录失败: %w", err)
	}

	seen := make(map[string]string, len(names))
	files := make([]migrationFile, 0, len(names))
	for _, name := range names {
		content, err := fs.ReadFile(src, name)
		if err != nil {
			return nil, fmt.Errorf("读取迁移文件 %s 失败: %w", name, err)
		}
		statements := splitSQLStatements(string(content))
		if len(statements) == 0 {
			continue
		}
		version := parseMigrationVersion(name)
		if prev, ok := seen[version]; ok {
			return nil, fmt.Errorf("迁移 %s 与 %s 使用了相同的版本 %s", prev, name, version)
		}
		seen[version] = name
		files = append(files, migrationFile{version: version, name: name, statements: statements})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].version < files[j].version })
	return files, nil
}

// splitSQLStatements 按分号切分语句，并去掉整行的 -- 注释。
func splitSQLStatements(content string) []string {
	var body strings.Builder
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		body.WriteString(line)
		body.WriteByte('\n')
	}

	var statements []string
	for _, stmt := range strings.Split(body.String(), ";") {
		if trimmed := strings.TrimSpace(stmt); trimmed != "" {
			statements = append(statements, trimmed)
		}
	}
	return statements
}

func parseMigrationVersion(name string) string {
	base := strings.TrimSuffix(path.Base(name), path.Ext(name))
	if version, _, ok := strings.Cut(base, "_"); ok && version != "" {
		return version
	}
	return base
}
