package errors

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrOptimisticLock 乐观锁冲突：记录已被其他操作修改
var ErrOptimisticLock = errors.New("数据已被其他操作修改，请刷新后重试")

// PostgreSQL SQLSTATE
const (
	CodeUniqueViolation    = "23505"
	CodeExclusionViolation = "23P01"
	CodeForeignKey         = "23503"
)

// PgCode 返回底层 PostgreSQL 错误码，非 PostgreSQL 错误返回空串
func PgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// PgConstraint 返回违反的约束名
func PgConstraint(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}

// IsUniqueViolation 唯一约束冲突
func IsUniqueViolation(err error) bool { return PgCode(err) == CodeUniqueViolation }

// IsExclusionViolation 排他约束冲突（时段重叠）
func IsExclusionViolation(err error) bool { return PgCode(err) == CodeExclusionViolation }

// IsForeignKeyViolation 外键约束冲突
func IsForeignKeyViolation(err error) bool { return PgCode(err) == CodeForeignKey }
