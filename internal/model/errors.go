package model

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"
)

// WriteKind distinguishes constraint failures from everything else
type WriteKind int

const (
	WriteOther WriteKind = iota
	WriteIntegrity
)

// WriteError a failed create, update or delete
type WriteError struct {
	Entity string
	Kind   WriteKind
	Err    error
}

func (e *WriteError) Error() string {
	if e.Kind == WriteIntegrity {
		return fmt.Sprintf("[%s] Integrity constraint violated: %v", e.Entity, e.Err)
	}
	return fmt.Sprintf("[%s] Internal server error: %v", e.Entity, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// IsIntegrity reports whether err is a constraint violation on write
func IsIntegrity(err error) bool {
	var we *WriteError
	return errors.As(err, &we) && we.Kind == WriteIntegrity
}

func newWriteError(entity string, err error) error {
	kind := WriteOther
	if isIntegrityViolation(err) {
		kind = WriteIntegrity
	}
	return &WriteError{Entity: entity, Kind: kind, Err: err}
}

// mysql error numbers for not-null, duplicate key and foreign key failures
var mysqlIntegrityErrors = map[uint16]bool{
	1048: true,
	1062: true,
	1216: true,
	1217: true,
	1451: true,
	1452: true,
}

func isIntegrityViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) || errors.Is(err, gorm.ErrForeignKeyViolated) ||
		errors.Is(err, gorm.ErrCheckConstraintViolated) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgerrcode.IsIntegrityConstraintViolation(pgErr.Code)
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlIntegrityErrors[mysqlErr.Number]
	}
	return false
}
