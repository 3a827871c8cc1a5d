package storage

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Sonrial/family-budget/internal/core"
)

// Dialect selects the SQL flavour spoken by a repository.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// sqlite keeps timestamps as fixed-width UTC text so they sort lexically.
const sqliteTimeLayout = "2006-01-02 15:04:05.000000"

// Postgres error codes.
const (
	pgForeignKeyViolation = "23503"
	pgUniqueViolation     = "23505"
)

// rebind rewrites ? placeholders into $n for postgres.
func (d Dialect) rebind(query string) string {
	if d != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (d Dialect) timeArg(t time.Time) any {
	if d == DialectSQLite {
		return t.UTC().Format(sqliteTimeLayout)
	}
	return t.UTC()
}

func (d Dialect) dateArg(date core.Date) any {
	if d == DialectSQLite {
		return date.String()
	}
	return date.Time
}

// translate maps driver errors onto the core taxonomy.
func (d Dialect) translate(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgForeignKeyViolation:
			return fmt.Errorf("%w: %s", core.ErrReferentialIntegrity, pgErr.ConstraintName)
		case pgUniqueViolation:
			return core.NewValidationError("", "duplicate: "+pgErr.ConstraintName)
		}
		return err
	}
	msg := err.Error()
	if strings.Contains(msg, "FOREIGN KEY constraint failed") {
		return fmt.Errorf("%w: %v", core.ErrReferentialIntegrity, err)
	}
	if strings.Contains(msg, "UNIQUE constraint failed") {
		return core.NewValidationError("", "duplicate: "+msg)
	}
	return err
}

// timeColumn scans timestamps stored either natively or as text.
type timeColumn struct {
	t time.Time
}

func (c *timeColumn) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		c.t = time.Time{}
	case time.Time:
		c.t = v.UTC()
	case string:
		return c.parse(v)
	case []byte:
		return c.parse(string(v))
	default:
		return fmt.Errorf("unsupported time column type %T", src)
	}
	return nil
}

func (c *timeColumn) parse(s string) error {
	for _, layout := range []string{sqliteTimeLayout, time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", core.DateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			c.t = t.UTC()
			return nil
		}
	}
	return fmt.Errorf("unparseable time %q", s)
}

func (c timeColumn) date() core.Date {
	if c.t.IsZero() {
		return core.Date{}
	}
	return core.DateOf(c.t)
}
