// Package dialect hides the differences between the SQL databases supported
// by the SQL repository and the SQL writer.
package dialect

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	mssql "github.com/microsoft/go-mssqldb"
)

// Dialect names a database/sql driver
type Dialect string

const (
	MySQL     Dialect = "mysql"
	SQLServer Dialect = "sqlserver"
)

// Parse returns the dialect of a driver name
func Parse(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "mysql":
		return MySQL, nil
	case "sqlserver", "mssql":
		return SQLServer, nil
	}
	return "", fmt.Errorf("unsupported sql driver: %s", driver)
}

// DriverName is the name the driver registers with database/sql
func (d Dialect) DriverName() string {
	return string(d)
}

// Rebind rewrites ? placeholders into the dialect's placeholder syntax.
// Queries must not contain ? inside string literals.
func (d Dialect) Rebind(query string) string {
	if d != SQLServer {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteString("@p")
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// LimitClause returns a clause limiting an ordered query to the number of
// rows bound to its single ? placeholder.
func (d Dialect) LimitClause() string {
	if d == SQLServer {
		return " OFFSET 0 ROWS FETCH NEXT ? ROWS ONLY"
	}
	return " LIMIT ?"
}

// IsDuplicateKey reports whether err is a primary or unique key violation
func (d Dialect) IsDuplicateKey(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	var msErr mssql.Error
	if errors.As(err, &msErr) {
		return msErr.Number == 2627 || msErr.Number == 2601
	}
	var msErrPtr *mssql.Error
	if errors.As(err, &msErrPtr) {
		return msErrPtr.Number == 2627 || msErrPtr.Number == 2601
	}
	return false
}
