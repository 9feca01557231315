package store

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// XP is stored as decimal TEXT so it never loses precision.

func encodeXP(xp *big.Int) string {
	if xp == nil {
		return "0"
	}
	return xp.String()
}

func decodeXP(s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("corrupt xp value %q", s)
	}
	return n, nil
}

// isUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY constraint failure.
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	case sqlite3.SQLITE_CONSTRAINT: // extended codes disabled
		return strings.Contains(se.Error(), "UNIQUE constraint failed")
	}
	return false
}

// boolToInt converts a boolean to 1/0 for SQLite.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
