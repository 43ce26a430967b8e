// Copyright 2025 Ledgercore Contributors

package database

import "strings"

// isUniqueViolation reports whether err is a unique/primary-key constraint
// violation, checked by substring match on the driver's error text since
// lib/pq, go-sql-driver/mysql, and mattn/go-sqlite3 each wrap this in a
// different concrete error type.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || // lib/pq, sqlite3
		strings.Contains(msg, "duplicate entry") // go-sql-driver/mysql
}
