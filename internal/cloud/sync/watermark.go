package sync

import (
	"database/sql"
	"strconv"
	"strings"
	"time"
)

const (
	// legacyTimeLayout is the date-time watermark encoding used before
	// integer epoch-millisecond watermarks. Parsed as UTC.
	legacyTimeLayout = "2006-01-02 15:04:05"

	zeroTextWatermark = "1970-01-01 00:00:00"
	zeroIntWatermark  = "0"
)

// integerType reports whether a declared column type stores integers.
// SQLite type names are loose, so any mention of INT qualifies.
func integerType(colType string) bool {
	return strings.Contains(strings.ToUpper(colType), "INT")
}

// nowWatermark encodes the current time in the watermark encoding
// matching the updated_at column type.
func nowWatermark(colType string) string {
	if integerType(colType) {
		return strconv.FormatInt(time.Now().UnixMilli(), 10)
	}
	return time.Now().UTC().Format(legacyTimeLayout)
}

func zeroWatermark(colType string) string {
	if integerType(colType) {
		return zeroIntWatermark
	}
	return zeroTextWatermark
}

// normalizeWatermark prepares a stored watermark for use against a
// table whose updated_at column has the given type. An empty value
// becomes the zero watermark. For integer columns a stored legacy
// date-time string is converted to its epoch-millisecond equivalent;
// a value that parses neither way resets to zero rather than failing
// the cycle.
func normalizeWatermark(stored, colType string) string {
	if strings.TrimSpace(stored) == "" {
		return zeroWatermark(colType)
	}
	if !integerType(colType) {
		return stored
	}
	if _, err := strconv.ParseInt(stored, 10, 64); err == nil {
		return stored
	}
	if ts, err := time.Parse(legacyTimeLayout, stored); err == nil {
		return strconv.FormatInt(ts.UnixMilli(), 10)
	}
	return zeroIntWatermark
}

// compareTimestamps orders two updated_at values: numerically when the
// column type is integer-like, lexicographically otherwise. Integer
// values that fail to parse fall back to string comparison.
func compareTimestamps(a, b, colType string) int {
	if integerType(colType) {
		ai, aerr := strconv.ParseInt(a, 10, 64)
		bi, berr := strconv.ParseInt(b, 10, 64)
		if aerr == nil && berr == nil {
			switch {
			case ai < bi:
				return -1
			case ai > bi:
				return 1
			}
			return 0
		}
	}
	return strings.Compare(a, b)
}

// localWins reports whether an existing local row survives an incoming
// remote row. A remote row without an updated_at value never beats a
// local row that has one.
func localWins(local, remote sql.NullString, colType string) bool {
	if !local.Valid {
		return false
	}
	if !remote.Valid {
		return true
	}
	return compareTimestamps(local.String, remote.String, colType) > 0
}

// watermarkLiteral renders a watermark for embedding in a remote
// query. Integer watermarks embed bare; everything else is quoted.
func watermarkLiteral(watermark, colType string) string {
	if integerType(colType) {
		if _, err := strconv.ParseInt(watermark, 10, 64); err == nil {
			return watermark
		}
	}
	return "'" + strings.ReplaceAll(watermark, "'", "''") + "'"
}
