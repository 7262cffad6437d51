package errors

// SQLSTATE codes used by the estimator.
// Based on PostgreSQL error codes: https://www.postgresql.org/docs/current/errcodes-appendix.html

// Class 0A - Feature Not Supported
const (
	FeatureNotSupported = "0A000"
)

// Class 22 - Data Exception
const (
	DataException             = "22000"
	InvalidParameterValue     = "22023"
	InvalidTextRepresentation = "22P02"
	NumericValueOutOfRange    = "22003"
)

// Class 42 - Syntax Error or Access Rule Violation
const (
	UndefinedColumn  = "42703"
	UndefinedTable   = "42P01"
	DatatypeMismatch = "42804"
)

// Class 58 - System Error
const (
	IOError = "58030"
)

// Class F0 - Configuration File Error
const (
	ConfigFileError = "F0000"
	LockFileExists  = "F0001"
)

// Class XX - Internal Error
const (
	InternalError  = "XX000"
	DataCorrupted  = "XX001"
	IndexCorrupted = "XX002"
)

// Estimator specific codes, in the XX class like other internal failures.
const (
	// EstimationFailed marks a per-operator rule that could not produce
	// statistics.
	EstimationFailed = "XXE01"
	// InvalidPlan marks a plan whose shape does not match its operator.
	InvalidPlan = "XXE02"
)

// CodeCategory returns the two character class of a SQLSTATE code.
func CodeCategory(code string) string {
	if len(code) < 2 {
		return ""
	}
	return code[:2]
}
