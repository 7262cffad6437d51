package errors

// Category-specific error constructors for cardinality estimation

// Catalog errors
func UndefinedTableError(tableName string) *Error {
	return Newf(UndefinedTable, "relation \"%s\" does not exist", tableName).
		WithTable(tableName)
}

func UndefinedColumnError(columnName, tableName string) *Error {
	if tableName != "" {
		return Newf(UndefinedColumn, "column %s.%s does not exist", tableName, columnName).
			WithTable(tableName).
			WithColumn(columnName)
	}
	return Newf(UndefinedColumn, "column \"%s\" does not exist", columnName).
		WithColumn(columnName)
}

// Estimation errors
func EstimationFailedError(operator string, cause error) *Error {
	return Newf(EstimationFailed, "statistics estimation failed: %v", cause).
		WithOperator(operator).
		WithCause(cause)
}

func UnsupportedOperatorError(operator string) *Error {
	return Newf(FeatureNotSupported, "no estimation rule for operator %s", operator).
		WithOperator(operator)
}

func UnsupportedExpressionError(expr string) *Error {
	return Newf(FeatureNotSupported, "cannot estimate expression %s", expr)
}

func InvalidPlanError(format string, args ...interface{}) *Error {
	return Newf(InvalidPlan, format, args...)
}

func DataTypeMismatchError(expected, actual string) *Error {
	return Newf(DatatypeMismatch, "expected type %s but got %s", expected, actual).
		WithHint("Cast the bound to the column type.")
}

// Configuration errors
func InvalidConfigError(field string, format string, args ...interface{}) *Error {
	return Newf(InvalidParameterValue, format, args...).
		WithDetailf("field %s", field)
}

func ConfigFileErrorf(path string, cause error) *Error {
	return Newf(ConfigFileError, "could not load configuration file \"%s\"", path).
		WithCause(cause)
}

// Statistics source errors
func StatisticsLoadError(table string, cause error) *Error {
	return Newf(IOError, "could not load statistics of \"%s\": %v", table, cause).
		WithTable(table).
		WithCause(cause)
}
