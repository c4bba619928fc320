package excel

import "errors"

var (
	// ErrMissingFilePath is returned when file path is not specified
	ErrMissingFilePath = errors.New("file path is required")

	// ErrMissingSheetName is returned when sheet name is not specified
	ErrMissingSheetName = errors.New("sheet name is required")

	// ErrSheetConflict is returned when the table and the options share a sheet
	ErrSheetConflict = errors.New("options sheet must differ from the table sheet")

	// ErrInvalidID is returned when a row carries an id that is not a positive integer
	ErrInvalidID = errors.New("invalid id cell")
)
