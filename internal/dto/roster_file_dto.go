package dto

// RosterImportResponse summarises a spreadsheet import.
type RosterImportResponse struct {
	Imported    int   `json:"imported"`
	Skipped     int   `json:"skipped"`
	SkippedRows []int `json:"skipped_rows"`
}
