package domain

// Source column names in the SFPD incident export.
const (
	ColumnIncidentDatetime = "Incident Datetime"
	ColumnReportDatetime   = "Report Datetime"
	ColumnIncidentTime     = "Incident Time"
	ColumnDayOfWeek        = "Incident Day of Week"
	ColumnIncidentYear     = "Incident Year"
	ColumnCategory         = "Incident Category"
	ColumnLatitude         = "Latitude"
	ColumnLongitude        = "Longitude"
	ColumnIncidentID       = "Incident ID"
)

// RequiredColumns is the static allow-list every input must carry. All other
// columns are dropped at load time.
var RequiredColumns = []string{
	ColumnIncidentDatetime,
	ColumnReportDatetime,
	ColumnIncidentTime,
	ColumnDayOfWeek,
	ColumnIncidentYear,
	ColumnCategory,
	ColumnLatitude,
	ColumnLongitude,
}

// OptionalColumns are kept when present. Incident ID only serves to label
// records in logs and error reports.
var OptionalColumns = []string{
	ColumnIncidentID,
}

// MissingColumns returns the required columns absent from header, in allow-list order.
func MissingColumns(header []string) []string {
	present := make(map[string]struct{}, len(header))
	for _, h := range header {
		present[h] = struct{}{}
	}
	var missing []string
	for _, c := range RequiredColumns {
		if _, ok := present[c]; !ok {
			missing = append(missing, c)
		}
	}
	return missing
}

// AllowedColumns returns the allow-listed columns present in header: every
// required column followed by whichever optional columns exist.
func AllowedColumns(header []string) []string {
	present := make(map[string]struct{}, len(header))
	for _, h := range header {
		present[h] = struct{}{}
	}
	cols := make([]string, 0, len(RequiredColumns)+len(OptionalColumns))
	cols = append(cols, RequiredColumns...)
	for _, c := range OptionalColumns {
		if _, ok := present[c]; ok {
			cols = append(cols, c)
		}
	}
	return cols
}
