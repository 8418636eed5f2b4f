// Package domain models San Francisco Police Department incident report data
// and the transformations that turn it into regression-ready tables.
//
// # Data Source
//
// Records originate from the SFPD "Police Department Incident Reports: 2018 to
// Present" CSV export, available at
// https://data.sfgov.org/Public-Safety/Police-Department-Incident-Reports-2018-to-Present/wg3w-h783.
// One row is one incident report. The export carries roughly 35 columns; only
// the allow-list in [RequiredColumns] and [OptionalColumns] survives loading.
//
// # SFPD Data Conventions
//
// Datetime format:
//
//	"2023/03/15 02:30:00 PM" for both "Incident Datetime" and "Report Datetime".
//	Other exports of the same dataset use ISO 8601 ("2023-03-15T14:30:00.000").
//	Both are accepted by [ParseTimestamp], which falls back to a general-purpose
//	parser for anything else.
//
// Time of day:
//
//	"Incident Time" is "HH:MM" in 24-hour notation, e.g. "14:30". The hour
//	bucket is the whole number of hours between midnight and that time.
//
// Day of week:
//
//	"Incident Day of Week" holds the English weekday name. Monday through
//	Saturday map to 1..6; every other value maps to 7 under the reference
//	mapping, so "Sunday" and malformed labels are indistinguishable. See
//	[DayMapping] for the ISO alternative.
//
// Coordinates:
//
//	"Latitude" and "Longitude" are WGS-84 decimal degrees. Roughly 5% of rows
//	leave both empty; those rows never reach elevation enrichment.
//
// # Elevation Bins
//
// Incidents with a known ground elevation are counted into fixed-width bins:
//
//	bin 0        e < 0
//	bin i        10(i-1) <= e < 10i   for 1 <= i <= 26
//	bin 27       e >= 260
//
// Bin i is labelled 10*i in the incident-count regression.
package domain
