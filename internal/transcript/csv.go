package transcript

import (
	"strings"
)

// DefaultTimeLayout renders timestamps as a two-digit 12-hour clock
const DefaultTimeLayout = "03:04 PM"

// CSV layout
const (
	CSVFileName    = "transcript.csv"
	CSVContentType = "text/csv;charset=utf-8"
)

var csvHeader = []string{"Sender", "Timestamp", "Text"}

var newlines = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// EncodeCSV writes one row per turn under a Sender,Timestamp,Text header.
// Every field is double-quoted with embedded quotes doubled, line breaks in
// text become single spaces, and rows are joined by "\n".
func EncodeCSV(turns []Turn, layout string) []byte {
	if layout == "" {
		layout = DefaultTimeLayout
	}

	rows := make([]string, 0, len(turns)+1)
	rows = append(rows, csvRow(csvHeader...))
	for _, t := range turns {
		rows = append(rows, csvRow(
			string(t.Speaker),
			t.CreatedAt.Format(layout),
			newlines.Replace(t.Text),
		))
	}
	return []byte(strings.Join(rows, "\n"))
}

func csvRow(fields ...string) string {
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = `"` + strings.ReplaceAll(f, `"`, `""`) + `"`
	}
	return strings.Join(quoted, ",")
}
