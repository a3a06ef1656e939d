package application

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/ericfisherdev/warrantypanel/internal/domain/model"
)

const (
	csvHeader          = "org_name,serial_number,warranty_expiry_date,days_until_expiry,is_expired"
	noOrganizationsRow = "No organizations found"
	csvDateLayout      = "2006-01-02"
)

// CSVContentType is the media type of WriteCSV output.
const CSVContentType = "text/csv"

// CSVFilename returns the download name for a report generated at t.
func CSVFilename(t time.Time) string {
	return "warranty_report_" + t.UTC().Format(csvDateLayout) + ".csv"
}

// NoRowsMessage is the placeholder shown when organizations exist but no
// device falls inside the window.
func NoRowsMessage(windowDays int) string {
	return fmt.Sprintf("No devices with warranty expiring within %d days", windowDays)
}

// WriteCSV writes the report as CSV. The header is bare; every data field is
// double-quoted with embedded quotes doubled. An empty report yields a single
// placeholder row.
func WriteCSV(w io.Writer, report *model.Report) error {
	bw := bufio.NewWriter(w)

	bw.WriteString(csvHeader)
	bw.WriteByte('\n')

	switch {
	case report.NoOrganizations():
		writeCSVRecord(bw, noOrganizationsRow, "", "", "", "")
	case len(report.Rows) == 0:
		writeCSVRecord(bw, NoRowsMessage(report.WindowDays), "", "", "", "")
	default:
		for _, row := range report.Rows {
			writeCSVRecord(bw,
				row.OrganizationName,
				row.SerialNumber,
				row.ExpiryDate.Format(csvDateLayout),
				strconv.Itoa(row.DaysUntilExpiry),
				yesNo(row.Expired),
			)
		}
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

func writeCSVRecord(bw *bufio.Writer, fields ...string) {
	for i, f := range fields {
		if i > 0 {
			bw.WriteByte(',')
		}
		bw.WriteByte('"')
		bw.WriteString(strings.ReplaceAll(f, `"`, `""`))
		bw.WriteByte('"')
	}
	bw.WriteByte('\n')
}

func yesNo(b bool) string {
	if b {
		return "YES"
	}
	return "NO"
}
