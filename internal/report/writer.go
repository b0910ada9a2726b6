package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
)

// Kind selects the export layout.
type Kind string

const (
	KindActive   Kind = "active"
	KindReturned Kind = "returned"
)

// ParseKind accepts "active" or "returned".
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindActive, KindReturned:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("unknown export %q (want active or returned)", s)
	}
}

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

func header(kind Kind) []string {
	if kind == KindReturned {
		return []string{"Code", "Dish", "Company", "Customer", "Returned By", "Return Date", "Return Time", "Days Since Return", "Overdue"}
	}
	return []string{"Code", "Dish", "Company", "Customer", "Creation Date", "Missing Days", "Overdue"}
}

func record(kind Kind, row Row) []string {
	overdue := ""
	if row.Overdue {
		overdue = "yes"
	}
	days := strconv.Itoa(row.Days)
	if kind == KindReturned {
		return []string{
			row.Code, row.Dish, row.Company, row.Customer, row.ReturnedBy,
			row.Date.Format(dateLayout), row.Date.Format(timeLayout), days, overdue,
		}
	}
	return []string{
		row.Code, row.Dish, row.Company, row.Customer,
		row.Date.Format(dateLayout), days, overdue,
	}
}

// WriteCSV writes rows with a header line.
func WriteCSV(w io.Writer, kind Kind, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header(kind)); err != nil {
		return err
	}
	for _, row := range rows {
		if err := cw.Write(record(kind, row)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTable writes rows as aligned text columns.
func WriteTable(w io.Writer, kind Kind, rows []Row) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	writeTabbed(tw, header(kind))
	for _, row := range rows {
		fields := record(kind, row)
		for i, f := range fields {
			if f == "" {
				fields[i] = "-"
			}
		}
		writeTabbed(tw, fields)
	}
	return tw.Flush()
}

func writeTabbed(w io.Writer, fields []string) {
	for i, f := range fields {
		if i > 0 {
			fmt.Fprint(w, "\t")
		}
		fmt.Fprint(w, f)
	}
	fmt.Fprintln(w)
}
