// Package report renders the leave register as a printable PDF.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/warp/leave-ledger/generic"
	"github.com/warp/leave-ledger/leave"
)

// Register is the data of one leave register document.
type Register struct {
	Title       string
	Filter      string // human-readable description of the list filter
	GeneratedAt time.Time
	Counts      leave.StatusCounts
	Requests    []leave.Request
	// Names maps employee and approver ids to display names. Ids without
	// an entry are printed as is.
	Names map[generic.EntityID]string
}

func (r Register) name(id generic.EntityID) string {
	if n, ok := r.Names[id]; ok && n != "" {
		return n
	}
	return string(id)
}

var columns = []struct {
	header string
	width  float64
}{
	{"Employee", 42},
	{"Type", 20},
	{"From", 24},
	{"To", 24},
	{"Days", 14},
	{"Status", 22},
	{"Approver", 40},
	{"Reason", 91},
}

// WriteRegister writes r as an A4 landscape table.
func WriteRegister(w io.Writer, r Register) error {
	pdf := gofpdf.New("L", "mm", "A4", "")
	// Core fonts are cp1252; text must be translated from UTF-8 first.
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(r.Title, true)
	pdf.SetAutoPageBreak(true, 12)
	pdf.SetFooterFunc(func() {
		pdf.SetY(-10)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(0, 6, fmt.Sprintf("Page %d", pdf.PageNo()), "", 0, "R", false, 0, "")
	})
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(0, 10, tr(r.Title))
	pdf.Ln(10)
	pdf.SetFont("Helvetica", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Generated %s", r.GeneratedAt.UTC().Format("2006-01-02 15:04 MST")))
	pdf.Ln(6)
	if r.Filter != "" {
		pdf.Cell(0, 6, tr("Filter: "+r.Filter))
		pdf.Ln(6)
	}
	pdf.Cell(0, 6, fmt.Sprintf("Pending %d   Approved %d   Rejected %d   Cancelled %d   Total %d",
		r.Counts.Pending, r.Counts.Approved, r.Counts.Rejected, r.Counts.Cancelled, r.Counts.All))
	pdf.Ln(9)

	header := func() {
		pdf.SetFont("Helvetica", "B", 9)
		pdf.SetFillColor(230, 230, 230)
		for _, c := range columns {
			pdf.CellFormat(c.width, 7, c.header, "1", 0, "L", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Helvetica", "", 9)
	}
	header()

	_, pageHeight := pdf.GetPageSize()
	for _, req := range r.Requests {
		if pdf.GetY()+7 > pageHeight-15 {
			pdf.AddPage()
			header()
		}
		days := req.DaysRequested.Value.String()
		if req.IsHalfDay {
			days += " " + string(req.HalfDayPart)
		}
		row := []string{
			cellText(tr, r.name(req.EmployeeID), 24),
			string(req.Type),
			req.Period.Start.String(),
			req.Period.End.String(),
			days,
			string(req.Status),
			cellText(tr, r.name(req.ApproverID), 22),
			cellText(tr, req.Reason, 60),
		}
		for i, c := range columns {
			pdf.CellFormat(c.width, 7, row[i], "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}
	if len(r.Requests) == 0 {
		pdf.CellFormat(0, 7, "No requests match this filter.", "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
	}

	return pdf.Output(w)
}

// cellText shortens s to n runes, then converts it for the core font.
// Runes outside cp1252 cannot be drawn; tr prints them as dots.
func cellText(tr func(string) string, s string, n int) string {
	return tr(truncate(s, n))
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}
