package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// InvoiceLine is a single billable row on the service invoice.
type InvoiceLine struct {
	Name     string
	Quantity int
	Price    float64
}

// Invoice carries the data rendered onto the service invoice PDF.
type Invoice struct {
	InvoiceNo   string
	InvoiceDate time.Time
	BookingID   string
	Vehicle     string
	Customer    string
	Merchant    string
	Lines       []InvoiceLine
	PartsTotal  float64
	LabourCost  float64
	GST         float64
	Total       float64
}

// InvoicePDFExporter renders service invoices as PDF documents.
type InvoicePDFExporter struct{}

// NewInvoicePDFExporter constructs an invoice exporter.
func NewInvoicePDFExporter() *InvoicePDFExporter {
	return &InvoicePDFExporter{}
}

// Render produces the invoice PDF bytes.
func (e *InvoicePDFExporter) Render(inv Invoice) ([]byte, error) {
	if inv.InvoiceNo == "" {
		return nil, fmt.Errorf("invoice number required")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 10, "SERVICE INVOICE", "", 1, "C", false, 0, "")
	pdf.Ln(3)

	pdf.SetFont("Arial", "", 10)
	meta := [][2]string{
		{"Invoice No", inv.InvoiceNo},
		{"Invoice Date", inv.InvoiceDate.Format("02 Jan 2006")},
		{"Booking", inv.BookingID},
		{"Vehicle", inv.Vehicle},
		{"Customer", inv.Customer},
		{"Merchant", inv.Merchant},
	}
	for _, kv := range meta {
		if kv[1] == "" {
			continue
		}
		pdf.CellFormat(35, 6, kv[0], "", 0, "", false, 0, "")
		pdf.CellFormat(0, 6, kv[1], "", 1, "", false, 0, "")
	}
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(100, 8, "Part / Service", "1", 0, "", false, 0, "")
	pdf.CellFormat(25, 8, "Qty", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 8, "Price", "1", 0, "R", false, 0, "")
	pdf.CellFormat(35, 8, "Amount", "1", 1, "R", false, 0, "")

	pdf.SetFont("Arial", "", 9)
	for _, line := range inv.Lines {
		qty := line.Quantity
		if qty <= 0 {
			qty = 1
		}
		pdf.CellFormat(100, 7, line.Name, "1", 0, "", false, 0, "")
		pdf.CellFormat(25, 7, fmt.Sprintf("%d", qty), "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 7, fmt.Sprintf("%.2f", line.Price), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 7, fmt.Sprintf("%.2f", line.Price*float64(qty)), "1", 1, "R", false, 0, "")
	}
	pdf.Ln(2)

	totals := [][2]string{
		{"Parts Total", fmt.Sprintf("%.2f", inv.PartsTotal)},
		{"Labour", fmt.Sprintf("%.2f", inv.LabourCost)},
		{"GST", fmt.Sprintf("%.2f", inv.GST)},
	}
	pdf.SetFont("Arial", "", 10)
	for _, kv := range totals {
		pdf.CellFormat(155, 6, kv[0], "", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, kv[1], "", 1, "R", false, 0, "")
	}
	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(155, 8, "Total", "", 0, "R", false, 0, "")
	pdf.CellFormat(35, 8, fmt.Sprintf("%.2f", inv.Total), "", 1, "R", false, 0, "")

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render invoice pdf: %w", err)
	}
	return buf.Bytes(), nil
}
