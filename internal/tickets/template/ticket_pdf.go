// Package template renders printable tickets.
package template

import (
	"bytes"
	"fmt"
	"image/png"

	"github.com/signintech/gopdf"
	"golang.org/x/image/font/gofont/goregular"

	"ms-settlement/internal/models"
)

const fontFamily = "goregular"

// TicketDetails is everything printed on a ticket besides the QR code.
type TicketDetails struct {
	Ticket    models.Ticket
	EventName string
	Location  string
	ZoneName  string
	Currency  string
}

type TicketPDFGenerator struct{}

func NewTicketPDFGenerator() *TicketPDFGenerator {
	return &TicketPDFGenerator{}
}

// Generate renders an A4 ticket. Only paid or used tickets carry a QR code.
func (g *TicketPDFGenerator) Generate(d TicketDetails) ([]byte, error) {
	pdf := &gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	pdf.AddPage()

	if err := pdf.AddTTFFontData(fontFamily, goregular.TTF); err != nil {
		return nil, fmt.Errorf("failed to load font: %w", err)
	}
	if err := pdf.SetFont(fontFamily, "", 18); err != nil {
		return nil, fmt.Errorf("failed to set font: %w", err)
	}

	pdf.SetX(40)
	pdf.SetY(40)
	if err := pdf.Cell(nil, d.EventName); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}

	if err := pdf.SetFont(fontFamily, "", 12); err != nil {
		return nil, fmt.Errorf("failed to set font: %w", err)
	}
	pdf.SetY(80)
	for _, line := range ticketLines(d) {
		pdf.SetX(40)
		if err := pdf.Cell(nil, line); err != nil {
			return nil, fmt.Errorf("failed to write ticket info: %w", err)
		}
		pdf.Br(20)
	}

	if len(d.Ticket.QRCode) > 0 {
		img, err := png.Decode(bytes.NewReader(d.Ticket.QRCode))
		if err != nil {
			return nil, fmt.Errorf("failed to decode QR code: %w", err)
		}
		if err := pdf.ImageFrom(img, 40, pdf.GetY()+20, &gopdf.Rect{W: 180, H: 180}); err != nil {
			return nil, fmt.Errorf("failed to draw QR code: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	return buf.Bytes(), nil
}

func ticketLines(d TicketDetails) []string {
	t := d.Ticket
	lines := []string{
		"Ticket: " + t.ID,
		"Venue: " + d.Location,
		"Zone: " + d.ZoneName,
		fmt.Sprintf("Price: %s %s", FormatAmount(t.Price), d.Currency),
		"Status: " + string(t.Status),
		"Issued: " + t.CreatedAt.Format("2006-01-02 15:04 MST"),
	}
	if t.Status == models.TicketCancelled && t.CancellationReason != "" {
		lines = append(lines, "Cancelled: "+t.CancellationReason)
	}
	return lines
}

// FormatAmount prints minor units as a decimal amount, e.g. 5000 as 50.00.
func FormatAmount(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}
