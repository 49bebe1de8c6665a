package certificate

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-pdf/fpdf"

	appI18n "github.com/cvglobal/aula/internal/i18n"
)

// Document is the content printed on a certificate.
type Document struct {
	Email      string
	CourseName string
	Grade      float64
	IssuedAt   time.Time
}

// Render draws a one-page landscape certificate. Labels are translated
// with the localizer in ctx.
func Render(ctx context.Context, d Document) ([]byte, error) {
	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetCreationDate(d.IssuedAt)
	pdf.SetTitle(appI18n.T(ctx, "CertTitle"), true)
	pdf.SetAuthor(appI18n.T(ctx, "AppTitle"), true)
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	// Core fonts are cp1252; translate so accented text prints correctly.
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	w, h := pdf.GetPageSize()

	pdf.SetDrawColor(40, 70, 120)
	pdf.SetLineWidth(1.2)
	pdf.Rect(10, 10, w-20, h-20, "D")
	pdf.SetLineWidth(0.4)
	pdf.Rect(14, 14, w-28, h-28, "D")

	center := func(y float64, style string, size float64, text string) {
		pdf.SetFont("Helvetica", style, size)
		pdf.SetXY(20, y)
		pdf.CellFormat(w-40, size*0.6, tr(text), "", 0, "C", false, 0, "")
	}

	pdf.SetTextColor(40, 70, 120)
	center(38, "B", 28, appI18n.T(ctx, "CertTitle"))

	pdf.SetTextColor(0, 0, 0)
	center(70, "", 14, appI18n.T(ctx, "CertAwardedTo"))
	center(84, "B", 20, d.Email)
	center(106, "", 14, appI18n.T(ctx, "CertForCompleting"))
	center(120, "B", 20, d.CourseName)

	grade := strconv.FormatFloat(d.Grade, 'f', -1, 64)
	center(146, "", 12, appI18n.Td(ctx, "CertGrade", map[string]any{"Grade": grade}))
	center(156, "", 12, appI18n.Td(ctx, "CertDate", map[string]any{"Date": d.IssuedAt.Format("02/01/2006")}))

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}
