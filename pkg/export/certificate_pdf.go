package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// Signatory is printed under a signature line on the certificate, in order.
type Signatory struct {
	Title string
	Name  string
}

// CertificateData is everything embedded in a graduation certificate.
type CertificateData struct {
	StudentName    string
	ProgramName    string
	DistrictName   string
	GraduationDate time.Time
	Signatories    []Signatory
}

// CertificateRenderer renders graduation certificates as landscape A4 PDFs.
type CertificateRenderer struct {
	institution string
	compress    bool
}

// CertificateOption customises the renderer.
type CertificateOption func(*CertificateRenderer)

// WithInstitution overrides the heading printed above the certificate title.
func WithInstitution(name string) CertificateOption {
	return func(r *CertificateRenderer) {
		if strings.TrimSpace(name) != "" {
			r.institution = name
		}
	}
}

// WithCompression toggles stream compression; disabled output is greppable.
func WithCompression(enabled bool) CertificateOption {
	return func(r *CertificateRenderer) {
		r.compress = enabled
	}
}

// NewCertificateRenderer constructs a renderer.
func NewCertificateRenderer(opts ...CertificateOption) *CertificateRenderer {
	r := &CertificateRenderer{institution: "Bible School", compress: true}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Render produces the certificate bytes. Output is byte-for-byte stable for equal
// input: the PDF creation date is pinned to the graduation date.
func (r *CertificateRenderer) Render(data CertificateData) ([]byte, error) {
	if strings.TrimSpace(data.StudentName) == "" || strings.TrimSpace(data.ProgramName) == "" {
		return nil, fmt.Errorf("certificate requires student and program names")
	}
	if data.GraduationDate.IsZero() {
		return nil, fmt.Errorf("certificate requires a graduation date")
	}

	stamp := data.GraduationDate.UTC()
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetCompression(r.compress)
	pdf.SetCatalogSort(true)
	pdf.SetCreationDate(stamp)
	pdf.SetModificationDate(stamp)
	pdf.SetTitle(fmt.Sprintf("%s certificate - %s", data.ProgramName, data.StudentName), true)
	pdf.SetAuthor(r.institution, true)
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	tr := pdf.UnicodeTranslatorFromDescriptor("")
	width, height := pdf.GetPageSize()

	pdf.SetDrawColor(120, 90, 30)
	pdf.SetLineWidth(1.2)
	pdf.Rect(10, 10, width-20, height-20, "D")
	pdf.SetLineWidth(0.4)
	pdf.Rect(14, 14, width-28, height-28, "D")

	pdf.SetY(30)
	pdf.SetFont("Times", "B", 18)
	pdf.CellFormat(0, 10, tr(strings.ToUpper(r.institution)), "", 1, "C", false, 0, "")
	pdf.SetFont("Times", "B", 30)
	pdf.CellFormat(0, 16, tr("Certificate of Graduation"), "", 1, "C", false, 0, "")
	pdf.Ln(6)

	pdf.SetFont("Times", "I", 14)
	pdf.CellFormat(0, 8, tr("This is to certify that"), "", 1, "C", false, 0, "")
	pdf.SetFont("Times", "B", 26)
	pdf.CellFormat(0, 14, tr(data.StudentName), "", 1, "C", false, 0, "")
	pdf.SetFont("Times", "I", 14)
	pdf.CellFormat(0, 8, tr("has successfully completed the"), "", 1, "C", false, 0, "")
	pdf.SetFont("Times", "B", 20)
	pdf.CellFormat(0, 12, tr(data.ProgramName+" Program"), "", 1, "C", false, 0, "")

	pdf.SetFont("Times", "", 13)
	when := "Awarded on " + stamp.Format("2 January 2006")
	if district := strings.TrimSpace(data.DistrictName); district != "" {
		when += " - " + district
	}
	pdf.CellFormat(0, 8, tr(when), "", 1, "C", false, 0, "")

	r.drawSignatories(pdf, tr, data.Signatories, width, height)

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render certificate: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *CertificateRenderer) drawSignatories(pdf *gofpdf.Fpdf, tr func(string) string, signatories []Signatory, width, height float64) {
	if len(signatories) == 0 {
		return
	}
	usable := width - 60
	slot := usable / float64(len(signatories))
	lineY := height - 45
	pdf.SetDrawColor(0, 0, 0)
	pdf.SetLineWidth(0.3)
	for i, s := range signatories {
		x := 30 + slot*float64(i)
		pdf.Line(x+8, lineY, x+slot-8, lineY)
		pdf.SetXY(x, lineY+2)
		pdf.SetFont("Times", "B", 12)
		pdf.CellFormat(slot, 6, tr(s.Name), "", 2, "C", false, 0, "")
		pdf.SetFont("Times", "", 11)
		pdf.CellFormat(slot, 6, tr(s.Title), "", 0, "C", false, 0, "")
	}
}
