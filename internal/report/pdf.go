package report

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/uatdecode/uatd/internal/rules"
)

// SaveAcceptancePDF renders the given acceptance report into an
// English-language PDF document.
func SaveAcceptancePDF(rep rules.AcceptanceReport, out string) error {
	return SaveAcceptancePDFLang(rep, out, LangEnglish)
}

// SaveAcceptancePDFLang renders the acceptance report localized to lang.
func SaveAcceptancePDFLang(rep rules.AcceptanceReport, out string, lang Language) error {
	t := NewTranslator(lang)

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(t.T("report.title"), false)
	pdf.SetAuthor("uatctl", false)
	pdf.SetCreator("uatctl", false)
	pdf.SetMargins(15, 20, 15)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()

	addPDFTitle(pdf, t.T("report.title"))
	addSummarySection(pdf, t, rep)
	addSessionStatsSection(pdf, t, rep)
	addFrameCountsSection(pdf, t, rep.FrameCounts)
	addFindingsSection(pdf, t, rep.Findings)

	if pdf.Err() {
		return pdf.Error()
	}
	return pdf.OutputFileAndClose(out)
}

func addPDFTitle(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, title)
	pdf.Ln(12)
}

func addSummarySection(pdf *gofpdf.Fpdf, t Translator, rep rules.AcceptanceReport) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, t.T("section.summary"))
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 11)
	items := []struct {
		label string
		value string
	}{
		{label: t.T("field.total_findings"), value: strconv.Itoa(rep.Summary.Total)},
		{label: t.T("field.errors"), value: strconv.Itoa(rep.Summary.Errors)},
		{label: t.T("field.warnings"), value: strconv.Itoa(rep.Summary.Warnings)},
		{label: t.T("field.overall"), value: passLabel(t, rep.Summary.Pass)},
	}
	for _, item := range items {
		pdf.CellFormat(60, 6, item.label, "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, item.value, "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)
}

func addSessionStatsSection(pdf *gofpdf.Fpdf, t Translator, rep rules.AcceptanceReport) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, t.T("section.session_stats"))
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(60, 6, t.T("field.resync_count"), "", 0, "L", false, 0, "")
	pdf.CellFormat(0, 6, strconv.Itoa(rep.ResyncCount), "", 1, "L", false, 0, "")
	pdf.CellFormat(60, 6, t.T("field.mean_error_rate"), "", 0, "L", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("%.4f", rep.MeanCorrectedErrorRate), "", 1, "L", false, 0, "")
	pdf.Ln(4)
}

func addFrameCountsSection(pdf *gofpdf.Fpdf, t Translator, counts map[string]int) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, t.T("section.frame_counts"))
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 11)
	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		pdf.CellFormat(60, 6, k, "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, strconv.Itoa(counts[k]), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)
}

func addFindingsSection(pdf *gofpdf.Fpdf, t Translator, findings []rules.Diagnostic) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, t.T("section.findings"))
	pdf.Ln(9)

	if len(findings) == 0 {
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 6, t.T("value.no_findings"), "", "L", false)
		return
	}

	for i, d := range findings {
		pdf.SetFont("Helvetica", "B", 10)
		header := fmt.Sprintf("%d. %s (%s)", i+1, d.RuleId, severityLabel(d.Severity))
		pdf.MultiCell(0, 5, header, "", "L", false)

		if msg := strings.TrimSpace(d.Message); msg != "" {
			pdf.SetFont("Helvetica", "", 10)
			pdf.MultiCell(0, 5, msg, "", "L", false)
		}

		if !d.Ts.IsZero() {
			pdf.SetFont("Helvetica", "", 9)
			pdf.MultiCell(0, 4, d.Ts.Format(time.RFC3339), "", "L", false)
		}

		if len(d.Refs) > 0 {
			pdf.SetFont("Helvetica", "", 9)
			pdf.MultiCell(0, 4, t.T("field.refs")+": "+strings.Join(d.Refs, ", "), "", "L", false)
		}

		pdf.Ln(2)
	}
}

func passLabel(t Translator, pass bool) string {
	if pass {
		return t.T("value.pass")
	}
	return t.T("value.fail")
}

func severityLabel(sev rules.Severity) string {
	if s := strings.TrimSpace(string(sev)); s != "" {
		return s
	}
	return "UNKNOWN"
}
