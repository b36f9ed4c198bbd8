package report

import (
	"path/filepath"
	"testing"

	"github.com/uatdecode/uatd/internal/rules"
)

func sampleReport() rules.AcceptanceReport {
	var rep rules.AcceptanceReport
	rep.Summary.Total = 2
	rep.Summary.Errors = 0
	rep.Summary.Warnings = 1
	rep.Summary.Pass = true
	rep.FrameCounts = map[string]int{"downlink_short": 10, "uplink": 2}
	rep.ResyncCount = 1
	rep.MeanCorrectedErrorRate = 0.25
	rep.RSSIHistogram = []int{0, 1, 2}
	rep.Findings = []rules.Diagnostic{
		{RuleId: "R1", Severity: rules.WARN, Message: "heads up"},
	}
	return rep
}

func TestSaveAndLoadAcceptanceJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "acceptance.json")
	rep := sampleReport()

	if err := SaveAcceptanceJSON(rep, path); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadAcceptanceJSON(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Summary.Total != rep.Summary.Total || loaded.FrameCounts["uplink"] != 2 {
		t.Errorf("loaded = %+v", loaded)
	}
}

func TestSaveAcceptancePDF(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "acceptance.pdf")
	if err := SaveAcceptancePDF(sampleReport(), path); err != nil {
		t.Fatal(err)
	}
}

func TestSaveAcceptancePDFLangTurkish(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "acceptance_tr.pdf")
	if err := SaveAcceptancePDFLang(sampleReport(), path, LangTurkish); err != nil {
		t.Fatal(err)
	}
}

func TestSaveAcceptancePDFEmptyFindings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "acceptance_empty.pdf")
	rep := sampleReport()
	rep.Findings = nil
	if err := SaveAcceptancePDF(rep, path); err != nil {
		t.Fatal(err)
	}
}
