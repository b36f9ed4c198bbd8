package rules

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/uatdecode/uatd/internal/uat"
)

func statsWithFrames(shorts, longs, uplinks int, errorsTotal int, rssi []float64) *SessionStats {
	s := NewSessionStats()
	for i := 0; i < shorts; i++ {
		s.Observe(uat.DownlinkShort, 0, 0)
	}
	for i := 0; i < longs; i++ {
		s.Observe(uat.DownlinkLong, 0, 0)
	}
	for i := 0; i < uplinks; i++ {
		s.Observe(uat.Uplink, 0, 0)
	}
	s.CorrectedErrors = errorsTotal
	s.RSSISamples = rssi
	s.DurationSeconds = 10
	return s
}

func TestEvalRunsRegisteredCheck(t *testing.T) {
	pack := RulePack{Rules: []Rule{
		{RuleId: "R1", CheckFunc: "always-info", Severity: INFO},
	}}
	e := NewEngine(pack)
	called := false
	e.Register("always-info", func(ctx *Context, rule Rule) (Diagnostic, error) {
		called = true
		return Diagnostic{RuleId: rule.RuleId, Severity: INFO, Message: "ok"}, nil
	})
	diags, err := e.Eval(&Context{Stats: NewSessionStats()})
	if err != nil {
		t.Fatal(err)
	}
	if !called {
		t.Fatal("expected registered check to run")
	}
	if len(diags) != 1 || diags[0].Message != "ok" {
		t.Fatalf("diags = %+v", diags)
	}
}

func TestEvalWarnsOnMissingCheckFunc(t *testing.T) {
	pack := RulePack{Rules: []Rule{{RuleId: "R1", CheckFunc: "nonexistent"}}}
	e := NewEngine(pack)
	diags, err := e.Eval(&Context{Stats: NewSessionStats()})
	if err != nil {
		t.Fatal(err)
	}
	if len(diags) != 1 || diags[0].Severity != WARN {
		t.Fatalf("diags = %+v", diags)
	}
}

func TestEvalNilContextIsError(t *testing.T) {
	e := NewEngine(RulePack{})
	if _, err := e.Eval(nil); err == nil {
		t.Fatal("expected error for nil context")
	}
}

func TestMakeAcceptancePassesWithNoErrors(t *testing.T) {
	pack := RulePack{Rules: []Rule{{RuleId: "R1", CheckFunc: "warn-only"}}}
	e := NewEngine(pack)
	e.Register("warn-only", func(ctx *Context, rule Rule) (Diagnostic, error) {
		return Diagnostic{RuleId: rule.RuleId, Severity: WARN, Message: "heads up"}, nil
	})
	stats := statsWithFrames(3, 2, 1, 4, []float64{-10, -20})
	if _, err := e.Eval(&Context{Stats: stats}); err != nil {
		t.Fatal(err)
	}
	rep := e.MakeAcceptance(stats)
	if !rep.Summary.Pass {
		t.Error("expected pass with only warnings")
	}
	if rep.Summary.Warnings != 1 {
		t.Errorf("Warnings = %d, want 1", rep.Summary.Warnings)
	}
	if rep.FrameCounts["downlink_short"] != 3 {
		t.Errorf("FrameCounts = %+v", rep.FrameCounts)
	}
	if rep.MeanCorrectedErrorRate != 4.0/6.0 {
		t.Errorf("MeanCorrectedErrorRate = %v", rep.MeanCorrectedErrorRate)
	}
}

func TestMakeAcceptanceFailsOnError(t *testing.T) {
	pack := RulePack{Rules: []Rule{{RuleId: "R1", CheckFunc: "fail"}}}
	e := NewEngine(pack)
	e.Register("fail", func(ctx *Context, rule Rule) (Diagnostic, error) {
		return Diagnostic{RuleId: rule.RuleId, Severity: ERROR, Message: "bad"}, nil
	})
	if _, err := e.Eval(&Context{Stats: NewSessionStats()}); err != nil {
		t.Fatal(err)
	}
	rep := e.MakeAcceptance(NewSessionStats())
	if rep.Summary.Pass {
		t.Error("expected failure when an ERROR diagnostic is present")
	}
}

func TestWriteDiagnosticsNDJSON(t *testing.T) {
	pack := RulePack{Rules: []Rule{{RuleId: "R1", CheckFunc: "ok"}}}
	e := NewEngine(pack)
	e.Register("ok", func(ctx *Context, rule Rule) (Diagnostic, error) {
		return Diagnostic{RuleId: rule.RuleId, Severity: INFO, Message: "fine"}, nil
	})
	if _, err := e.Eval(&Context{Stats: NewSessionStats()}); err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "diag.ndjson")
	if err := e.WriteDiagnosticsNDJSON(path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var d Diagnostic
	if err := json.Unmarshal(data[:len(data)-1], &d); err != nil {
		t.Fatalf("unmarshal ndjson line: %v", err)
	}
	if d.Message != "fine" {
		t.Errorf("Message = %q", d.Message)
	}
}

func TestSessionStatsFrameRateZeroDuration(t *testing.T) {
	s := NewSessionStats()
	if rate := s.FrameRate(); rate != 0 {
		t.Errorf("FrameRate = %v, want 0", rate)
	}
}

func TestSessionStatsRSSIHistogramClampsOutOfRange(t *testing.T) {
	s := NewSessionStats()
	s.RSSISamples = []float64{-100, -1, 5}
	hist := s.RSSIHistogram(10, -80, 0)
	if hist[0] == 0 {
		t.Error("expected below-range sample clamped into first bucket")
	}
	if hist[9] == 0 {
		t.Error("expected above-range sample clamped into last bucket")
	}
}

func TestLoadRulePackRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pack.json")
	content := `{"rulePackId":"default","version":"1.0.0","rules":[{"ruleId":"R1","checkFunction":"MinFrameRate","params":{"min_frame_rate":1}}]}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	rp, err := LoadRulePack(path)
	if err != nil {
		t.Fatal(err)
	}
	if rp.RulePackId != "default" || len(rp.Rules) != 1 {
		t.Fatalf("rp = %+v", rp)
	}
}
