package rules

import (
	"testing"

	"github.com/uatdecode/uatd/internal/session"
	"github.com/uatdecode/uatd/internal/uat"
)

func TestCheckMinFrameRatePassAndFail(t *testing.T) {
	stats := statsWithFrames(20, 0, 0, 0, nil) // 20 frames / 10s = 2 fps
	ctx := &Context{Stats: stats}

	pass, err := CheckMinFrameRate(ctx, Rule{Params: map[string]any{"min_frame_rate": 1.0}})
	if err != nil || pass.Severity == ERROR {
		t.Errorf("expected pass, got %+v err=%v", pass, err)
	}

	fail, err := CheckMinFrameRate(ctx, Rule{Severity: ERROR, Params: map[string]any{"min_frame_rate": 5.0}})
	if err != nil || fail.Severity != ERROR {
		t.Errorf("expected fail, got %+v err=%v", fail, err)
	}
}

func TestCheckMinFrameRateMissingParam(t *testing.T) {
	d, err := CheckMinFrameRate(&Context{Stats: NewSessionStats()}, Rule{})
	if err != nil {
		t.Fatal(err)
	}
	if d.Severity != ERROR {
		t.Errorf("expected ERROR for missing param, got %v", d.Severity)
	}
}

func TestCheckMaxErrorRate(t *testing.T) {
	stats := statsWithFrames(10, 0, 0, 5, nil) // 0.5 errors/frame
	ctx := &Context{Stats: stats}

	pass, _ := CheckMaxErrorRate(ctx, Rule{Params: map[string]any{"max_error_rate": 1.0}})
	if pass.Severity == ERROR {
		t.Errorf("expected pass, got %+v", pass)
	}
	fail, _ := CheckMaxErrorRate(ctx, Rule{Severity: ERROR, Params: map[string]any{"max_error_rate": 0.1}})
	if fail.Severity != ERROR {
		t.Errorf("expected fail, got %+v", fail)
	}
}

func TestCheckRSSIFloor(t *testing.T) {
	stats := statsWithFrames(1, 0, 0, 0, []float64{-10, -20, -30})
	ctx := &Context{Stats: stats}

	pass, _ := CheckRSSIFloor(ctx, Rule{Params: map[string]any{"rssi_floor": -50.0}})
	if pass.Severity == ERROR {
		t.Errorf("expected pass, got %+v", pass)
	}
	fail, _ := CheckRSSIFloor(ctx, Rule{Severity: ERROR, Params: map[string]any{"rssi_floor": 0.0}})
	if fail.Severity != ERROR {
		t.Errorf("expected fail, got %+v", fail)
	}
}

func TestCheckRSSIFloorNoSamples(t *testing.T) {
	d, err := CheckRSSIFloor(&Context{Stats: NewSessionStats()}, Rule{Params: map[string]any{"rssi_floor": -50.0}})
	if err != nil {
		t.Fatal(err)
	}
	if d.Severity != INFO {
		t.Errorf("expected INFO when no samples, got %v: %s", d.Severity, d.Message)
	}
}

func TestCheckMaxResyncs(t *testing.T) {
	stats := NewSessionStats()
	stats.ResyncCount = 3
	ctx := &Context{Stats: stats}

	pass, _ := CheckMaxResyncs(ctx, Rule{Params: map[string]any{"max_resyncs": 10.0}})
	if pass.Severity == ERROR {
		t.Errorf("expected pass, got %+v", pass)
	}
	fail, _ := CheckMaxResyncs(ctx, Rule{Severity: ERROR, Params: map[string]any{"max_resyncs": 1.0}})
	if fail.Severity != ERROR {
		t.Errorf("expected fail, got %+v", fail)
	}
}

func TestCheckFrameKindPresent(t *testing.T) {
	stats := statsWithFrames(0, 1, 0, 0, nil)
	ctx := &Context{Stats: stats}

	present, _ := CheckFrameKindPresent(ctx, Rule{Params: map[string]any{"kind": uat.DownlinkLong.String()}})
	if present.Severity == ERROR {
		t.Errorf("expected present, got %+v", present)
	}
	absent, _ := CheckFrameKindPresent(ctx, Rule{Severity: ERROR, Params: map[string]any{"kind": uat.Uplink.String()}})
	if absent.Severity != ERROR {
		t.Errorf("expected absent to be an error, got %+v", absent)
	}
}

func TestCheckDictionaryVersion(t *testing.T) {
	doc := session.BuildManifest(session.Config{DictionaryVersion: "2026.08.01"})
	ctx := &Context{Manifest: doc}

	match, err := CheckDictionaryVersion(ctx, Rule{Params: map[string]any{"expected_dict_version": "2026.08.01"}})
	if err != nil || match.Severity == ERROR {
		t.Errorf("expected match, got %+v err=%v", match, err)
	}
	mismatch, err := CheckDictionaryVersion(ctx, Rule{Severity: WARN, Params: map[string]any{"expected_dict_version": "2025.01.01"}})
	if err != nil || mismatch.Severity != WARN {
		t.Errorf("expected mismatch warning, got %+v err=%v", mismatch, err)
	}
}

func TestCheckDictionaryVersionNoManifest(t *testing.T) {
	d, err := CheckDictionaryVersion(&Context{}, Rule{Params: map[string]any{"expected_dict_version": "1"}})
	if err != nil {
		t.Fatal(err)
	}
	if d.Severity != WARN {
		t.Errorf("expected WARN when manifest absent, got %v", d.Severity)
	}
}
