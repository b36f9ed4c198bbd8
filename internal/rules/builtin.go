package rules

import (
	"errors"
	"fmt"
	"time"
)

func (e *Engine) RegisterBuiltins() {
	e.Register("MinFrameRate", CheckMinFrameRate)
	e.Register("MaxErrorRate", CheckMaxErrorRate)
	e.Register("RSSIFloor", CheckRSSIFloor)
	e.Register("MaxResyncs", CheckMaxResyncs)
	e.Register("FrameKindPresent", CheckFrameKindPresent)
	e.Register("DictionaryVersion", CheckDictionaryVersion)
}

func CheckMinFrameRate(ctx *Context, rule Rule) (Diagnostic, error) {
	diag := Diagnostic{Ts: time.Now(), RuleId: rule.RuleId, Severity: INFO, Refs: rule.Refs}
	if ctx == nil || ctx.Stats == nil {
		diag.Severity = ERROR
		diag.Message = "no session stats provided"
		return diag, errors.New("nil stats")
	}
	min, ok := paramFloat(rule.Params, "min_frame_rate")
	if !ok {
		diag.Severity = ERROR
		diag.Message = "rule missing min_frame_rate parameter"
		return diag, nil
	}
	rate := ctx.Stats.FrameRate()
	if rate < min {
		diag.Severity = rule.Severity
		if diag.Severity == "" {
			diag.Severity = ERROR
		}
		diag.Message = fmt.Sprintf("frame rate %s fps below minimum %s fps", fmtFloat(rate), fmtFloat(min))
		return diag, nil
	}
	diag.Message = fmt.Sprintf("frame rate %s fps meets minimum %s fps", fmtFloat(rate), fmtFloat(min))
	return diag, nil
}

func CheckMaxErrorRate(ctx *Context, rule Rule) (Diagnostic, error) {
	diag := Diagnostic{Ts: time.Now(), RuleId: rule.RuleId, Severity: INFO, Refs: rule.Refs}
	if ctx == nil || ctx.Stats == nil {
		diag.Severity = ERROR
		diag.Message = "no session stats provided"
		return diag, errors.New("nil stats")
	}
	max, ok := paramFloat(rule.Params, "max_error_rate")
	if !ok {
		diag.Severity = ERROR
		diag.Message = "rule missing max_error_rate parameter"
		return diag, nil
	}
	rate := ctx.Stats.MeanCorrectedErrorRate()
	if rate > max {
		diag.Severity = rule.Severity
		if diag.Severity == "" {
			diag.Severity = ERROR
		}
		diag.Message = fmt.Sprintf("mean corrected-error rate %s exceeds maximum %s", fmtFloat(rate), fmtFloat(max))
		return diag, nil
	}
	diag.Message = fmt.Sprintf("mean corrected-error rate %s within maximum %s", fmtFloat(rate), fmtFloat(max))
	return diag, nil
}

func CheckRSSIFloor(ctx *Context, rule Rule) (Diagnostic, error) {
	diag := Diagnostic{Ts: time.Now(), RuleId: rule.RuleId, Severity: INFO, Refs: rule.Refs}
	if ctx == nil || ctx.Stats == nil {
		diag.Severity = ERROR
		diag.Message = "no session stats provided"
		return diag, errors.New("nil stats")
	}
	floor, ok := paramFloat(rule.Params, "rssi_floor")
	if !ok {
		diag.Severity = ERROR
		diag.Message = "rule missing rssi_floor parameter"
		return diag, nil
	}
	if len(ctx.Stats.RSSISamples) == 0 {
		diag.Message = "no RSSI samples to inspect"
		return diag, nil
	}
	mean := ctx.Stats.MeanRSSI()
	if mean < floor {
		diag.Severity = rule.Severity
		if diag.Severity == "" {
			diag.Severity = ERROR
		}
		diag.Message = fmt.Sprintf("mean RSSI %s dB below floor %s dB", fmtFloat(mean), fmtFloat(floor))
		return diag, nil
	}
	diag.Message = fmt.Sprintf("mean RSSI %s dB meets floor %s dB", fmtFloat(mean), fmtFloat(floor))
	return diag, nil
}

func CheckMaxResyncs(ctx *Context, rule Rule) (Diagnostic, error) {
	diag := Diagnostic{Ts: time.Now(), RuleId: rule.RuleId, Severity: INFO, Refs: rule.Refs}
	if ctx == nil || ctx.Stats == nil {
		diag.Severity = ERROR
		diag.Message = "no session stats provided"
		return diag, errors.New("nil stats")
	}
	max, ok := paramFloat(rule.Params, "max_resyncs")
	if !ok {
		diag.Severity = ERROR
		diag.Message = "rule missing max_resyncs parameter"
		return diag, nil
	}
	if float64(ctx.Stats.ResyncCount) > max {
		diag.Severity = rule.Severity
		if diag.Severity == "" {
			diag.Severity = ERROR
		}
		diag.Message = fmt.Sprintf("resync count %d exceeds maximum %s", ctx.Stats.ResyncCount, fmtFloat(max))
		return diag, nil
	}
	diag.Message = fmt.Sprintf("resync count %d within maximum %s", ctx.Stats.ResyncCount, fmtFloat(max))
	return diag, nil
}

func CheckFrameKindPresent(ctx *Context, rule Rule) (Diagnostic, error) {
	diag := Diagnostic{Ts: time.Now(), RuleId: rule.RuleId, Severity: INFO, Refs: rule.Refs}
	if ctx == nil || ctx.Stats == nil {
		diag.Severity = ERROR
		diag.Message = "no session stats provided"
		return diag, errors.New("nil stats")
	}
	kindName, ok := paramString(rule.Params, "kind")
	if !ok {
		diag.Severity = ERROR
		diag.Message = "rule missing kind parameter"
		return diag, nil
	}
	for kind, count := range ctx.Stats.FrameCounts {
		if kind.String() == kindName && count > 0 {
			diag.Message = fmt.Sprintf("%d %s frame(s) observed", count, kindName)
			return diag, nil
		}
	}
	diag.Severity = rule.Severity
	if diag.Severity == "" {
		diag.Severity = ERROR
	}
	diag.Message = fmt.Sprintf("no %s frames observed", kindName)
	return diag, nil
}

func CheckDictionaryVersion(ctx *Context, rule Rule) (Diagnostic, error) {
	diag := Diagnostic{Ts: time.Now(), RuleId: rule.RuleId, Severity: INFO, Refs: rule.Refs}
	if ctx == nil {
		diag.Severity = ERROR
		diag.Message = "no context provided"
		return diag, errors.New("nil context")
	}
	expected, ok := paramString(rule.Params, "expected_dict_version")
	if !ok {
		diag.Severity = ERROR
		diag.Message = "rule missing expected_dict_version parameter"
		return diag, nil
	}
	if ctx.Manifest == nil {
		diag.Severity = WARN
		diag.Message = "no session manifest available to check dictionary version"
		return diag, nil
	}
	cfg, err := ctx.Manifest.Config()
	if err != nil {
		diag.Severity = ERROR
		diag.Message = "cannot read session manifest config"
		return diag, err
	}
	if cfg.DictionaryVersion != expected {
		diag.Severity = rule.Severity
		if diag.Severity == "" {
			diag.Severity = WARN
		}
		diag.Message = fmt.Sprintf("dictionary version %q does not match expected %q", cfg.DictionaryVersion, expected)
		return diag, nil
	}
	diag.Message = fmt.Sprintf("dictionary version %q matches expected", cfg.DictionaryVersion)
	return diag, nil
}
