// Package rules implements the acceptance-report machinery: a rule
// engine that evaluates a decoded session's aggregate statistics against
// a configurable RulePack (minimum frame rate, maximum corrected-error
// rate, RSSI floor, resync-count ceiling) and produces a pass/fail
// AcceptanceReport.
//
// Grounded on the teacher's internal/rules engine: the same
// Rule/RulePack/Diagnostic/Engine shape, retargeted from Chapter-10
// packet/channel/file rules (with in-place binary patch fixes) to UAT
// session-quality checks, which are read-only — a decode session has no
// analogous "patch the capture and re-check" workflow, so the Fixable/
// FixApplied/FixPatchId machinery is dropped along with it.
package rules

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/uatdecode/uatd/internal/session"
	"github.com/uatdecode/uatd/internal/uat"
)

type Severity string

const (
	ERROR Severity = "ERROR"
	WARN  Severity = "WARN"
	INFO  Severity = "INFO"
)

// Rule is one configurable check against a session's aggregate stats.
type Rule struct {
	RuleId    string         `json:"ruleId"`
	Name      string         `json:"name,omitempty"`
	Severity  Severity       `json:"severity"`
	CheckFunc string         `json:"checkFunction"`
	Params    map[string]any `json:"params,omitempty"`
	Refs      []string       `json:"refs"`
	Message   string         `json:"message"`
}

type RulePack struct {
	RulePackId string `json:"rulePackId"`
	Version    string `json:"version"`
	Profile    string `json:"profile"`
	Rules      []Rule `json:"rules"`
}

type Diagnostic struct {
	Ts       time.Time `json:"ts"`
	RuleId   string    `json:"ruleId"`
	Severity Severity  `json:"severity"`
	Message  string    `json:"message"`
	Refs     []string  `json:"refs"`
}

// AcceptanceReport is the structured session-quality report produced at
// the end of a decoding run.
type AcceptanceReport struct {
	Summary struct {
		Total    int  `json:"total"`
		Errors   int  `json:"errors"`
		Warnings int  `json:"warnings"`
		Pass     bool `json:"pass"`
	} `json:"summary"`
	FrameCounts            map[string]int `json:"frameCounts"`
	ResyncCount            int            `json:"resyncCount"`
	MeanCorrectedErrorRate float64        `json:"meanCorrectedErrorRate"`
	RSSIHistogram          []int          `json:"rssiHistogram"`
	Findings               []Diagnostic   `json:"findings,omitempty"`
}

// SessionStats is the aggregate view of a decoding session that rules are
// evaluated against: frame counts by kind, resync count, corrected-error
// totals, and the raw RSSI samples used to build the acceptance report's
// histogram.
type SessionStats struct {
	FrameCounts     map[uat.FrameKind]int
	ResyncCount     int
	TotalFrames     int
	CorrectedErrors int
	RSSISamples     []float64
	DurationSeconds float64
}

// NewSessionStats returns an empty, ready-to-accumulate SessionStats.
func NewSessionStats() *SessionStats {
	return &SessionStats{FrameCounts: make(map[uat.FrameKind]int)}
}

// Observe records one decoded frame's contribution to the session stats.
func (s *SessionStats) Observe(kind uat.FrameKind, correctedErrors int, rssi float64) {
	s.FrameCounts[kind]++
	s.TotalFrames++
	s.CorrectedErrors += correctedErrors
	s.RSSISamples = append(s.RSSISamples, rssi)
}

// FrameRate returns frames observed per second of session duration, or 0
// if the duration hasn't been set.
func (s *SessionStats) FrameRate() float64 {
	if s == nil || s.DurationSeconds <= 0 {
		return 0
	}
	return float64(s.TotalFrames) / s.DurationSeconds
}

// MeanCorrectedErrorRate returns the average number of RS-corrected
// symbol errors per decoded frame.
func (s *SessionStats) MeanCorrectedErrorRate() float64 {
	if s == nil || s.TotalFrames == 0 {
		return 0
	}
	return float64(s.CorrectedErrors) / float64(s.TotalFrames)
}

// MeanRSSI returns the arithmetic mean of the recorded RSSI samples.
func (s *SessionStats) MeanRSSI() float64 {
	if s == nil || len(s.RSSISamples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range s.RSSISamples {
		sum += v
	}
	return sum / float64(len(s.RSSISamples))
}

// RSSIHistogram buckets the recorded RSSI samples into count evenly
// spaced bins covering [min, max]; samples outside the range clamp into
// the nearest edge bucket.
func (s *SessionStats) RSSIHistogram(buckets int, min, max float64) []int {
	hist := make([]int, buckets)
	if s == nil || buckets <= 0 || max <= min {
		return hist
	}
	width := (max - min) / float64(buckets)
	for _, v := range s.RSSISamples {
		idx := int((v - min) / width)
		if idx < 0 {
			idx = 0
		}
		if idx >= buckets {
			idx = buckets - 1
		}
		hist[idx]++
	}
	return hist
}

// FrameCountsByName returns the frame-kind counts keyed by their string
// name, for JSON reporting.
func (s *SessionStats) FrameCountsByName() map[string]int {
	out := make(map[string]int, len(s.FrameCounts))
	for k, v := range s.FrameCounts {
		out[k.String()] = v
	}
	return out
}

// Context carries everything a CheckFunc needs to evaluate one rule.
type Context struct {
	SessionFile string
	Profile     string
	Stats       *SessionStats
	Manifest    *session.Document
}

type Engine struct {
	rulePack    RulePack
	registry    map[string]CheckFunc
	diagnostics []Diagnostic
}

func NewEngine(rp RulePack) *Engine {
	return &Engine{
		rulePack: rp,
		registry: make(map[string]CheckFunc),
	}
}

type CheckFunc func(ctx *Context, rule Rule) (Diagnostic, error)

func (e *Engine) Register(name string, f CheckFunc) {
	e.registry[name] = f
}

func (e *Engine) Eval(ctx *Context) ([]Diagnostic, error) {
	if ctx == nil {
		return nil, errors.New("nil context")
	}
	if ctx.Stats == nil {
		ctx.Stats = NewSessionStats()
	}
	var diags []Diagnostic
	for _, r := range e.rulePack.Rules {
		if r.CheckFunc == "" {
			continue
		}
		fn, ok := e.registry[r.CheckFunc]
		if !ok {
			diags = append(diags, Diagnostic{
				Ts: time.Now(), RuleId: r.RuleId, Severity: WARN,
				Message: "no function for rule", Refs: r.Refs,
			})
			continue
		}
		d, err := fn(ctx, r)
		if err != nil {
			d.Severity = ERROR
			d.Message = d.Message + " (" + err.Error() + ")"
		}
		diags = append(diags, d)
	}
	e.diagnostics = diags
	return diags, nil
}

func (e *Engine) WriteDiagnosticsNDJSON(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	defer w.Flush()
	for _, d := range e.diagnostics {
		b, err := json.Marshal(d)
		if err != nil {
			return err
		}
		w.Write(b)
		w.WriteString("\n")
	}
	return nil
}

// MakeAcceptance builds the session's AcceptanceReport from the last Eval
// call's diagnostics and the session stats it was evaluated against.
func (e *Engine) MakeAcceptance(stats *SessionStats) AcceptanceReport {
	var rep AcceptanceReport
	var errs, warns int
	for _, d := range e.diagnostics {
		switch d.Severity {
		case ERROR:
			errs++
		case WARN:
			warns++
		}
	}
	rep.Summary.Total = len(e.diagnostics)
	rep.Summary.Errors = errs
	rep.Summary.Warnings = warns
	rep.Summary.Pass = errs == 0
	rep.Findings = e.diagnostics
	if stats != nil {
		rep.FrameCounts = stats.FrameCountsByName()
		rep.ResyncCount = stats.ResyncCount
		rep.MeanCorrectedErrorRate = stats.MeanCorrectedErrorRate()
		rep.RSSIHistogram = stats.RSSIHistogram(20, -80, 0)
	}
	return rep
}

func LoadRulePack(path string) (RulePack, error) {
	var rp RulePack
	b, err := os.ReadFile(path)
	if err != nil {
		return rp, err
	}
	err = json.Unmarshal(b, &rp)
	return rp, err
}

var ErrNotImplemented = errors.New("check not implemented yet")

// paramFloat reads a numeric rule parameter, tolerating both float64
// (the common case after json.Unmarshal into map[string]any) and int.
func paramFloat(params map[string]any, key string) (float64, bool) {
	v, ok := params[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

func paramString(params map[string]any, key string) (string, bool) {
	v, ok := params[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func fmtFloat(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	return fmt.Sprintf("%.4f", v)
}
