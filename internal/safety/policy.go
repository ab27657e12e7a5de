// Package safety scores playbook text against a denylist and a per-level policy.
// Evaluation is pure: same text and level always produce the same verdict.
package safety

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Level is the caller-chosen strictness tier.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// ParseLevel normalizes a level string, defaulting to medium.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return LevelLow
	case "high":
		return LevelHigh
	default:
		return LevelMedium
	}
}

// Deduction constants are tunable policy, not calibrated precision.
const (
	startScore         = 100.0
	denylistDeduction  = 20.0
	privilegeDeduction = 5.0
	execDeduction      = 30.0
)

// acceptThresholds is the minimum score per level.
var acceptThresholds = map[Level]float64{
	LevelLow:    50,
	LevelMedium: 70,
	LevelHigh:   90,
}

// dangerousPatterns are matched case-insensitively as raw substrings. The
// matching is deliberately false-positive-tolerant: blocking a benign script
// that happens to contain a risky fragment beats missing a dangerous one.
var dangerousPatterns = []string{
	"rm -rf",
	"dd if=",
	"mkfs",
	"fdisk",
	"parted",
	"shutdown",
	"reboot",
	"halt",
	"poweroff",
	"init 0",
	"init 6",
	"iptables -f",
	"iptables --flush",
	"userdel",
	"deluser",
}

// unrestrictedExecModules run arbitrary commands on targets and are blocked
// outright at the high safety level.
var unrestrictedExecModules = map[string]bool{
	"shell":   true,
	"command": true,
	"raw":     true,
}

// Violation records one policy breach and the text segment that triggered it.
type Violation struct {
	Pattern string `json:"pattern"`
	Matched string `json:"matched"`
}

// Verdict is the result of evaluating a playbook. Accepted is true only when
// the score meets the level's threshold, no hard violation was recorded, and
// structural validation passed.
type Verdict struct {
	Accepted         bool        `json:"accepted"`
	Score            float64     `json:"score"`
	Violations       []Violation `json:"violations"`
	StructuralErrors []string    `json:"structural_errors"`
	Warnings         []string    `json:"warnings"`
	RequiresApproval bool        `json:"requires_approval"`
}

// Errors flattens structural errors and violations into ordered error strings.
func (v Verdict) Errors() []string {
	errs := make([]string, 0, len(v.StructuralErrors)+len(v.Violations))
	errs = append(errs, v.StructuralErrors...)
	for _, viol := range v.Violations {
		errs = append(errs, fmt.Sprintf("Dangerous pattern detected: %s", viol.Pattern))
	}
	return errs
}

// Evaluate scores playbook text at the given safety level.
func Evaluate(playbook string, level Level) Verdict {
	v := Verdict{
		Score:            startScore,
		Violations:       []Violation{},
		StructuralErrors: []string{},
		Warnings:         []string{},
	}

	plays, structuralErrs := parsePlays(playbook)
	if len(structuralErrs) > 0 {
		v.StructuralErrors = structuralErrs
		v.Score = 0
		return v
	}

	hardViolation := false

	lowered := strings.ToLower(playbook)
	for _, pattern := range dangerousPatterns {
		if idx := strings.Index(lowered, pattern); idx >= 0 {
			v.Violations = append(v.Violations, Violation{
				Pattern: pattern,
				Matched: matchedSegment(playbook, idx, len(pattern)),
			})
			v.Score -= denylistDeduction
			hardViolation = true
		}
	}

	for i, play := range plays {
		for _, elevated := range elevatedPrivilegeUses(play) {
			note := fmt.Sprintf("Play %d uses elevated privileges (%s)", i, elevated)
			v.Score -= privilegeDeduction
			if level == LevelHigh {
				v.Violations = append(v.Violations, Violation{Pattern: "become", Matched: elevated})
			} else {
				v.Warnings = append(v.Warnings, note)
			}
		}

		if level == LevelHigh {
			for _, module := range execModuleUses(play) {
				v.Violations = append(v.Violations, Violation{Pattern: module, Matched: module})
				v.Score -= execDeduction
				hardViolation = true
			}
		}
	}

	if v.Score < 0 {
		v.Score = 0
	}

	v.Accepted = v.Score >= acceptThresholds[level] && !hardViolation
	if level == LevelHigh && len(v.Violations) > 0 {
		v.Accepted = false
	}
	v.RequiresApproval = v.Accepted && (len(v.Warnings) > 0 || len(v.Violations) > 0)

	return v
}

// parsePlays validates the document shape: a top-level sequence of plays, each
// a mapping with non-empty hosts and a non-empty task list.
func parsePlays(playbook string) ([]map[string]any, []string) {
	if strings.TrimSpace(playbook) == "" {
		return nil, []string{"Empty or invalid YAML content"}
	}

	var doc any
	if err := yaml.Unmarshal([]byte(playbook), &doc); err != nil {
		return nil, []string{fmt.Sprintf("YAML parsing error: %v", err)}
	}
	if doc == nil {
		return nil, []string{"Empty or invalid YAML content"}
	}

	rawPlays, ok := doc.([]any)
	if !ok {
		return nil, []string{"Playbook must be a list of plays"}
	}

	var errs []string
	plays := make([]map[string]any, 0, len(rawPlays))
	for i, raw := range rawPlays {
		play, ok := raw.(map[string]any)
		if !ok {
			errs = append(errs, fmt.Sprintf("Play %d must be a mapping", i))
			continue
		}
		if hosts, ok := play["hosts"]; !ok || hosts == nil || fmt.Sprintf("%v", hosts) == "" {
			errs = append(errs, fmt.Sprintf("Play %d missing 'hosts' field", i))
		}
		tasks, ok := play["tasks"].([]any)
		if !ok || len(tasks) == 0 {
			errs = append(errs, fmt.Sprintf("Play %d missing 'tasks' field", i))
		}
		plays = append(plays, play)
	}
	if len(errs) > 0 {
		return nil, errs
	}
	return plays, nil
}

// elevatedPrivilegeUses lists where a play escalates privileges, at the play
// level and per task.
func elevatedPrivilegeUses(play map[string]any) []string {
	var uses []string
	if truthy(play["become"]) {
		uses = append(uses, "become")
	}
	for _, task := range playTasks(play) {
		if truthy(task["become"]) {
			name := "unnamed task"
			if n, ok := task["name"].(string); ok && n != "" {
				name = n
			}
			uses = append(uses, fmt.Sprintf("become in task %q", name))
		}
	}
	return uses
}

// execModuleUses lists unrestricted shell/command execution modules used by a
// play's tasks.
func execModuleUses(play map[string]any) []string {
	var uses []string
	for _, task := range playTasks(play) {
		for key := range task {
			if unrestrictedExecModules[key] {
				uses = append(uses, key)
			}
		}
	}
	return uses
}

func playTasks(play map[string]any) []map[string]any {
	raw, ok := play["tasks"].([]any)
	if !ok {
		return nil
	}
	tasks := make([]map[string]any, 0, len(raw))
	for _, t := range raw {
		if m, ok := t.(map[string]any); ok {
			tasks = append(tasks, m)
		}
	}
	return tasks
}

func truthy(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		s := strings.ToLower(val)
		return s == "yes" || s == "true" || s == "on"
	default:
		return false
	}
}

// matchedSegment returns the matched text with a little surrounding context.
func matchedSegment(text string, idx, length int) string {
	start := idx - 10
	if start < 0 {
		start = 0
	}
	end := idx + length + 10
	if end > len(text) {
		end = len(text)
	}
	return strings.TrimSpace(text[start:end])
}
