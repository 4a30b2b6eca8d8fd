package service

import (
	"fmt"
	"strings"

	"github.com/noah-isme/bibleschool-api/internal/models"
	appErrors "github.com/noah-isme/bibleschool-api/pkg/errors"
)

// DefaultProgramLevels is the ladder used when none is configured.
var DefaultProgramLevels = []string{"Foundation", "Discipleship", "Workers", "Leadership", "Pastoral"}

// DefaultMinAttendance is the minimum attendance percentage for promotion.
const DefaultMinAttendance = 75.0

// PromotionRule identifies which check rejected a promotion.
type PromotionRule string

const (
	RuleAttendance       PromotionRule = "ATTENDANCE_THRESHOLD"
	RuleExamsPassed      PromotionRule = "EXAMS_PASSED"
	RuleKnownLevel       PromotionRule = "KNOWN_LEVEL"
	RuleSingleStep       PromotionRule = "SINGLE_STEP"
	RuleTerminalApproval PromotionRule = "TERMINAL_APPROVAL"
)

// LevelLadder is the ordered list of program names, lowest first.
type LevelLadder struct {
	names []string
	index map[string]int
}

// NewLevelLadder builds a ladder from ordered program names. Empty input yields the default ladder.
func NewLevelLadder(names []string) (LevelLadder, error) {
	if len(names) == 0 {
		names = DefaultProgramLevels
	}
	ladder := LevelLadder{names: make([]string, 0, len(names)), index: make(map[string]int, len(names))}
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" {
			return LevelLadder{}, fmt.Errorf("program level name must not be empty")
		}
		if _, dup := ladder.index[name]; dup {
			return LevelLadder{}, fmt.Errorf("program level %q listed twice", name)
		}
		ladder.index[name] = len(ladder.names)
		ladder.names = append(ladder.names, name)
	}
	return ladder, nil
}

// Index returns the position of name on the ladder.
func (l LevelLadder) Index(name string) (int, bool) {
	i, ok := l.index[name]
	return i, ok
}

// Terminal returns the most senior level name.
func (l LevelLadder) Terminal() string {
	if len(l.names) == 0 {
		return ""
	}
	return l.names[len(l.names)-1]
}

// Names returns a copy of the ordered level names.
func (l LevelLadder) Names() []string {
	return append([]string(nil), l.names...)
}

// PromotionContext carries every fact the rule engine evaluates.
type PromotionContext struct {
	AttendancePercentage float64
	ExamsPassed          bool
	CurrentLevelName     string
	TargetLevelName      string
	CallerPrivilege      models.Privilege
}

// PromotionRejection explains why a promotion is not admissible.
type PromotionRejection struct {
	Rule   PromotionRule
	Reason string
}

func (r *PromotionRejection) Error() string {
	return r.Reason
}

// AsError converts the rejection into the structured error returned to callers.
func (r *PromotionRejection) AsError() *appErrors.Error {
	if r == nil {
		return nil
	}
	template := appErrors.ErrValidation
	if r.Rule == RuleTerminalApproval {
		template = appErrors.ErrInsufficientPrivilege
	}
	return appErrors.Clone(template, r.Reason)
}

// PromotionRules evaluates promotion admissibility. It performs no I/O.
type PromotionRules struct {
	ladder        LevelLadder
	minAttendance float64
}

// NewPromotionRules constructs the rule engine. A non-positive threshold uses DefaultMinAttendance.
func NewPromotionRules(ladder LevelLadder, minAttendance float64) *PromotionRules {
	if len(ladder.names) == 0 {
		ladder, _ = NewLevelLadder(nil)
	}
	if minAttendance <= 0 {
		minAttendance = DefaultMinAttendance
	}
	return &PromotionRules{ladder: ladder, minAttendance: minAttendance}
}

// Ladder exposes the configured level order.
func (r *PromotionRules) Ladder() LevelLadder {
	return r.ladder
}

// ValidatePromotion applies the promotion rules in order; the first failure wins. Nil means admissible.
func (r *PromotionRules) ValidatePromotion(pc PromotionContext) *PromotionRejection {
	if pc.AttendancePercentage < r.minAttendance {
		return &PromotionRejection{
			Rule:   RuleAttendance,
			Reason: fmt.Sprintf("attendance below required threshold (%.1f%%)", pc.AttendancePercentage),
		}
	}
	if !pc.ExamsPassed {
		return &PromotionRejection{Rule: RuleExamsPassed, Reason: "not all required exams passed"}
	}

	current, okCurrent := r.ladder.Index(pc.CurrentLevelName)
	target, okTarget := r.ladder.Index(pc.TargetLevelName)
	if !okCurrent || !okTarget {
		return &PromotionRejection{Rule: RuleKnownLevel, Reason: "invalid level"}
	}

	highest := pc.CallerPrivilege.AtLeast(models.PrivilegeHighest)
	if target != current+1 && !highest {
		return &PromotionRejection{Rule: RuleSingleStep, Reason: "invalid promotion jump"}
	}
	if pc.TargetLevelName == r.ladder.Terminal() && !highest {
		return &PromotionRejection{Rule: RuleTerminalApproval, Reason: "only highest privilege may approve this promotion"}
	}
	return nil
}
