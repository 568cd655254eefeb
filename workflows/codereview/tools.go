package codereview

import (
	"fmt"
	"sort"
	"strings"

	"github.com/juju/errors"
	"github.com/spf13/cast"

	"github.com/warriorguo/graphflow/types"
)

const (
	maxFileLines      = 100
	maxComplexity     = 20
	issuePenalty      = 5
	complexityPenalty = 10
)

// Function is one function found in the reviewed code.
type Function struct {
	Name string `json:"name"`
	Line int    `json:"line"`
	Code string `json:"code"`
}

// ExtractFunctions finds the `def name(` lines of state["code"].
func ExtractFunctions(state *types.WorkflowState) (any, error) {
	code, _ := state.Data.GetString("code")

	functions := make([]any, 0)
	for i, line := range strings.Split(code, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "def ") {
			continue
		}
		name := strings.TrimSpace(strings.TrimPrefix(strings.SplitN(line, "(", 2)[0], "def "))
		functions = append(functions, map[string]any{
			"name": name,
			"line": i + 1,
			"code": line,
		})
	}
	return map[string]any{"functions": functions}, nil
}

// CheckComplexity scores every extracted function by the number of lines
// of its code.
func CheckComplexity(state *types.WorkflowState) (any, error) {
	var functions []Function
	if _, exists := state.Data.Get("functions"); exists {
		if err := state.Data.GetStruct("functions", &functions); err != nil {
			return nil, errors.Annotatef(err, "read functions")
		}
	}

	scores := make(map[string]any, len(functions))
	total := 0
	for _, fn := range functions {
		complexity := len(strings.Split(fn.Code, "\n"))
		scores[fn.Name] = complexity
		total += complexity
	}

	avg := 0.0
	if len(scores) > 0 {
		avg = float64(total) / float64(len(scores))
	}
	return map[string]any{
		"complexity_scores": scores,
		"avg_complexity":    avg,
	}, nil
}

func complexityScores(state *types.WorkflowState) map[string]int {
	raw, _ := state.Data.GetStringMap("complexity_scores")
	scores := make(map[string]int, len(raw))
	for name, v := range raw {
		scores[name] = cast.ToInt(v)
	}
	return scores
}

// DetectIssues flags TODOs, print calls, long files and complex functions.
func DetectIssues(state *types.WorkflowState) (any, error) {
	code, _ := state.Data.GetString("code")

	issues := make([]any, 0)
	if strings.Contains(code, "TODO") {
		issues = append(issues, "Contains TODO comments")
	}
	if strings.Contains(code, "print(") {
		issues = append(issues, "Contains print statements")
	}
	if len(strings.Split(code, "\n")) > maxFileLines {
		issues = append(issues, fmt.Sprintf("File is too long (>%d lines)", maxFileLines))
	}

	scores := complexityScores(state)
	names := make([]string, 0, len(scores))
	for name := range scores {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if scores[name] > maxComplexity {
			issues = append(issues, fmt.Sprintf("Function '%s' is too complex (%d lines)", name, scores[name]))
		}
	}

	return map[string]any{"issues": issues, "issue_count": len(issues)}, nil
}

// SuggestImprovements maps every detected issue to a suggestion.
func SuggestImprovements(state *types.WorkflowState) (any, error) {
	issues, _ := state.Data.GetSlice("issues")

	suggestions := make([]any, 0, len(issues))
	for _, issue := range cast.ToStringSlice(issues) {
		switch {
		case strings.Contains(issue, "TODO"):
			suggestions = append(suggestions, "Complete TODO items")
		case strings.Contains(issue, "print"):
			suggestions = append(suggestions, "Replace print statements with proper logging")
		case strings.Contains(issue, "too long"):
			suggestions = append(suggestions, "Consider splitting the file into smaller modules")
		case strings.Contains(issue, "too complex"):
			suggestions = append(suggestions, "Consider refactoring complex functions into smaller ones")
		}
	}
	return map[string]any{"suggestions": suggestions}, nil
}

// CalculateQualityScore starts at 100 and deducts 5 per issue and 10 per
// complex function, never going below 0.
func CalculateQualityScore(state *types.WorkflowState) (any, error) {
	issues, _ := state.Data.GetSlice("issues")

	score := 100 - issuePenalty*len(issues)
	for _, complexity := range complexityScores(state) {
		if complexity > maxComplexity {
			score -= complexityPenalty
		}
	}
	if score < 0 {
		score = 0
	}
	return map[string]any{"quality_score": score}, nil
}
