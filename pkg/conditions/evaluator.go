// Package conditions evaluates rule and node conditions against a lead
// snapshot. Evaluation is pure: no I/O beyond the snapshot it is handed.
package conditions

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/leadrun/leadrun/pkg/models"
)

// Fixed lead fields the evaluator resolves. Anything else falls through to
// the lead's custom attributes; unknown fields resolve to an empty value so
// conditions degrade to false instead of aborting the run.
const (
	FieldName    = "name"
	FieldPhone   = "phone"
	FieldStageID = "stage_id"
	FieldTags    = "tags"
)

// Evaluate applies a single condition to a lead snapshot. All string
// comparisons are case-insensitive. For the multi-valued tags field,
// equals/not_equals test set membership and contains tests substring
// membership across the set.
func Evaluate(condition models.Condition, lead *models.Lead) bool {
	if lead == nil {
		return false
	}

	want := strings.ToLower(strings.TrimSpace(condition.Value))

	switch strings.ToLower(condition.Field) {
	case FieldTags:
		return evaluateSet(condition.Operator, lead.TagValues(), want)
	case FieldName:
		return evaluateScalar(condition.Operator, lead.Name, want)
	case FieldPhone:
		return evaluateScalar(condition.Operator, lead.Phone, want)
	case FieldStageID:
		return evaluateScalar(condition.Operator, lead.StageID, want)
	default:
		return evaluateScalar(condition.Operator, attributeValue(lead, condition.Field), want)
	}
}

// EvaluateAll reports whether every condition holds (logical AND). An empty
// condition list holds trivially.
func EvaluateAll(conds []models.Condition, lead *models.Lead) bool {
	for _, condition := range conds {
		if !Evaluate(condition, lead) {
			return false
		}
	}

	return true
}

func evaluateScalar(operator models.Operator, got, want string) bool {
	got = strings.ToLower(strings.TrimSpace(got))

	switch operator {
	case models.OperatorEquals:
		return got == want
	case models.OperatorNotEquals:
		return got != want
	case models.OperatorContains:
		return want != "" && strings.Contains(got, want)
	case models.OperatorGreaterThan:
		return compareNumeric(got, want) > 0
	case models.OperatorLessThan:
		return compareNumeric(got, want) < 0
	default:
		return false
	}
}

func evaluateSet(operator models.Operator, values []string, want string) bool {
	switch operator {
	case models.OperatorEquals:
		return setContains(values, want)
	case models.OperatorNotEquals:
		return !setContains(values, want)
	case models.OperatorContains:
		if want == "" {
			return false
		}

		for _, value := range values {
			if strings.Contains(strings.ToLower(value), want) {
				return true
			}
		}

		return false
	default:
		// Ordering operators are undefined for multi-valued fields.
		return false
	}
}

func setContains(values []string, want string) bool {
	for _, value := range values {
		if strings.ToLower(value) == want {
			return true
		}
	}

	return false
}

// compareNumeric returns the sign of got-want, or 0 when either side is not
// numeric. A non-numeric operand makes both orderings false.
func compareNumeric(got, want string) int {
	gotNum, err := strconv.ParseFloat(got, 64)
	if err != nil {
		return 0
	}

	wantNum, err := strconv.ParseFloat(want, 64)
	if err != nil {
		return 0
	}

	switch {
	case gotNum > wantNum:
		return 1
	case gotNum < wantNum:
		return -1
	default:
		return 0
	}
}

func attributeValue(lead *models.Lead, field string) string {
	if lead.Attributes == nil {
		return ""
	}

	for key, value := range lead.Attributes {
		if !strings.EqualFold(key, field) {
			continue
		}

		switch v := value.(type) {
		case string:
			return v
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case int:
			return strconv.Itoa(v)
		case bool:
			return strconv.FormatBool(v)
		case nil:
			return ""
		default:
			return fmt.Sprintf("%v", v)
		}
	}

	return ""
}
