package conditions

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/leadrun/leadrun/pkg/models"
)

func testLead() *models.Lead {
	return &models.Lead{
		ID:      "lead-1",
		Name:    "Ada Lovelace",
		Phone:   "+5511999990000",
		StageID: "stage-negotiation",
		Tags: []models.Tag{
			{ID: "tag-vip", Name: "VIP"},
			{ID: "tag-trial", Name: "Trial"},
		},
		Attributes: map[string]any{
			"Budget": 1500.0,
			"city":   "Lisbon",
			"paid":   true,
		},
	}
}

func TestEvaluate_ScalarFields(t *testing.T) {
	lead := testLead()

	tests := []struct {
		name      string
		condition models.Condition
		expected  bool
	}{
		{
			name:      "equals is case insensitive",
			condition: models.Condition{Field: "name", Operator: models.OperatorEquals, Value: "ADA LOVELACE"},
			expected:  true,
		},
		{
			name:      "equals mismatch",
			condition: models.Condition{Field: "name", Operator: models.OperatorEquals, Value: "Grace"},
			expected:  false,
		},
		{
			name:      "contains substring",
			condition: models.Condition{Field: "name", Operator: models.OperatorContains, Value: "love"},
			expected:  true,
		},
		{
			name:      "contains with empty value never matches",
			condition: models.Condition{Field: "name", Operator: models.OperatorContains, Value: ""},
			expected:  false,
		},
		{
			name:      "not_equals on stage",
			condition: models.Condition{Field: "stage_id", Operator: models.OperatorNotEquals, Value: "stage-won"},
			expected:  true,
		},
		{
			name:      "field name is case insensitive",
			condition: models.Condition{Field: "STAGE_ID", Operator: models.OperatorEquals, Value: "stage-negotiation"},
			expected:  true,
		},
		{
			name:      "value is trimmed",
			condition: models.Condition{Field: "stage_id", Operator: models.OperatorEquals, Value: "  stage-negotiation  "},
			expected:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Evaluate(tt.condition, lead))
		})
	}
}

func TestEvaluate_Tags(t *testing.T) {
	lead := testLead()

	tests := []struct {
		name      string
		condition models.Condition
		expected  bool
	}{
		{
			name:      "equals matches tag name",
			condition: models.Condition{Field: "tags", Operator: models.OperatorEquals, Value: "vip"},
			expected:  true,
		},
		{
			name:      "equals matches tag id",
			condition: models.Condition{Field: "tags", Operator: models.OperatorEquals, Value: "tag-vip"},
			expected:  true,
		},
		{
			name:      "not_equals is set absence",
			condition: models.Condition{Field: "tags", Operator: models.OperatorNotEquals, Value: "churned"},
			expected:  true,
		},
		{
			name:      "contains matches substring of any tag",
			condition: models.Condition{Field: "tags", Operator: models.OperatorContains, Value: "tri"},
			expected:  true,
		},
		{
			name:      "greater_than is undefined for tags",
			condition: models.Condition{Field: "tags", Operator: models.OperatorGreaterThan, Value: "a"},
			expected:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Evaluate(tt.condition, lead))
		})
	}
}

func TestEvaluate_Attributes(t *testing.T) {
	lead := testLead()

	tests := []struct {
		name      string
		condition models.Condition
		expected  bool
	}{
		{
			name:      "numeric greater_than",
			condition: models.Condition{Field: "budget", Operator: models.OperatorGreaterThan, Value: "1000"},
			expected:  true,
		},
		{
			name:      "numeric less_than",
			condition: models.Condition{Field: "budget", Operator: models.OperatorLessThan, Value: "1000"},
			expected:  false,
		},
		{
			name:      "attribute key lookup is case insensitive",
			condition: models.Condition{Field: "CITY", Operator: models.OperatorEquals, Value: "lisbon"},
			expected:  true,
		},
		{
			name:      "bool attribute compares as string",
			condition: models.Condition{Field: "paid", Operator: models.OperatorEquals, Value: "true"},
			expected:  true,
		},
		{
			name:      "unknown field resolves empty and equals fails",
			condition: models.Condition{Field: "missing", Operator: models.OperatorEquals, Value: "x"},
			expected:  false,
		},
		{
			name:      "unknown field with not_equals holds",
			condition: models.Condition{Field: "missing", Operator: models.OperatorNotEquals, Value: "x"},
			expected:  true,
		},
		{
			name:      "non-numeric operand fails both orderings",
			condition: models.Condition{Field: "city", Operator: models.OperatorGreaterThan, Value: "10"},
			expected:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Evaluate(tt.condition, lead))
		})
	}
}

func TestEvaluate_NilLead(t *testing.T) {
	condition := models.Condition{Field: "name", Operator: models.OperatorNotEquals, Value: "x"}

	assert.False(t, Evaluate(condition, nil))
}

func TestEvaluateAll(t *testing.T) {
	lead := testLead()

	both := []models.Condition{
		{Field: "stage_id", Operator: models.OperatorEquals, Value: "stage-negotiation"},
		{Field: "tags", Operator: models.OperatorEquals, Value: "vip"},
	}
	assert.True(t, EvaluateAll(both, lead))

	oneFails := []models.Condition{
		{Field: "stage_id", Operator: models.OperatorEquals, Value: "stage-negotiation"},
		{Field: "tags", Operator: models.OperatorEquals, Value: "churned"},
	}
	assert.False(t, EvaluateAll(oneFails, lead))

	assert.True(t, EvaluateAll(nil, lead), "empty condition list holds trivially")
}
