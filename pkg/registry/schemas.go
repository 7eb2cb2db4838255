package registry

import (
	"encoding/json"
	"fmt"

	"github.com/leadrun/leadrun/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

// Raw payload schemas per node type. Schema violations are reported by the
// flow validator; they never abort a run, since a malformed payload already
// degrades to a typed configuration failure at dispatch time.
var nodeDataSchemas = map[models.NodeType]string{
	models.NodeTypeSendMessage: `{
		"type": "object",
		"properties": {
			"text": {"type": "string", "minLength": 1}
		},
		"required": ["text"]
	}`,
	models.NodeTypeCondition: `{
		"type": "object",
		"properties": {
			"field": {"type": "string", "minLength": 1},
			"operator": {"enum": ["equals", "contains", "not_equals", "greater_than", "less_than"]},
			"value": {"type": "string"}
		},
		"required": ["field", "operator", "value"]
	}`,
	models.NodeTypeWait: `{
		"type": "object",
		"properties": {
			"delay_hours": {"type": "number", "minimum": 0}
		}
	}`,
	models.NodeTypeTag: `{
		"type": "object",
		"properties": {
			"action": {"enum": ["add", "remove"]},
			"tag_id": {"type": "string", "minLength": 1}
		},
		"required": ["action", "tag_id"]
	}`,
	models.NodeTypeMoveStage: `{
		"type": "object",
		"properties": {
			"stage_id": {"type": "string", "minLength": 1}
		},
		"required": ["stage_id"]
	}`,
	models.NodeTypeWebhook: `{
		"type": "object",
		"properties": {
			"url": {"type": "string", "pattern": "^https://"},
			"method": {"enum": ["GET", "POST", "get", "post", ""]},
			"fields": {"type": "array", "items": {"type": "string"}}
		},
		"required": ["url"]
	}`,
}

// ValidateNodeData checks a node's payload against the schema for its type.
// The returned slice holds one message per violation; an unknown node type
// reports a single violation.
func ValidateNodeData(node *models.Node) ([]string, error) {
	schemaJSON, ok := nodeDataSchemas[node.Type]
	if !ok {
		return []string{fmt.Sprintf("unknown node type %q", node.Type)}, nil
	}

	payload, err := json.Marshal(node.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode node %s data: %w", node.ID, err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schemaJSON),
		gojsonschema.NewBytesLoader(payload),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to validate node %s data: %w", node.ID, err)
	}

	if result.Valid() {
		return nil, nil
	}

	violations := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		violations = append(violations, desc.String())
	}

	return violations, nil
}
