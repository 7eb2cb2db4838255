package models

import (
	"encoding/json"
	"fmt"
)

// NodeType identifies the typed behaviour of a flow node.
type NodeType string

const (
	NodeTypeSendMessage NodeType = "send_message"
	NodeTypeCondition   NodeType = "condition"
	NodeTypeWait        NodeType = "wait"
	NodeTypeTag         NodeType = "tag"
	NodeTypeMoveStage   NodeType = "move_stage"
	NodeTypeWebhook     NodeType = "webhook"
)

// Node is one typed step in a flow. Its Data payload is decoded once at
// flow-load time into the payload type matching Type; malformed payloads
// decode to InvalidData so dispatch degrades to a configuration failure
// instead of crashing.
type Node struct {
	ID   string   `json:"id"   validate:"required"`
	Type NodeType `json:"type" validate:"required"`
	Data NodeData `json:"data"`

	// Layout hints from the visual editor. Opaque passthrough, never interpreted.
	PositionX int `json:"position_x,omitempty"`
	PositionY int `json:"position_y,omitempty"`
}

// NodeData is the tagged union of per-node-type payloads.
type NodeData interface {
	NodeType() NodeType
}

// SendMessageData configures an outbound message node. Text supports
// {{name}} and {{phone}} placeholders resolved from the lead snapshot.
type SendMessageData struct {
	Text string `json:"text"`
}

func (SendMessageData) NodeType() NodeType { return NodeTypeSendMessage }

// ConditionData configures a branching node.
type ConditionData struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    string   `json:"value"`
}

func (ConditionData) NodeType() NodeType { return NodeTypeCondition }

// WaitData configures a delay node. Delays are expressed only through the
// delayed trigger queue; inline execution treats the node as a no-op.
type WaitData struct {
	DelayHours float64 `json:"delay_hours,omitempty"`
}

func (WaitData) NodeType() NodeType { return NodeTypeWait }

// TagAction selects between adding and removing a tag.
type TagAction string

const (
	TagActionAdd    TagAction = "add"
	TagActionRemove TagAction = "remove"
)

// TagData configures a tag mutation node.
type TagData struct {
	Action TagAction `json:"action"`
	TagID  string    `json:"tag_id"`
}

func (TagData) NodeType() NodeType { return NodeTypeTag }

// MoveStageData configures a stage transition node.
type MoveStageData struct {
	StageID string `json:"stage_id"`
}

func (MoveStageData) NodeType() NodeType { return NodeTypeMoveStage }

// WebhookData configures an outbound HTTP call node. Only https URLs are
// accepted at dispatch time. An empty Fields list sends the full lead
// snapshot plus the tag projection.
type WebhookData struct {
	URL    string   `json:"url"`
	Method string   `json:"method,omitempty"`
	Fields []string `json:"fields,omitempty"`
}

func (WebhookData) NodeType() NodeType { return NodeTypeWebhook }

// InvalidData carries the decode failure of a malformed payload. Handlers
// reject it as a configuration error at dispatch time.
type InvalidData struct {
	Declared NodeType `json:"-"`
	Reason   string   `json:"-"`
	Raw      json.RawMessage
}

func (d InvalidData) NodeType() NodeType { return d.Declared }

func (d InvalidData) Error() string {
	return fmt.Sprintf("invalid %s node data: %s", d.Declared, d.Reason)
}

// MarshalJSON re-emits the raw payload untouched.
func (d InvalidData) MarshalJSON() ([]byte, error) {
	if len(d.Raw) == 0 {
		return []byte("{}"), nil
	}

	return d.Raw, nil
}

// nodeJSON is the wire shape of a node, with the payload still raw.
type nodeJSON struct {
	ID        string          `json:"id"`
	Type      NodeType        `json:"type"`
	Data      json.RawMessage `json:"data"`
	PositionX int             `json:"position_x,omitempty"`
	PositionY int             `json:"position_y,omitempty"`
}

// UnmarshalJSON decodes the per-type payload eagerly. Unknown node types and
// undecodable payloads produce InvalidData rather than an unmarshal error so
// a stored flow always loads.
func (n *Node) UnmarshalJSON(data []byte) error {
	var raw nodeJSON

	err := json.Unmarshal(data, &raw)
	if err != nil {
		return fmt.Errorf("failed to decode node: %w", err)
	}

	n.ID = raw.ID
	n.Type = raw.Type
	n.PositionX = raw.PositionX
	n.PositionY = raw.PositionY
	n.Data = DecodeNodeData(raw.Type, raw.Data)

	return nil
}

// MarshalJSON re-emits the typed payload under "data".
func (n Node) MarshalJSON() ([]byte, error) {
	var (
		payload json.RawMessage
		err     error
	)

	switch data := n.Data.(type) {
	case InvalidData:
		payload = data.Raw
	case nil:
		payload = json.RawMessage("{}")
	default:
		payload, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to encode node %s data: %w", n.ID, err)
		}
	}

	return json.Marshal(nodeJSON{
		ID:        n.ID,
		Type:      n.Type,
		Data:      payload,
		PositionX: n.PositionX,
		PositionY: n.PositionY,
	})
}

// DecodeNodeData decodes a raw payload into the typed payload for the given
// node type. It never fails: malformed input degrades to InvalidData.
func DecodeNodeData(nodeType NodeType, raw json.RawMessage) NodeData {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}

	decode := func(target NodeData) NodeData {
		err := json.Unmarshal(raw, target)
		if err != nil {
			return InvalidData{Declared: nodeType, Reason: err.Error(), Raw: raw}
		}

		switch v := target.(type) {
		case *SendMessageData:
			return *v
		case *ConditionData:
			return *v
		case *WaitData:
			return *v
		case *TagData:
			return *v
		case *MoveStageData:
			return *v
		case *WebhookData:
			return *v
		default:
			return InvalidData{Declared: nodeType, Reason: "unsupported payload type", Raw: raw}
		}
	}

	switch nodeType {
	case NodeTypeSendMessage:
		return decode(&SendMessageData{})
	case NodeTypeCondition:
		return decode(&ConditionData{})
	case NodeTypeWait:
		return decode(&WaitData{})
	case NodeTypeTag:
		return decode(&TagData{})
	case NodeTypeMoveStage:
		return decode(&MoveStageData{})
	case NodeTypeWebhook:
		return decode(&WebhookData{})
	default:
		return InvalidData{Declared: nodeType, Reason: "unknown node type", Raw: raw}
	}
}
