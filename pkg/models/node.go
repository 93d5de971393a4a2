package models

// NodeKind is the structural category of a node in a workflow graph.
type NodeKind string

const (
	NodeKindTrigger   NodeKind = "trigger"
	NodeKindAction    NodeKind = "action"
	NodeKindCondition NodeKind = "condition"
)

// Built-in trigger subtypes.
const (
	NodeTypeTriggerNewContact    = "trigger:new_contact"
	NodeTypeTriggerTagAdded      = "trigger:tag_added"
	NodeTypeTriggerFormSubmitted = "trigger:form_submitted"
	NodeTypeTriggerEmailOpened   = "trigger:email_opened"
	NodeTypeTriggerDateTime      = "trigger:date_time"
)

// Built-in action subtypes.
const (
	NodeTypeActionSendEmail  = "action:send_email"
	NodeTypeActionSendSMS    = "action:send_sms"
	NodeTypeActionAddTag     = "action:add_tag"
	NodeTypeActionCreateTask = "action:create_task"
	NodeTypeActionPostAd     = "action:post_ad"
	NodeTypeActionDelay      = "action:delay"
)

// Built-in condition subtypes.
const (
	NodeTypeConditionIfThen = "condition:if_then"
)

// Edge handle labels. Trigger and action nodes have a single unlabeled
// outgoing handle; condition nodes have a yes and a no handle.
const (
	HandleDefault = ""
	HandleYes     = "yes"
	HandleNo      = "no"
)

// Node is a typed vertex in a workflow graph. Position is presentation-only.
type Node struct {
	ID        string         `json:"id"        validate:"required"`
	Kind      NodeKind       `json:"kind"      validate:"required,oneof=trigger action condition"`
	Subtype   string         `json:"subtype"   validate:"required"`
	Config    map[string]any `json:"config"`
	PositionX int            `json:"position_x"`
	PositionY int            `json:"position_y"`
}

// Handles returns the outgoing handle labels valid for this node's kind.
func (n *Node) Handles() []string {
	if n.Kind == NodeKindCondition {
		return []string{HandleYes, HandleNo}
	}

	return []string{HandleDefault}
}

// Edge is a directed, optionally labeled connection between two nodes. The
// handle label is significant only when the source is a condition node.
type Edge struct {
	ID       string `json:"id"`
	SourceID string `json:"source_id" validate:"required"`
	Handle   string `json:"handle"`
	TargetID string `json:"target_id" validate:"required"`
}
