package registry

import "github.com/reapflow/reapflow/pkg/models"

// RegisterDefaultNodes installs the built-in node catalog: the trigger,
// action, and condition subtypes the workflow editor offers. Action
// factories are registered separately because they carry collaborator
// dependencies.
func (r *Registry) RegisterDefaultNodes() {
	r.RegisterNode(&models.NodeDescriptor{
		Subtype:     models.NodeTypeTriggerNewContact,
		Kind:        models.NodeKindTrigger,
		Label:       "New Contact",
		Description: "Fires when a contact is created in the subaccount",
		ConfigSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"stage": map[string]any{
					"type":        "string",
					"description": "Only fire for contacts entering this lead stage",
					"enum": []string{
						"new", "contacted", "qualified", "proposal",
						"negotiation", "closed_won", "closed_lost",
					},
				},
			},
		},
	})

	r.RegisterNode(&models.NodeDescriptor{
		Subtype:     models.NodeTypeTriggerTagAdded,
		Kind:        models.NodeKindTrigger,
		Label:       "Tag Added",
		Description: "Fires when a tag is added to a contact",
		ConfigSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"tag": map[string]any{
					"type":        "string",
					"description": "Only fire when this tag is added; empty matches any tag",
				},
			},
		},
	})

	r.RegisterNode(&models.NodeDescriptor{
		Subtype:     models.NodeTypeTriggerFormSubmitted,
		Kind:        models.NodeKindTrigger,
		Label:       "Form Submitted",
		Description: "Fires when a lead form is submitted",
		ConfigSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"form_id": map[string]any{
					"type":        "string",
					"description": "Only fire for this form; empty matches any form",
				},
			},
		},
	})

	r.RegisterNode(&models.NodeDescriptor{
		Subtype:     models.NodeTypeTriggerEmailOpened,
		Kind:        models.NodeKindTrigger,
		Label:       "Email Opened",
		Description: "Fires when a tracked email is opened",
		ConfigSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"template_id": map[string]any{
					"type":        "string",
					"description": "Only fire for emails sent from this template",
				},
			},
		},
	})

	r.RegisterNode(&models.NodeDescriptor{
		Subtype:     models.NodeTypeTriggerDateTime,
		Kind:        models.NodeKindTrigger,
		Label:       "Date / Time",
		Description: "Fires on a cron schedule",
		ConfigSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"cron": map[string]any{
					"type":        "string",
					"description": "Standard 5-field cron expression",
					"examples":    []string{"0 9 * * *", "*/15 * * * *", "0 18 * * 5"},
				},
			},
			"required": []string{"cron"},
		},
	})

	r.RegisterNode(&models.NodeDescriptor{
		Subtype:     models.NodeTypeActionSendEmail,
		Kind:        models.NodeKindAction,
		Label:       "Send Email",
		Description: "Sends an email to the triggering contact",
		ConfigSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"template_id": map[string]any{
					"type":        "string",
					"description": "Email template to render",
				},
				"to": map[string]any{
					"type":        "string",
					"description": "Recipient override; defaults to the triggering contact's email",
				},
				"subject": map[string]any{
					"type":        "string",
					"description": "Subject override",
				},
			},
			"required": []string{"template_id"},
		},
	})

	r.RegisterNode(&models.NodeDescriptor{
		Subtype:     models.NodeTypeActionSendSMS,
		Kind:        models.NodeKindAction,
		Label:       "Send SMS",
		Description: "Sends a text message to the triggering contact",
		ConfigSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"message": map[string]any{
					"type":        "string",
					"description": "Message body; supports template placeholders",
				},
				"to": map[string]any{
					"type":        "string",
					"description": "Recipient override; defaults to the triggering contact's phone",
				},
			},
			"required": []string{"message"},
		},
	})

	r.RegisterNode(&models.NodeDescriptor{
		Subtype:     models.NodeTypeActionAddTag,
		Kind:        models.NodeKindAction,
		Label:       "Add Tag",
		Description: "Adds a tag to the triggering contact",
		ConfigSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"tag": map[string]any{
					"type":        "string",
					"description": "Tag to add",
					"minLength":   1,
				},
			},
			"required": []string{"tag"},
		},
	})

	r.RegisterNode(&models.NodeDescriptor{
		Subtype:     models.NodeTypeActionCreateTask,
		Kind:        models.NodeKindAction,
		Label:       "Create Task",
		Description: "Creates a follow-up task for the subaccount team",
		ConfigSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"title": map[string]any{
					"type":        "string",
					"description": "Task title; supports template placeholders",
					"minLength":   1,
				},
				"description": map[string]any{
					"type": "string",
				},
				"due_in_days": map[string]any{
					"type":        "number",
					"description": "Days from now until the task is due",
					"minimum":     0,
				},
			},
			"required": []string{"title"},
		},
	})

	r.RegisterNode(&models.NodeDescriptor{
		Subtype:     models.NodeTypeActionPostAd,
		Kind:        models.NodeKindAction,
		Label:       "Post Ad",
		Description: "Posts ad content to a campaign platform webhook",
		ConfigSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"platform": map[string]any{
					"type": "string",
					"enum": []string{"facebook", "instagram", "youtube", "google", "linkedin"},
				},
				"webhook_url": map[string]any{
					"type":        "string",
					"description": "Platform integration endpoint to post to",
				},
				"payload": map[string]any{
					"type":        "object",
					"description": "Ad content forwarded verbatim",
				},
			},
			"required": []string{"platform", "webhook_url"},
		},
	})

	r.RegisterNode(&models.NodeDescriptor{
		Subtype:     models.NodeTypeActionDelay,
		Kind:        models.NodeKindAction,
		Label:       "Delay",
		Description: "Suspends the execution for a fixed duration",
		ConfigSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"duration": map[string]any{
					"type":        "string",
					"description": "Go duration to wait (e.g. 30m, 48h)",
				},
			},
			"required": []string{"duration"},
		},
	})

	r.RegisterNode(&models.NodeDescriptor{
		Subtype:     models.NodeTypeConditionIfThen,
		Kind:        models.NodeKindCondition,
		Label:       "If / Then",
		Description: "Routes the execution down the yes or no branch",
		ConfigSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"field": map[string]any{
					"type":        "string",
					"description": "Trigger payload field to inspect (e.g. tags, stage, email)",
					"minLength":   1,
				},
				"operator": map[string]any{
					"type": "string",
					"enum": []string{
						"equals", "not_equals", "contains", "not_contains",
						"exists", "not_exists", "greater_than", "less_than",
					},
				},
				"value": map[string]any{
					"description": "Comparison operand; unused for exists",
				},
			},
			"required": []string{"field", "operator"},
		},
	})
}
