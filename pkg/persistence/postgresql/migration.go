package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE workflows (
				id UUID PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				subaccount_id UUID NOT NULL,
				created_by UUID NOT NULL,
				active BOOLEAN NOT NULL DEFAULT false,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				deleted_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_workflows_subaccount_id ON workflows(subaccount_id);
			CREATE INDEX idx_workflows_active ON workflows(active);
			CREATE INDEX idx_workflows_deleted_at ON workflows(deleted_at);

			CREATE TABLE workflow_nodes (
				workflow_id UUID NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				id VARCHAR(255) NOT NULL,
				kind VARCHAR(50) NOT NULL CHECK (kind IN ('trigger', 'action', 'condition')),
				subtype VARCHAR(255) NOT NULL,
				config JSONB NOT NULL DEFAULT '{}',
				position_x INT NOT NULL DEFAULT 0,
				position_y INT NOT NULL DEFAULT 0,
				PRIMARY KEY (workflow_id, id)
			);

			CREATE INDEX idx_workflow_nodes_workflow_id ON workflow_nodes(workflow_id);
			CREATE INDEX idx_workflow_nodes_subtype ON workflow_nodes(subtype);

			CREATE TABLE workflow_edges (
				workflow_id UUID NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				id VARCHAR(255) NOT NULL,
				source_node_id VARCHAR(255) NOT NULL,
				handle VARCHAR(50) NOT NULL DEFAULT '',
				target_node_id VARCHAR(255) NOT NULL,
				PRIMARY KEY (workflow_id, id)
			);

			CREATE INDEX idx_workflow_edges_workflow_id ON workflow_edges(workflow_id);
			CREATE UNIQUE INDEX idx_workflow_edges_source_handle ON workflow_edges(workflow_id, source_node_id, handle);

			CREATE TABLE workflow_steps (
				id UUID PRIMARY KEY,
				workflow_id UUID NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				step_order INT NOT NULL,
				step_type VARCHAR(50) NOT NULL,
				subtype VARCHAR(255) NOT NULL,
				configuration JSONB NOT NULL DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				UNIQUE (workflow_id, step_order)
			);

			CREATE INDEX idx_workflow_steps_workflow_id ON workflow_steps(workflow_id);

			CREATE TABLE executions (
				id UUID PRIMARY KEY,
				workflow_id UUID NOT NULL,
				subaccount_id UUID NOT NULL,
				event_id VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL,
				nodes JSONB NOT NULL DEFAULT '[]',
				edges JSONB NOT NULL DEFAULT '[]',
				cursor_node_id VARCHAR(255) NOT NULL DEFAULT '',
				trigger_data JSONB NOT NULL DEFAULT '{}',
				node_results JSONB NOT NULL DEFAULT '{}',
				dispatched JSONB NOT NULL DEFAULT '{}',
				failed_node_id VARCHAR(255),
				last_error TEXT,
				resume_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				finished_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_executions_workflow_id ON executions(workflow_id);
			CREATE INDEX idx_executions_subaccount_id ON executions(subaccount_id);
			CREATE INDEX idx_executions_status ON executions(status);
			CREATE INDEX idx_executions_resume_at ON executions(resume_at) WHERE status = 'waiting';

			CREATE TABLE execution_dedup (
				event_id VARCHAR(255) NOT NULL,
				workflow_id UUID NOT NULL,
				acquired_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				PRIMARY KEY (event_id, workflow_id)
			);
		`,
		2: `
			CREATE TABLE contacts (
				id UUID PRIMARY KEY,
				subaccount_id UUID NOT NULL,
				first_name VARCHAR(255) NOT NULL DEFAULT '',
				last_name VARCHAR(255) NOT NULL DEFAULT '',
				email VARCHAR(255),
				phone VARCHAR(50),
				stage VARCHAR(50) NOT NULL DEFAULT 'new',
				tags JSONB NOT NULL DEFAULT '[]',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_contacts_subaccount_id ON contacts(subaccount_id);
			CREATE INDEX idx_contacts_email ON contacts(email);

			CREATE TABLE email_templates (
				id UUID PRIMARY KEY,
				subaccount_id UUID NOT NULL,
				name VARCHAR(255) NOT NULL,
				subject TEXT NOT NULL,
				body TEXT NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_email_templates_subaccount_id ON email_templates(subaccount_id);

			CREATE TABLE tasks (
				id UUID PRIMARY KEY,
				subaccount_id UUID NOT NULL,
				contact_id UUID,
				title VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				due_at TIMESTAMP WITH TIME ZONE,
				done BOOLEAN NOT NULL DEFAULT false,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_tasks_subaccount_id ON tasks(subaccount_id);
			CREATE INDEX idx_tasks_contact_id ON tasks(contact_id);
		`,
	}
}
