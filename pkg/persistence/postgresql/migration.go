package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Create flows table
			CREATE TABLE flows (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				trigger VARCHAR(50) NOT NULL,
				nodes JSONB NOT NULL DEFAULT '[]',
				edges JSONB NOT NULL DEFAULT '[]',
				is_active BOOLEAN NOT NULL DEFAULT false,
				executions_count BIGINT NOT NULL DEFAULT 0,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_flows_trigger ON flows(trigger);
			CREATE INDEX idx_flows_is_active ON flows(is_active);
			CREATE INDEX idx_flows_created_at ON flows(created_at);

			-- Create automation_rules table
			CREATE TABLE automation_rules (
				id VARCHAR(255) PRIMARY KEY,
				stage_id VARCHAR(255) NOT NULL,
				trigger VARCHAR(50) NOT NULL,
				trigger_delay_hours DOUBLE PRECISION NOT NULL DEFAULT 0,
				conditions JSONB NOT NULL DEFAULT '[]',
				action_type VARCHAR(50) NOT NULL,
				action_config JSONB NOT NULL DEFAULT '{}',
				position INT NOT NULL DEFAULT 0,
				is_active BOOLEAN NOT NULL DEFAULT false,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_automation_rules_stage_trigger ON automation_rules(stage_id, trigger);
			CREATE INDEX idx_automation_rules_is_active ON automation_rules(is_active);

			-- Create queued_triggers table
			CREATE TABLE queued_triggers (
				id VARCHAR(255) PRIMARY KEY,
				automation_id VARCHAR(255) NOT NULL,
				lead_id VARCHAR(255) NOT NULL,
				execute_at TIMESTAMP WITH TIME ZONE NOT NULL,
				status VARCHAR(20) NOT NULL DEFAULT 'pending',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_queued_triggers_status_execute_at ON queued_triggers(status, execute_at);
			CREATE INDEX idx_queued_triggers_lead_id ON queued_triggers(lead_id);

			-- Create execution_log table
			CREATE TABLE execution_log (
				id VARCHAR(255) PRIMARY KEY,
				flow_id VARCHAR(255) NOT NULL,
				lead_id VARCHAR(255) NOT NULL,
				node_id VARCHAR(255) NOT NULL,
				status VARCHAR(20) NOT NULL,
				message TEXT NOT NULL DEFAULT '',
				ts TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_execution_log_lead_id ON execution_log(lead_id, ts);
			CREATE INDEX idx_execution_log_flow_id ON execution_log(flow_id, ts);
		`,
	}
}
