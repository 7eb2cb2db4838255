package postgres

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Create leads table
			CREATE TABLE leads (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL DEFAULT '',
				phone VARCHAR(50) NOT NULL DEFAULT '',
				stage_id VARCHAR(255) NOT NULL DEFAULT '',
				responsible_id VARCHAR(255) NOT NULL DEFAULT '',
				channel_id VARCHAR(255) NOT NULL DEFAULT '',
				messenger_id VARCHAR(255) NOT NULL DEFAULT '',
				attributes JSONB NOT NULL DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_leads_stage_id ON leads(stage_id);

			-- Create tags table
			CREATE TABLE tags (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL DEFAULT ''
			);

			-- Create lead_tags join table
			CREATE TABLE lead_tags (
				lead_id VARCHAR(255) NOT NULL REFERENCES leads(id) ON DELETE CASCADE,
				tag_id VARCHAR(255) NOT NULL,
				PRIMARY KEY (lead_id, tag_id)
			);

			-- Create stage_history table
			CREATE TABLE stage_history (
				id BIGSERIAL PRIMARY KEY,
				lead_id VARCHAR(255) NOT NULL,
				from_stage_id VARCHAR(255) NOT NULL DEFAULT '',
				to_stage_id VARCHAR(255) NOT NULL,
				author_id VARCHAR(255) NOT NULL,
				changed_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_stage_history_lead_id ON stage_history(lead_id, changed_at);
		`,
	}
}
