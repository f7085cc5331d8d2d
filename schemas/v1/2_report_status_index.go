package v1

// Schema version 2 indexes processing reports by status so failed events can be found quickly

func init() {
	patches.Register(
		2,
		`
	CREATE INDEX IF NOT EXISTS visor_processing_reports_status_idx ON {{ .SchemaName | default "public"}}.visor_processing_reports USING btree (status, block_number DESC);

	COMMENT ON TABLE {{ .SchemaName | default "public"}}.visor_processing_reports IS 'Outcome of projecting each contract event. ERROR rows had their writes rolled back.';
	COMMENT ON TABLE {{ .SchemaName | default "public"}}.visor_cursors IS 'Position of the last contract event applied to the entity tables.';
`)
}
