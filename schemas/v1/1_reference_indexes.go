package v1

// Schema version 1 adds indexes on entity references

func init() {
	patches.Register(
		1,
		`
	CREATE INDEX IF NOT EXISTS plans_provider_idx ON {{ .SchemaName | default "public"}}.plans USING btree (provider);
	CREATE INDEX IF NOT EXISTS user_subscriptions_plan_idx ON {{ .SchemaName | default "public"}}.user_subscriptions USING btree (plan);
	CREATE INDEX IF NOT EXISTS user_subscriptions_subscriber_idx ON {{ .SchemaName | default "public"}}.user_subscriptions USING btree (subscriber);
	CREATE INDEX IF NOT EXISTS payments_subscription_idx ON {{ .SchemaName | default "public"}}.payments USING btree (subscription);
	CREATE INDEX IF NOT EXISTS payments_to_idx ON {{ .SchemaName | default "public"}}.payments USING btree ("to");
	CREATE INDEX IF NOT EXISTS provider_earnings_provider_idx ON {{ .SchemaName | default "public"}}.provider_earnings USING btree (provider);
	CREATE INDEX IF NOT EXISTS provider_earnings_plan_idx ON {{ .SchemaName | default "public"}}.provider_earnings USING btree (plan);
`)
}
