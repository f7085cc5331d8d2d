package v1

// BaseTemplate is the template the initial schema for this major version. The template expects variables to be
// passed using the schema.Config struct. Patches are applied on top of this base.
var BaseTemplate = `

{{- if and .SchemaName (ne .SchemaName "public") }}
SET search_path TO {{ .SchemaName }},public;
{{- end }}

-- =====================================================================================================================
-- TABLES
-- =====================================================================================================================

-- ----------------------------------------------------------------
-- Name: providers
-- Model: escrow.Provider
-- Growth: One row per registered provider
-- ----------------------------------------------------------------
CREATE TABLE {{ .SchemaName | default "public"}}.providers (
    id text NOT NULL,
    address text NOT NULL,
    name text NOT NULL,
    registered_at bigint NOT NULL,
    total_plans bigint NOT NULL,
    total_subscriptions bigint NOT NULL,
    total_revenue numeric NOT NULL,
    total_earnings numeric NOT NULL,
    last_activity_at bigint NOT NULL,
    is_active boolean NOT NULL,
    monthly_revenue numeric NOT NULL,
    weekly_revenue numeric NOT NULL,
    avg_revenue_per_subscription numeric NOT NULL,
    PRIMARY KEY (id)
);

-- ----------------------------------------------------------------
-- Name: plans
-- Model: escrow.Plan
-- Growth: One row per created plan
-- ----------------------------------------------------------------
CREATE TABLE {{ .SchemaName | default "public"}}.plans (
    id text NOT NULL,
    plan_id text NOT NULL,
    provider text NOT NULL,
    price numeric NOT NULL,
    "interval" bigint NOT NULL,
    created_at bigint NOT NULL,
    total_subscriptions bigint NOT NULL,
    active_subscriptions bigint NOT NULL,
    total_revenue numeric NOT NULL,
    subscription_rate numeric NOT NULL,
    avg_subscription_length bigint NOT NULL,
    churn_rate numeric NOT NULL,
    is_popular boolean NOT NULL,
    PRIMARY KEY (id)
);

-- ----------------------------------------------------------------
-- Name: user_subscriptions
-- Model: escrow.UserSubscription
-- Growth: One row per subscription
-- ----------------------------------------------------------------
CREATE TABLE {{ .SchemaName | default "public"}}.user_subscriptions (
    id text NOT NULL,
    subscription_id text NOT NULL,
    plan text NOT NULL,
    subscriber text NOT NULL,
    created_at bigint NOT NULL,
    is_active boolean NOT NULL,
    last_payment_at bigint NOT NULL,
    next_payment_due bigint NOT NULL,
    total_paid numeric NOT NULL,
    payment_count bigint NOT NULL,
    subscription_length bigint NOT NULL,
    avg_payment_amount numeric NOT NULL,
    status text NOT NULL,
    PRIMARY KEY (id)
);

-- ----------------------------------------------------------------
-- Name: payments
-- Model: escrow.Payment
-- Growth: One row per PaymentProcessed event
-- ----------------------------------------------------------------
CREATE TABLE {{ .SchemaName | default "public"}}.payments (
    id text NOT NULL,
    subscription text NOT NULL,
    "from" text NOT NULL,
    "to" text NOT NULL,
    amount numeric NOT NULL,
    "timestamp" bigint NOT NULL,
    transaction_hash text NOT NULL,
    block_number bigint NOT NULL,
    is_recurring boolean NOT NULL,
    payment_index bigint NOT NULL,
    protocol_fee numeric NOT NULL,
    provider_amount numeric NOT NULL,
    PRIMARY KEY (id)
);

-- ----------------------------------------------------------------
-- Name: provider_earnings
-- Model: escrow.ProviderEarning
-- Growth: One row per ProviderEarnings event
-- ----------------------------------------------------------------
CREATE TABLE {{ .SchemaName | default "public"}}.provider_earnings (
    id text NOT NULL,
    provider text NOT NULL,
    plan text NOT NULL,
    amount numeric NOT NULL,
    "timestamp" bigint NOT NULL,
    transaction_hash text NOT NULL,
    block_number bigint NOT NULL,
    cumulative_earnings numeric NOT NULL,
    earning_type text NOT NULL,
    PRIMARY KEY (id)
);

-- ----------------------------------------------------------------
-- Name: escrow_deposits
-- Model: escrow.EscrowDeposit
-- Growth: One row per EscrowDeposit event
-- ----------------------------------------------------------------
CREATE TABLE {{ .SchemaName | default "public"}}.escrow_deposits (
    id text NOT NULL,
    "user" text NOT NULL,
    amount numeric NOT NULL,
    new_balance numeric NOT NULL,
    block_number bigint NOT NULL,
    block_timestamp bigint NOT NULL,
    transaction_hash text NOT NULL,
    PRIMARY KEY (id)
);

-- ----------------------------------------------------------------
-- Name: escrow_withdrawals
-- Model: escrow.EscrowWithdrawal
-- Growth: One row per EscrowWithdrawal event
-- ----------------------------------------------------------------
CREATE TABLE {{ .SchemaName | default "public"}}.escrow_withdrawals (
    id text NOT NULL,
    "user" text NOT NULL,
    amount numeric NOT NULL,
    new_balance numeric NOT NULL,
    block_number bigint NOT NULL,
    block_timestamp bigint NOT NULL,
    transaction_hash text NOT NULL,
    PRIMARY KEY (id)
);

-- ----------------------------------------------------------------
-- Name: escrow_accounts
-- Model: escrow.EscrowAccount
-- Growth: One row per user that has deposited
-- ----------------------------------------------------------------
CREATE TABLE {{ .SchemaName | default "public"}}.escrow_accounts (
    id text NOT NULL,
    balance numeric NOT NULL,
    total_deposited numeric NOT NULL,
    total_withdrawn numeric NOT NULL,
    deposit_count bigint NOT NULL,
    withdrawal_count bigint NOT NULL,
    last_activity_at bigint NOT NULL,
    PRIMARY KEY (id)
);

-- ----------------------------------------------------------------
-- Name: global_stats
-- Model: escrow.GlobalStats
-- Growth: Single row
-- ----------------------------------------------------------------
CREATE TABLE {{ .SchemaName | default "public"}}.global_stats (
    id text NOT NULL,
    total_providers bigint NOT NULL,
    total_plans bigint NOT NULL,
    total_subscriptions bigint NOT NULL,
    total_payments bigint NOT NULL,
    total_volume numeric NOT NULL,
    total_earnings numeric NOT NULL,
    total_escrowed numeric NOT NULL,
    last_updated_at bigint NOT NULL,
    PRIMARY KEY (id)
);

-- ----------------------------------------------------------------
-- Name: daily_metrics
-- Model: escrow.DailyMetric
-- Growth: One row per day with activity
-- ----------------------------------------------------------------
CREATE TABLE {{ .SchemaName | default "public"}}.daily_metrics (
    id text NOT NULL,
    "date" bigint NOT NULL,
    new_providers bigint NOT NULL,
    new_plans bigint NOT NULL,
    new_subscriptions bigint NOT NULL,
    payments bigint NOT NULL,
    volume numeric NOT NULL,
    earnings numeric NOT NULL,
    PRIMARY KEY (id)
);

-- ----------------------------------------------------------------
-- Name: visor_cursors
-- Model: visor.Cursor
-- Growth: One row per indexed contract
-- ----------------------------------------------------------------
CREATE TABLE {{ .SchemaName | default "public"}}.visor_cursors (
    id text NOT NULL,
    block_number bigint NOT NULL,
    log_index bigint NOT NULL,
    block_timestamp bigint NOT NULL,
    PRIMARY KEY (id)
);

-- ----------------------------------------------------------------
-- Name: visor_processing_reports
-- Model: visor.ProcessingReport
-- Growth: One row per processed contract event
-- ----------------------------------------------------------------
CREATE TABLE {{ .SchemaName | default "public"}}.visor_processing_reports (
    block_number bigint NOT NULL,
    log_index bigint NOT NULL,
    transaction_hash text NOT NULL,
    reporter text NOT NULL,
    event_kind text,
    started_at timestamp with time zone NOT NULL,
    completed_at timestamp with time zone NOT NULL,
    status text NOT NULL,
    status_information text,
    errors_detected jsonb,
    PRIMARY KEY (block_number, log_index, transaction_hash, reporter)
);
`
