package postgres

// GetMigrations returns all embedded migrations in version order.
func GetMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_accounts", UpSQL: migration001Up},
		{Version: 2, Name: "create_catalog", UpSQL: migration002Up},
		{Version: 3, Name: "create_enrollment", UpSQL: migration003Up},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: ACCOUNTS AND SECURITY LOG
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
CREATE TABLE IF NOT EXISTS accounts (
    id UUID PRIMARY KEY,
    email VARCHAR(254) NOT NULL,
    name VARCHAR(100) NOT NULL DEFAULT '',
    password_hash TEXT NOT NULL,
    failed_attempts INTEGER NOT NULL DEFAULT 0,
    locked_until TIMESTAMP WITH TIME ZONE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT accounts_email_key UNIQUE (email),
    CONSTRAINT valid_failed_attempts CHECK (failed_attempts >= 0)
);

-- Append-only: the application never updates or deletes rows.
CREATE TABLE IF NOT EXISTS security_events (
    id UUID PRIMARY KEY,
    account_id UUID REFERENCES accounts(id),
    kind VARCHAR(30) NOT NULL,
    origin VARCHAR(64) NOT NULL DEFAULT '',
    detail TEXT NOT NULL DEFAULT '',
    occurred_at TIMESTAMP WITH TIME ZONE NOT NULL,

    CONSTRAINT valid_kind CHECK (kind IN (
        'login_success', 'login_failure', 'lockout_triggered',
        'suspicious_path', 'rate_limited', 'account_registered'
    ))
);

CREATE INDEX IF NOT EXISTS idx_security_events_account ON security_events(account_id, occurred_at DESC);
CREATE INDEX IF NOT EXISTS idx_security_events_occurred ON security_events(occurred_at DESC);
CREATE INDEX IF NOT EXISTS idx_security_events_origin ON security_events(origin, occurred_at DESC);
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: CATALOG AND PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS courses (
    id UUID PRIMARY KEY,
    slug VARCHAR(120) NOT NULL UNIQUE,
    title VARCHAR(200) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS modules (
    id UUID PRIMARY KEY,
    course_id UUID NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    title VARCHAR(200) NOT NULL,
    content TEXT NOT NULL DEFAULT '',

    UNIQUE (course_id, position),
    CONSTRAINT valid_position CHECK (position >= 1)
);

CREATE TABLE IF NOT EXISTS progress (
    account_id UUID NOT NULL REFERENCES accounts(id),
    course_id UUID NOT NULL REFERENCES courses(id),
    module_id UUID NOT NULL REFERENCES modules(id),
    completed BOOLEAN NOT NULL DEFAULT TRUE,
    completed_at TIMESTAMP WITH TIME ZONE NOT NULL,

    PRIMARY KEY (account_id, module_id)
);

CREATE INDEX IF NOT EXISTS idx_progress_account_course ON progress(account_id, course_id);
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: PAYMENT INTENTS AND LEGS
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
CREATE TABLE IF NOT EXISTS payment_intents (
    id UUID PRIMARY KEY,
    account_id UUID NOT NULL REFERENCES accounts(id),
    course_id UUID NOT NULL REFERENCES courses(id),
    plan VARCHAR(20) NOT NULL,
    amount_expected BIGINT NOT NULL,
    amount_paid BIGINT NOT NULL DEFAULT 0,
    leg_amount BIGINT NOT NULL,
    leg_count INTEGER NOT NULL,
    status VARCHAR(30) NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL,

    CONSTRAINT valid_plan CHECK (plan IN ('full', 'installment')),
    CONSTRAINT valid_intent_status CHECK (status IN (
        'created', 'pending_verification', 'partially_paid', 'paid', 'failed'
    )),
    CONSTRAINT valid_amounts CHECK (amount_paid >= 0 AND amount_expected > 0)
);

-- At most one non-failed intent per (account, course).
CREATE UNIQUE INDEX IF NOT EXISTS payment_intents_one_active
    ON payment_intents(account_id, course_id) WHERE status <> 'failed';
CREATE INDEX IF NOT EXISTS idx_payment_intents_account ON payment_intents(account_id, created_at DESC);

CREATE TABLE IF NOT EXISTS payment_legs (
    reference VARCHAR(100) PRIMARY KEY,
    intent_id UUID NOT NULL REFERENCES payment_intents(id),
    sequence INTEGER NOT NULL,
    amount BIGINT NOT NULL,
    status VARCHAR(20) NOT NULL,
    authorization_url TEXT NOT NULL DEFAULT '',
    access_code VARCHAR(100) NOT NULL DEFAULT '',
    failure_reason TEXT NOT NULL DEFAULT '',
    verified_at TIMESTAMP WITH TIME ZONE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL,

    UNIQUE (intent_id, sequence),
    CONSTRAINT valid_leg_status CHECK (status IN ('pending', 'succeeded', 'failed'))
);

CREATE INDEX IF NOT EXISTS idx_payment_legs_pending ON payment_legs(created_at) WHERE status = 'pending';
`
