package storage

// Schema is the authoritative DDL for both persistence surfaces. The
// column set is kept bit-exact with existing deployments; deviations
// between the SQL and HTTP paths are bugs.
const Schema = `
CREATE TABLE IF NOT EXISTS chats (
    id              BIGSERIAL PRIMARY KEY,
    chat_id         TEXT NOT NULL UNIQUE,
    chat_name       TEXT NOT NULL DEFAULT '',
    chat_type       TEXT NOT NULL DEFAULT 'group',
    is_active       BOOLEAN NOT NULL DEFAULT TRUE,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    last_message_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS messages (
    id          BIGSERIAL PRIMARY KEY,
    message_id  TEXT NOT NULL,
    chat_id     BIGINT NOT NULL REFERENCES chats(id),
    author_id   TEXT NOT NULL DEFAULT '',
    author_name TEXT,
    text        TEXT NOT NULL,
    timestamp   TIMESTAMPTZ NOT NULL,
    processed   BOOLEAN NOT NULL DEFAULT FALSE,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (message_id, chat_id)
);

CREATE TABLE IF NOT EXISTS userbot_orders (
    id              BIGSERIAL PRIMARY KEY,
    message_id      TEXT NOT NULL UNIQUE,
    chat_id         BIGINT NOT NULL REFERENCES chats(id),
    author_id       TEXT NOT NULL DEFAULT '',
    author_name     TEXT,
    text            TEXT NOT NULL,
    category        TEXT NOT NULL,
    relevance_score DOUBLE PRECISION NOT NULL CHECK (relevance_score >= 0 AND relevance_score <= 1),
    detected_by     TEXT NOT NULL,
    telegram_link   TEXT,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    exported        BOOLEAN NOT NULL DEFAULT FALSE,
    feedback        TEXT,
    notes           TEXT
);

CREATE TABLE IF NOT EXISTS stats (
    id                   BIGSERIAL PRIMARY KEY,
    date                 TEXT NOT NULL UNIQUE,
    total_messages       BIGINT NOT NULL DEFAULT 0,
    detected_orders      BIGINT NOT NULL DEFAULT 0,
    regex_detections     BIGINT NOT NULL DEFAULT 0,
    llm_detections       BIGINT NOT NULL DEFAULT 0,
    llm_tokens_used      BIGINT NOT NULL DEFAULT 0,
    llm_cost             DOUBLE PRECISION NOT NULL DEFAULT 0,
    avg_response_time_ms DOUBLE PRECISION NOT NULL DEFAULT 0,
    false_positive_count BIGINT NOT NULL DEFAULT 0,
    created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS chat_stats (
    id               BIGSERIAL PRIMARY KEY,
    chat_id          BIGINT NOT NULL REFERENCES chats(id),
    date             TEXT NOT NULL,
    messages_count   BIGINT NOT NULL DEFAULT 0,
    orders_count     BIGINT NOT NULL DEFAULT 0,
    order_percentage DOUBLE PRECISION NOT NULL DEFAULT 0,
    UNIQUE (chat_id, date)
);

CREATE TABLE IF NOT EXISTS feedback (
    id            BIGSERIAL PRIMARY KEY,
    order_id      BIGINT NOT NULL REFERENCES userbot_orders(id),
    feedback_type TEXT NOT NULL,
    reason        TEXT,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_messages_timestamp ON messages (timestamp);
CREATE INDEX IF NOT EXISTS idx_orders_created_at  ON userbot_orders (created_at);
CREATE INDEX IF NOT EXISTS idx_orders_category    ON userbot_orders (category);
`
