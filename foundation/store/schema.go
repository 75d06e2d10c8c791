package store

// schemaSQL creates every table and index the store needs, idempotently.
// It runs on every startup and never migrates in place: a table or index
// that already exists is left as it is, and is not checked against the
// definition below.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS block (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	block_address   BLOB NOT NULL UNIQUE,
	parent_block_id INTEGER NOT NULL,
	number          INTEGER NOT NULL,
	timestamp_secs  INTEGER NOT NULL,
	timestamp_nanos INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_block_number ON block(number);
CREATE INDEX IF NOT EXISTS idx_block_parent ON block(parent_block_id);

CREATE TABLE IF NOT EXISTS solution_set (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	content_hash BLOB NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS block_solution_set (
	block_id          INTEGER NOT NULL REFERENCES block(id),
	solution_set_id   INTEGER NOT NULL REFERENCES solution_set(id),
	solution_set_index INTEGER NOT NULL,
	UNIQUE (block_id, solution_set_index)
);
CREATE INDEX IF NOT EXISTS idx_bss_block ON block_solution_set(block_id);
CREATE INDEX IF NOT EXISTS idx_bss_set ON block_solution_set(solution_set_id);

CREATE TABLE IF NOT EXISTS solution (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	solution_set_id INTEGER NOT NULL REFERENCES solution_set(id),
	solution_index  INTEGER NOT NULL,
	contract_addr   BLOB NOT NULL,
	predicate_addr  BLOB NOT NULL,
	UNIQUE (solution_set_id, solution_index)
);
CREATE INDEX IF NOT EXISTS idx_solution_set ON solution(solution_set_id);
CREATE INDEX IF NOT EXISTS idx_solution_contract ON solution(contract_addr, predicate_addr);

CREATE TABLE IF NOT EXISTS mutation (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	solution_id    INTEGER NOT NULL REFERENCES solution(id),
	mutation_index INTEGER NOT NULL,
	key            BLOB NOT NULL,
	value          BLOB NOT NULL,
	UNIQUE (solution_id, mutation_index)
);
CREATE INDEX IF NOT EXISTS idx_mutation_solution ON mutation(solution_id);

CREATE TABLE IF NOT EXISTS dec_var (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	solution_id   INTEGER NOT NULL REFERENCES solution(id),
	dec_var_index INTEGER NOT NULL,
	value         BLOB NOT NULL,
	UNIQUE (solution_id, dec_var_index)
);

CREATE TABLE IF NOT EXISTS pred_data (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	solution_id     INTEGER NOT NULL REFERENCES solution(id),
	pred_data_index INTEGER NOT NULL,
	value           BLOB NOT NULL,
	UNIQUE (solution_id, pred_data_index)
);

CREATE TABLE IF NOT EXISTS pub_var (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	solution_id    INTEGER NOT NULL REFERENCES solution(id),
	pub_var_index  INTEGER NOT NULL,
	value          BLOB NOT NULL,
	UNIQUE (solution_id, pub_var_index)
);

CREATE TABLE IF NOT EXISTS contract (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	content_hash       BLOB NOT NULL UNIQUE,
	salt               BLOB NOT NULL,
	created_at_seconds INTEGER NOT NULL,
	created_at_nanos   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS predicate (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	content_hash BLOB NOT NULL UNIQUE,
	predicate    BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS contract_predicate (
	contract_id  INTEGER NOT NULL REFERENCES contract(id),
	predicate_id INTEGER NOT NULL REFERENCES predicate(id),
	UNIQUE (contract_id, predicate_id)
);
CREATE INDEX IF NOT EXISTS idx_cp_contract ON contract_predicate(contract_id);

CREATE TABLE IF NOT EXISTS finalized_block (
	block_number INTEGER PRIMARY KEY,
	block_id     INTEGER NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS failed_block (
	block_id        INTEGER NOT NULL,
	solution_set_id INTEGER NOT NULL,
	UNIQUE (block_id, solution_set_id)
);
CREATE INDEX IF NOT EXISTS idx_failed_block ON failed_block(block_id);

CREATE TABLE IF NOT EXISTS validation_progress (
	id           INTEGER PRIMARY KEY CHECK (id = 1),
	block_id     INTEGER NOT NULL,
	block_number INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS relayer_progress (
	stream        TEXT PRIMARY KEY,
	cursor        BLOB,
	cursor_number INTEGER NOT NULL
);
`
