package sqlite

const schema = `
-- Audits table
-- snapshot holds the structured audit document rules evaluate against
CREATE TABLE IF NOT EXISTS audits (
    id TEXT PRIMARY KEY,
    brand_name TEXT NOT NULL,
    snapshot TEXT NOT NULL DEFAULT '{}',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_audits_brand ON audits(brand_name);

-- Rules table
-- (code, version) is the stable identity; state is draft/published/disabled
CREATE TABLE IF NOT EXISTS rules (
    id TEXT PRIMARY KEY,
    code TEXT NOT NULL,
    version INTEGER NOT NULL,
    name TEXT NOT NULL CHECK(length(name) <= 500),
    description TEXT NOT NULL DEFAULT '',
    state TEXT NOT NULL DEFAULT 'draft' CHECK(state IN ('draft', 'published', 'disabled')),
    condition_tree TEXT NOT NULL,
    replaces_rule_id TEXT,
    created_by TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    published_at DATETIME,
    disabled_at DATETIME,
    UNIQUE(code, version)
);

CREATE INDEX IF NOT EXISTS idx_rules_code ON rules(code);
CREATE INDEX IF NOT EXISTS idx_rules_state ON rules(state);

-- Evidence claims table (reusable requirements, referenced by rules)
CREATE TABLE IF NOT EXISTS evidence_claims (
    id TEXT PRIMARY KEY,
    category TEXT NOT NULL,
    type TEXT NOT NULL,
    name TEXT NOT NULL,
    weight REAL NOT NULL DEFAULT 1.0 CHECK(weight >= 0 AND weight <= 1),
    criteria TEXT NOT NULL DEFAULT '[]',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_evidence_claims_category ON evidence_claims(category);

-- Rule to evidence-claim join, carrying the per-rule required flag
CREATE TABLE IF NOT EXISTS rule_evidence_claims (
    rule_id TEXT NOT NULL,
    claim_id TEXT NOT NULL,
    required INTEGER NOT NULL DEFAULT 0,
    sort_order INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (rule_id, claim_id),
    FOREIGN KEY (rule_id) REFERENCES rules(id) ON DELETE CASCADE,
    FOREIGN KEY (claim_id) REFERENCES evidence_claims(id)
);

CREATE INDEX IF NOT EXISTS idx_rule_evidence_claims_claim ON rule_evidence_claims(claim_id);

-- Workflow generations
-- UNIQUE(audit_id, generation) is the guard against concurrent generation
-- requests computing the same next number; writers retry on conflict
CREATE TABLE IF NOT EXISTS audit_workflows (
    id TEXT PRIMARY KEY,
    audit_id TEXT NOT NULL,
    generation INTEGER NOT NULL,
    status TEXT NOT NULL DEFAULT 'generated' CHECK(status IN ('generated', 'processing', 'processing_complete', 'processing_failed')),
    overall_score REAL,
    certification TEXT NOT NULL DEFAULT 'none' CHECK(certification IN ('none', 'bronze', 'silver', 'gold')),
    category_scores TEXT NOT NULL DEFAULT '{}',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(audit_id, generation),
    FOREIGN KEY (audit_id) REFERENCES audits(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_audit_workflows_audit ON audit_workflows(audit_id);
CREATE INDEX IF NOT EXISTS idx_audit_workflows_status ON audit_workflows(status);

-- Evidence-claim requirement instances owned by one workflow generation
CREATE TABLE IF NOT EXISTS audit_workflow_claims (
    id TEXT PRIMARY KEY,
    workflow_id TEXT NOT NULL,
    claim_id TEXT NOT NULL,
    required INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL DEFAULT 'required' CHECK(status IN ('required', 'satisfied')),
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(workflow_id, claim_id),
    FOREIGN KEY (workflow_id) REFERENCES audit_workflows(id) ON DELETE CASCADE,
    FOREIGN KEY (claim_id) REFERENCES evidence_claims(id)
);

CREATE INDEX IF NOT EXISTS idx_workflow_claims_workflow ON audit_workflow_claims(workflow_id);

-- Provenance: which rule version caused a workflow claim to be included
CREATE TABLE IF NOT EXISTS audit_workflow_claim_sources (
    workflow_claim_id TEXT NOT NULL,
    rule_id TEXT NOT NULL,
    rule_code TEXT NOT NULL,
    rule_version INTEGER NOT NULL,
    required INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (workflow_claim_id, rule_id),
    FOREIGN KEY (workflow_claim_id) REFERENCES audit_workflow_claims(id) ON DELETE CASCADE,
    FOREIGN KEY (rule_id) REFERENCES rules(id)
);

CREATE INDEX IF NOT EXISTS idx_claim_sources_rule ON audit_workflow_claim_sources(rule_id);

-- One evaluation record per (workflow, published rule) pair, written whether
-- the rule matched, did not match, or errored
CREATE TABLE IF NOT EXISTS audit_workflow_rule_matches (
    workflow_id TEXT NOT NULL,
    rule_id TEXT NOT NULL,
    rule_code TEXT NOT NULL,
    rule_version INTEGER NOT NULL,
    matched INTEGER NOT NULL DEFAULT 0,
    error TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (workflow_id, rule_id),
    FOREIGN KEY (workflow_id) REFERENCES audit_workflows(id) ON DELETE CASCADE,
    FOREIGN KEY (rule_id) REFERENCES rules(id)
);

-- Evidence submissions and their automated evaluation outcomes
CREATE TABLE IF NOT EXISTS evidence_submissions (
    id TEXT PRIMARY KEY,
    workflow_claim_id TEXT NOT NULL,
    workflow_id TEXT NOT NULL,
    file_path TEXT NOT NULL,
    file_name TEXT NOT NULL DEFAULT '',
    mime_type TEXT NOT NULL DEFAULT 'application/octet-stream',
    status TEXT NOT NULL DEFAULT 'pending_processing' CHECK(status IN ('pending_processing', 'processing', 'processing_complete', 'needs_review', 'processing_failed')),
    match_decision TEXT NOT NULL DEFAULT '' CHECK(match_decision IN ('', 'match', 'no_match', 'needs_review')),
    confidence_score REAL,
    classification TEXT NOT NULL DEFAULT '',
    extracted_content TEXT NOT NULL DEFAULT '',
    analysis_response TEXT NOT NULL DEFAULT '',
    evaluation_reasons TEXT NOT NULL DEFAULT '',
    review_decision TEXT NOT NULL DEFAULT '' CHECK(review_decision IN ('', 'accepted', 'rejected')),
    reviewed_by TEXT NOT NULL DEFAULT '',
    error_message TEXT NOT NULL DEFAULT '',
    submitted_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    processing_started_at DATETIME,
    processed_at DATETIME,
    FOREIGN KEY (workflow_claim_id) REFERENCES audit_workflow_claims(id) ON DELETE CASCADE,
    FOREIGN KEY (workflow_id) REFERENCES audit_workflows(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_submissions_workflow ON evidence_submissions(workflow_id);
CREATE INDEX IF NOT EXISTS idx_submissions_status ON evidence_submissions(status);
CREATE INDEX IF NOT EXISTS idx_submissions_claim ON evidence_submissions(workflow_claim_id);

-- Config table
CREATE TABLE IF NOT EXISTS config (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`
