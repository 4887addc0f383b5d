package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/eleven-am/warden/internal/domain"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteStore keeps each record as a JSON document next to the columns
// needed for lookups and the version check.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite creates or opens the database at path and applies the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) GetRule(ctx context.Context, id string) (*domain.FlowRule, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM flow_rules WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Kind: "rule", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get rule %s: %w", id, err)
	}
	var rule domain.FlowRule
	if err := json.Unmarshal([]byte(data), &rule); err != nil {
		return nil, fmt.Errorf("decode rule %s: %w", id, err)
	}
	return &rule, nil
}

// GetRuleBundles returns the bundles that exist among ids. Missing ids are
// simply absent from the result.
func (s *SQLiteStore) GetRuleBundles(ctx context.Context, ids []string) ([]domain.FlowRuleBundle, error) {
	var bundles []domain.FlowRuleBundle
	err := s.selectByIDs(ctx, "flow_rule_bundles", ids, func(data []byte) error {
		var bundle domain.FlowRuleBundle
		if err := json.Unmarshal(data, &bundle); err != nil {
			return err
		}
		bundles = append(bundles, bundle)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get rule bundles: %w", err)
	}
	return bundles, nil
}

func (s *SQLiteStore) GetObjects(ctx context.Context, ids []string) ([]domain.FlowObject, error) {
	var objects []domain.FlowObject
	err := s.selectByIDs(ctx, "flow_objects", ids, func(data []byte) error {
		var obj domain.FlowObject
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		objects = append(objects, obj)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get objects: %w", err)
	}
	return objects, nil
}

func (s *SQLiteStore) ListActiveRules(ctx context.Context, bundleID string) ([]domain.FlowRule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM flow_rules WHERE rule_bundle_id = ? AND status != ? ORDER BY id`,
		bundleID, string(domain.RuleStatusFailed))
	if err != nil {
		return nil, fmt.Errorf("list rules of bundle %s: %w", bundleID, err)
	}
	defer rows.Close()

	var rules []domain.FlowRule
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		var rule domain.FlowRule
		if err := json.Unmarshal([]byte(data), &rule); err != nil {
			return nil, fmt.Errorf("decode rule: %w", err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

func (s *SQLiteStore) UpdateRule(ctx context.Context, rule domain.FlowRule) (domain.FlowRule, error) {
	expected := rule.Version
	rule.Version++
	rule.LastUpdated = now()
	data, err := json.Marshal(rule)
	if err != nil {
		return domain.FlowRule{}, fmt.Errorf("encode rule %s: %w", rule.ID, err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE flow_rules SET version = ?, status = ?, rule_bundle_id = ?, data = ? WHERE id = ? AND version = ?`,
		rule.Version, string(rule.Status), rule.RuleBundleID, string(data), rule.ID, expected)
	if err != nil {
		return domain.FlowRule{}, fmt.Errorf("update rule %s: %w", rule.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.FlowRule{}, fmt.Errorf("update rule %s: %w", rule.ID, err)
	}
	if n == 0 {
		if _, err := s.GetRule(ctx, rule.ID); err != nil {
			return domain.FlowRule{}, err
		}
		return domain.FlowRule{}, &domain.ConflictError{RuleID: rule.ID, Version: expected}
	}
	return rule, nil
}

func (s *SQLiteStore) PutObject(ctx context.Context, obj domain.FlowObject) error {
	data, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("encode object %s: %w", obj.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO flow_objects (id, type, data) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET type = excluded.type, data = excluded.data`,
		obj.ID, string(obj.Type), string(data))
	if err != nil {
		return fmt.Errorf("put object %s: %w", obj.ID, err)
	}
	return nil
}

func (s *SQLiteStore) PutBundle(ctx context.Context, bundle domain.FlowRuleBundle) error {
	data, err := json.Marshal(bundle)
	if err != nil {
		return fmt.Errorf("encode bundle %s: %w", bundle.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO flow_rule_bundles (id, rule_group_arn, data) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET rule_group_arn = excluded.rule_group_arn, data = excluded.data`,
		bundle.ID, bundle.RuleGroupArn, string(data))
	if err != nil {
		return fmt.Errorf("put bundle %s: %w", bundle.ID, err)
	}
	return nil
}

// PutRule writes rule as is, without the version check.
func (s *SQLiteStore) PutRule(ctx context.Context, rule domain.FlowRule) error {
	data, err := json.Marshal(rule)
	if err != nil {
		return fmt.Errorf("encode rule %s: %w", rule.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO flow_rules (id, rule_bundle_id, version, status, data) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			rule_bundle_id = excluded.rule_bundle_id,
			version = excluded.version,
			status = excluded.status,
			data = excluded.data`,
		rule.ID, rule.RuleBundleID, rule.Version, string(rule.Status), string(data))
	if err != nil {
		return fmt.Errorf("put rule %s: %w", rule.ID, err)
	}
	return nil
}

func (s *SQLiteStore) selectByIDs(ctx context.Context, table string, ids []string, decode func([]byte) error) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT data FROM %s WHERE id IN (%s) ORDER BY id`, table, placeholders), args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return err
		}
		if err := decode([]byte(data)); err != nil {
			return err
		}
	}
	return rows.Err()
}
