package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mameikagou/compoder/internal/models"
)

// LookupRuleSet resolves the generation rules attached to a codegen. A
// missing codegen or NULL rules column yields a zero RuleSet — absence of
// rules never aborts a generation. Only a store-level failure returns an
// error.
func (s *ComponentStore) LookupRuleSet(ctx context.Context, codegenID uuid.UUID) (models.RuleSet, error) {
	ctx, span := s.tracer.Start(ctx, "component_store.lookup_rules")
	defer span.End()

	var rulesJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT rules FROM codegens WHERE id = $1`,
		codegenID,
	).Scan(&rulesJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.RuleSet{}, nil
		}
		return models.RuleSet{}, fmt.Errorf("failed to look up rules: %w", err)
	}

	if len(rulesJSON) == 0 {
		return models.RuleSet{}, nil
	}

	var rules models.RuleSet
	if err := json.Unmarshal(rulesJSON, &rules); err != nil {
		return models.RuleSet{}, fmt.Errorf("failed to decode rules: %w", err)
	}

	return rules, nil
}
