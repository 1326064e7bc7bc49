package db

import (
	"context"
	"fmt"

	"github.com/Guizzs26/go-user-sync/internal/transform"
)

// ActiveRules returns the enabled transform rules for one field, priority
// ascending, the order in which the engine chains them.
func (s *Store) ActiveRules(ctx context.Context, field string) ([]transform.Rule, error) {
	query := `
		SELECT id, field_name, transform_type, COALESCE(transform_config, '{}'), priority, enabled
		FROM usersync_transform
		WHERE field_name = $1 AND enabled
		ORDER BY priority ASC
	`

	rows, err := s.pool.Query(ctx, query, field)
	if err != nil {
		return nil, fmt.Errorf("loading transform rules for field %q: %w", field, err)
	}
	defer rows.Close()

	var rules []transform.Rule
	for rows.Next() {
		var r transform.Rule
		if err := rows.Scan(&r.ID, &r.Field, &r.Kind, &r.Config, &r.Priority, &r.Enabled); err != nil {
			return nil, fmt.Errorf("scanning transform rule: %w", err)
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}
