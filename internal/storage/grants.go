package storage

import (
	"context"
	"fmt"

	"github.com/claude/healthbridge/internal/healthdata"
)

// GrantedPermissions returns the enabled read grants.
func (db *DB) GrantedPermissions(ctx context.Context) ([]healthdata.Permission, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT permission FROM read_grants WHERE granted ORDER BY permission`)
	if err != nil {
		return nil, fmt.Errorf("querying read grants: %w", err)
	}
	defer rows.Close()

	var result []healthdata.Permission
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning read grant: %w", err)
		}
		p, err := healthdata.ParsePermission(name)
		if err != nil {
			continue
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// GrantPermissions enables the given read grants.
func (db *DB) GrantPermissions(ctx context.Context, perms []healthdata.Permission) error {
	for _, p := range perms {
		_, err := db.Pool.Exec(ctx,
			`INSERT INTO read_grants (permission, granted, granted_at)
			 VALUES ($1, TRUE, NOW())
			 ON CONFLICT (permission) DO UPDATE SET granted = TRUE, granted_at = NOW()`,
			string(p))
		if err != nil {
			return fmt.Errorf("granting %s: %w", p, err)
		}
	}
	return nil
}
