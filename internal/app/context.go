package app

import (
	"database/sql"
	"fmt"

	"planline/internal/config"
	"planline/internal/db"
	"planline/internal/engine"
	"planline/internal/migrate"
)

// OpenWorkspace opens the workspace database, applies pending migrations,
// loads config (falling back to defaults when planline.yml is absent) and
// returns a ready engine. The caller closes the returned DB.
func OpenWorkspace(workspace string) (engine.Engine, *sql.DB, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return engine.Engine{}, nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return engine.Engine{}, nil, fmt.Errorf("open database: %w", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return engine.Engine{}, nil, fmt.Errorf("migrate: %w", err)
	}
	return engine.New(conn, cfg), conn, nil
}
