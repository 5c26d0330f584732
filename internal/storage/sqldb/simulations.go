package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tjfontaine/promptlink-gateway/internal/core/domain"
	"github.com/tjfontaine/promptlink-gateway/internal/core/ports"
)

const simulationColumns = `id, user_id, mode, personality, strategy, instructions, prompt, rounds, cost, created_at`

// CreateSimulation persists a started human-simulator session.
func (s *Store) CreateSimulation(ctx context.Context, sim *domain.Simulation) error {
	if sim.CreatedAt.IsZero() {
		sim.CreatedAt = time.Now().UTC()
	}

	query := s.dialect.Rebind(`INSERT INTO simulator_sessions (` + simulationColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query,
		sim.ID, sim.UserID, sim.Mode, sim.Personality, string(sim.Strategy),
		sim.Instructions, sim.Prompt, sim.Rounds, sim.Cost, sim.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create simulation: %w", err)
	}
	return nil
}

// GetSimulation loads a simulator session by ID.
func (s *Store) GetSimulation(ctx context.Context, id string) (*domain.Simulation, error) {
	var sim domain.Simulation
	query := s.dialect.Rebind(`SELECT ` + simulationColumns + ` FROM simulator_sessions WHERE id = ?`)
	if err := s.db.GetContext(ctx, &sim, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("simulation %s %w", id, ports.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get simulation: %w", err)
	}
	return &sim, nil
}
