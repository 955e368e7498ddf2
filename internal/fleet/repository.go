package fleet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
)

// Repository defines the interface for fleet persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// TeamByID retrieves a team by its unique identifier.
	// Returns ErrTeamNotFound if the team does not exist.
	TeamByID(ctx context.Context, id string) (*Team, error)

	// ProjectByID retrieves a project by its unique identifier.
	// Returns ErrProjectNotFound if the project does not exist.
	ProjectByID(ctx context.Context, id string) (*Project, error)

	// DeviceByID retrieves a device by its unique identifier.
	// Returns ErrDeviceNotFound if the device does not exist.
	DeviceByID(ctx context.Context, id string) (*Device, error)

	// SnapshotByID retrieves a snapshot by its unique identifier.
	// Returns ErrSnapshotNotFound if the snapshot does not exist.
	SnapshotByID(ctx context.Context, id string) (*Snapshot, error)

	// SnapshotExists reports whether a snapshot ID exists.
	SnapshotExists(ctx context.Context, id string) (bool, error)

	// DevicesByProject retrieves all devices assigned to a project.
	DevicesByProject(ctx context.Context, projectID string) ([]Device, error)

	// CreateTeam inserts a new team.
	CreateTeam(ctx context.Context, team *Team) error

	// CreateProject inserts a new project.
	CreateProject(ctx context.Context, project *Project) error

	// CreateDevice inserts a new device.
	CreateDevice(ctx context.Context, device *Device) error

	// CreateSnapshot inserts a new snapshot.
	CreateSnapshot(ctx context.Context, snapshot *Snapshot) error

	// UpdateDeviceRuntime applies a partial update to a device's runtime
	// fields. Only fields present in the patch are written.
	UpdateDeviceRuntime(ctx context.Context, id string, patch RuntimePatch) error

	// DeviceAssignedToProject reports whether the device is currently
	// assigned to the given project.
	DeviceAssignedToProject(ctx context.Context, deviceID, projectID string) (bool, error)

	// DeviceSharesTeamWithProject reports whether the device is assigned
	// to the project, or the project belongs to the device's own team.
	DeviceSharesTeamWithProject(ctx context.Context, deviceID, projectID string) (bool, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection with the fleet
// schema applied.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// TeamByID retrieves a team by its unique identifier.
func (r *SQLiteRepository) TeamByID(ctx context.Context, id string) (*Team, error) {
	var t Team
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM teams WHERE id = ?`, id,
	).Scan(&t.ID, &t.Name, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTeamNotFound
		}
		return nil, fmt.Errorf("querying team by id: %w", err)
	}
	return &t, nil
}

// ProjectByID retrieves a project by its unique identifier.
func (r *SQLiteRepository) ProjectByID(ctx context.Context, id string) (*Project, error) {
	var p Project
	err := r.db.QueryRowContext(ctx,
		`SELECT id, team_id, name, target_snapshot_id, settings_hash, created_at
		 FROM projects WHERE id = ?`, id,
	).Scan(&p.ID, &p.TeamID, &p.Name, &p.TargetSnapshotID, &p.SettingsHash, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("querying project by id: %w", err)
	}
	return &p, nil
}

// DeviceByID retrieves a device by its unique identifier.
func (r *SQLiteRepository) DeviceByID(ctx context.Context, id string) (*Device, error) {
	row := r.db.QueryRowContext(ctx, deviceSelect+` WHERE id = ?`, id)
	device, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by id: %w", err)
	}
	return device, nil
}

// SnapshotByID retrieves a snapshot by its unique identifier.
func (r *SQLiteRepository) SnapshotByID(ctx context.Context, id string) (*Snapshot, error) {
	var s Snapshot
	err := r.db.QueryRowContext(ctx,
		`SELECT id, project_id, name, created_at FROM snapshots WHERE id = ?`, id,
	).Scan(&s.ID, &s.ProjectID, &s.Name, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("querying snapshot by id: %w", err)
	}
	return &s, nil
}

// SnapshotExists reports whether a snapshot ID exists.
func (r *SQLiteRepository) SnapshotExists(ctx context.Context, id string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM snapshots WHERE id = ?`, id,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking snapshot existence: %w", err)
	}
	return true, nil
}

// DevicesByProject retrieves all devices assigned to a project.
func (r *SQLiteRepository) DevicesByProject(ctx context.Context, projectID string) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, deviceSelect+` WHERE project_id = ? ORDER BY name`, projectID)
	if err != nil {
		return nil, fmt.Errorf("querying devices by project: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Read-only iteration

	var devices []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device row: %w", err)
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating device rows: %w", err)
	}
	return devices, nil
}

// CreateTeam inserts a new team.
func (r *SQLiteRepository) CreateTeam(ctx context.Context, team *Team) error {
	if team.ID == "" {
		team.ID = GenerateID()
	}
	if team.CreatedAt.IsZero() {
		team.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO teams (id, name, created_at) VALUES (?, ?, ?)`,
		team.ID, team.Name, team.CreatedAt,
	)
	if err != nil {
		return wrapInsertErr("team", err)
	}
	return nil
}

// CreateProject inserts a new project.
func (r *SQLiteRepository) CreateProject(ctx context.Context, project *Project) error {
	if project.ID == "" {
		project.ID = GenerateID()
	}
	if project.CreatedAt.IsZero() {
		project.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO projects (id, team_id, name, target_snapshot_id, settings_hash, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		project.ID, project.TeamID, project.Name,
		project.TargetSnapshotID, project.SettingsHash, project.CreatedAt,
	)
	if err != nil {
		return wrapInsertErr("project", err)
	}
	return nil
}

// CreateDevice inserts a new device.
func (r *SQLiteRepository) CreateDevice(ctx context.Context, device *Device) error {
	if device.ID == "" {
		device.ID = GenerateID()
	}
	if device.Mode == "" {
		device.Mode = ModeAutonomous
	}
	if device.State == "" {
		device.State = StateUnknown
	}
	if device.CreatedAt.IsZero() {
		device.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO devices (id, team_id, name, project_id, target_snapshot_id,
			active_snapshot_id, settings_hash, mode, licensed, state,
			agent_version, last_seen_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		device.ID, device.TeamID, device.Name, device.ProjectID, device.TargetSnapshotID,
		device.ActiveSnapshotID, device.SettingsHash, device.Mode, device.Licensed,
		device.State, device.AgentVersion, device.LastSeenAt, device.CreatedAt,
	)
	if err != nil {
		return wrapInsertErr("device", err)
	}
	return nil
}

// CreateSnapshot inserts a new snapshot.
func (r *SQLiteRepository) CreateSnapshot(ctx context.Context, snapshot *Snapshot) error {
	if snapshot.ID == "" {
		snapshot.ID = GenerateID()
	}
	if snapshot.CreatedAt.IsZero() {
		snapshot.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO snapshots (id, project_id, name, created_at) VALUES (?, ?, ?, ?)`,
		snapshot.ID, snapshot.ProjectID, snapshot.Name, snapshot.CreatedAt,
	)
	if err != nil {
		return wrapInsertErr("snapshot", err)
	}
	return nil
}

// UpdateDeviceRuntime applies a partial update to a device's runtime fields.
//
// Only fields present in the patch produce SET clauses; absent fields are
// left untouched. Returns ErrDeviceNotFound if the device does not exist.
func (r *SQLiteRepository) UpdateDeviceRuntime(ctx context.Context, id string, patch RuntimePatch) error {
	var (
		sets []string
		args []any
	)

	if patch.State != nil {
		sets = append(sets, "state = ?")
		args = append(args, *patch.State)
	}
	if patch.AgentVersion != nil {
		sets = append(sets, "agent_version = ?")
		args = append(args, *patch.AgentVersion)
	}
	if patch.LastSeenAt != nil {
		sets = append(sets, "last_seen_at = ?")
		args = append(args, *patch.LastSeenAt)
	}
	switch {
	case patch.ClearActiveSnapshot:
		sets = append(sets, "active_snapshot_id = NULL")
	case patch.ActiveSnapshotID != nil:
		sets = append(sets, "active_snapshot_id = ?")
		args = append(args, *patch.ActiveSnapshotID)
	}

	if len(sets) == 0 {
		return nil
	}

	args = append(args, id)
	query := "UPDATE devices SET " + strings.Join(sets, ", ") + " WHERE id = ?"

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating device runtime: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if affected == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// DeviceAssignedToProject reports whether the device is currently assigned
// to the given project.
func (r *SQLiteRepository) DeviceAssignedToProject(ctx context.Context, deviceID, projectID string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM devices WHERE id = ? AND project_id = ?`, deviceID, projectID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking device assignment: %w", err)
	}
	return true, nil
}

// DeviceSharesTeamWithProject reports whether the device is assigned to the
// project, or the project belongs to the device's own team.
func (r *SQLiteRepository) DeviceSharesTeamWithProject(ctx context.Context, deviceID, projectID string) (bool, error) {
	assigned, err := r.DeviceAssignedToProject(ctx, deviceID, projectID)
	if err != nil || assigned {
		return assigned, err
	}

	var one int
	err = r.db.QueryRowContext(ctx,
		`SELECT 1 FROM devices d JOIN projects p ON p.team_id = d.team_id
		 WHERE d.id = ? AND p.id = ?`, deviceID, projectID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking team relation: %w", err)
	}
	return true, nil
}

// deviceSelect is the shared SELECT clause for device queries.
const deviceSelect = `
	SELECT id, team_id, name, project_id, target_snapshot_id, active_snapshot_id,
		settings_hash, mode, licensed, state, agent_version, last_seen_at, created_at
	FROM devices`

// rowScanner abstracts sql.Row and sql.Rows for scanDevice.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanDevice reads a device row into a Device struct.
func scanDevice(row rowScanner) (*Device, error) {
	var d Device
	err := row.Scan(
		&d.ID, &d.TeamID, &d.Name, &d.ProjectID, &d.TargetSnapshotID,
		&d.ActiveSnapshotID, &d.SettingsHash, &d.Mode, &d.Licensed,
		&d.State, &d.AgentVersion, &d.LastSeenAt, &d.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// wrapInsertErr maps SQLite constraint violations to domain errors.
func wrapInsertErr(entity string, err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("%w: %s", ErrExists, entity)
	}
	return fmt.Errorf("inserting %s: %w", entity, err)
}
