package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medev213/darksmart/internal/domain"
)

// Compile-time interface assertions.
var (
	_ UserRepository       = (*PostgresUserRepo)(nil)
	_ DeviceRepository     = (*PostgresDeviceRepo)(nil)
	_ AutomationRepository = (*PostgresAutomationRepo)(nil)
	_ TokenRepository      = (*PostgresTokenRepo)(nil)
	_ CodeRepository       = (*PostgresCodeRepo)(nil)
)

func mapRowErr(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}

// PostgresUserRepo implements UserRepository on a pgx pool.
type PostgresUserRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresUserRepo(pool *pgxpool.Pool) *PostgresUserRepo {
	return &PostgresUserRepo{pool: pool}
}

func (r *PostgresUserRepo) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	var u domain.User
	err := r.pool.QueryRow(ctx,
		`SELECT id, email, password_hash, google_linked, created_at, updated_at
		 FROM users WHERE email = $1`, email).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.GoogleLinked, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return domain.User{}, mapRowErr("get user by email", err)
	}
	return u, nil
}

func (r *PostgresUserRepo) GetByID(ctx context.Context, id string) (domain.User, error) {
	var u domain.User
	err := r.pool.QueryRow(ctx,
		`SELECT id, email, password_hash, google_linked, created_at, updated_at
		 FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.GoogleLinked, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return domain.User{}, mapRowErr("get user by id", err)
	}
	return u, nil
}

func (r *PostgresUserRepo) Create(ctx context.Context, user domain.User) (domain.User, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (email, password_hash, google_linked)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at, updated_at`,
		user.Email, user.PasswordHash, user.GoogleLinked).
		Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// PostgresDeviceRepo implements DeviceRepository on a pgx pool.
type PostgresDeviceRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresDeviceRepo(pool *pgxpool.Pool) *PostgresDeviceRepo {
	return &PostgresDeviceRepo{pool: pool}
}

const deviceColumns = `id, device_id, user_id, name, type, COALESCE(location, ''), status, traits, last_updated, created_at`

func scanDevice(row pgx.Row) (domain.Device, error) {
	var d domain.Device
	var rawStatus []byte
	if err := row.Scan(&d.ID, &d.DeviceID, &d.UserID, &d.Name, &d.Type, &d.Location,
		&rawStatus, &d.Traits, &d.LastUpdated, &d.CreatedAt); err != nil {
		return domain.Device{}, err
	}
	if len(rawStatus) > 0 {
		if err := json.Unmarshal(rawStatus, &d.Status); err != nil {
			return domain.Device{}, fmt.Errorf("decode device status: %w", err)
		}
	}
	if d.Status == nil {
		d.Status = domain.DeviceStatus{}
	}
	return d, nil
}

func (r *PostgresDeviceRepo) ListByUser(ctx context.Context, userID string) ([]domain.Device, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	var devices []domain.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	return devices, nil
}

// GetByIDAndUser resolves the external device id, the one advertised to
// the assistant platform, scoped to its owner.
func (r *PostgresDeviceRepo) GetByIDAndUser(ctx context.Context, id, userID string) (domain.Device, error) {
	d, err := scanDevice(r.pool.QueryRow(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE device_id = $1 AND user_id = $2`, id, userID))
	if err != nil {
		return domain.Device{}, mapRowErr("get device", err)
	}
	return d, nil
}

func (r *PostgresDeviceRepo) UpdateStatus(ctx context.Context, id, userID string, status domain.DeviceStatus) error {
	payload, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("encode device status: %w", err)
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE devices SET status = $1, last_updated = CURRENT_TIMESTAMP
		 WHERE device_id = $2 AND user_id = $3`, payload, id, userID)
	if err != nil {
		return fmt.Errorf("update device status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// PostgresAutomationRepo implements AutomationRepository on a pgx pool.
type PostgresAutomationRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresAutomationRepo(pool *pgxpool.Pool) *PostgresAutomationRepo {
	return &PostgresAutomationRepo{pool: pool}
}

const automationColumns = `id, device_id, user_id, name, to_char(schedule_time, 'HH24:MI'), action, enabled, created_at, updated_at`

func scanAutomation(row pgx.Row) (domain.Automation, error) {
	var a domain.Automation
	err := row.Scan(&a.ID, &a.DeviceID, &a.UserID, &a.Name, &a.ScheduleTime,
		&a.Action, &a.Enabled, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (r *PostgresAutomationRepo) ListEnabled(ctx context.Context) ([]domain.Automation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+automationColumns+` FROM automations WHERE enabled = true`)
	if err != nil {
		return nil, fmt.Errorf("list enabled automations: %w", err)
	}
	defer rows.Close()

	var automations []domain.Automation
	for rows.Next() {
		a, err := scanAutomation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan automation: %w", err)
		}
		automations = append(automations, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list enabled automations: %w", err)
	}
	return automations, nil
}

func (r *PostgresAutomationRepo) GetByID(ctx context.Context, id string) (domain.Automation, error) {
	a, err := scanAutomation(r.pool.QueryRow(ctx,
		`SELECT `+automationColumns+` FROM automations WHERE id = $1`, id))
	if err != nil {
		return domain.Automation{}, mapRowErr("get automation", err)
	}
	return a, nil
}

// PostgresTokenRepo implements TokenRepository on a pgx pool.
type PostgresTokenRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresTokenRepo(pool *pgxpool.Pool) *PostgresTokenRepo {
	return &PostgresTokenRepo{pool: pool}
}

func (r *PostgresTokenRepo) Upsert(ctx context.Context, token domain.OAuthToken) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO oauth_tokens (id, user_id, access_token, refresh_token, expires_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id) DO UPDATE
		 SET access_token = EXCLUDED.access_token,
		     refresh_token = EXCLUDED.refresh_token,
		     expires_at = EXCLUDED.expires_at,
		     updated_at = CURRENT_TIMESTAMP`,
		token.ID, token.UserID, token.AccessToken, token.RefreshToken, token.ExpiresAt)
	if err != nil {
		return fmt.Errorf("upsert token pair: %w", err)
	}
	return nil
}

func (r *PostgresTokenRepo) GetByRefreshToken(ctx context.Context, refreshToken string) (domain.OAuthToken, error) {
	var t domain.OAuthToken
	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, access_token, refresh_token, expires_at, created_at, updated_at
		 FROM oauth_tokens
		 WHERE refresh_token = $1 AND refresh_token <> '' AND expires_at > CURRENT_TIMESTAMP`,
		refreshToken).
		Scan(&t.ID, &t.UserID, &t.AccessToken, &t.RefreshToken, &t.ExpiresAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return domain.OAuthToken{}, mapRowErr("get token by refresh", err)
	}
	return t, nil
}

func (r *PostgresTokenRepo) SetAccessToken(ctx context.Context, id int64, accessToken string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE oauth_tokens SET access_token = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2`,
		accessToken, id)
	if err != nil {
		return fmt.Errorf("set access token: %w", err)
	}
	return nil
}

func (r *PostgresTokenRepo) ClearByValue(ctx context.Context, value string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE oauth_tokens
		 SET access_token = '', refresh_token = '', updated_at = CURRENT_TIMESTAMP
		 WHERE (access_token = $1 OR refresh_token = $1) AND $1 <> ''`, value)
	if err != nil {
		return fmt.Errorf("clear token by value: %w", err)
	}
	return nil
}

func (r *PostgresTokenRepo) ClearByUser(ctx context.Context, userID string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE oauth_tokens
		 SET access_token = '', refresh_token = '', updated_at = CURRENT_TIMESTAMP
		 WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("clear tokens for user: %w", err)
	}
	return nil
}

// PostgresCodeRepo implements CodeRepository on a pgx pool.
type PostgresCodeRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresCodeRepo(pool *pgxpool.Pool) *PostgresCodeRepo {
	return &PostgresCodeRepo{pool: pool}
}

func (r *PostgresCodeRepo) Create(ctx context.Context, code domain.AuthCode) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO auth_codes (id, user_id, client_id, code, redirect_uri, scope, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		code.ID, code.UserID, code.ClientID, code.Code, code.RedirectURI, code.Scope, code.ExpiresAt)
	if err != nil {
		return fmt.Errorf("create authorization code: %w", err)
	}
	return nil
}

// Consume is the single-winner gate of the code exchange: the UPDATE is
// guarded by "not yet consumed, not expired", so concurrent redemptions
// of the same code settle exactly one row.
func (r *PostgresCodeRepo) Consume(ctx context.Context, code string, now time.Time) (domain.AuthCode, error) {
	var c domain.AuthCode
	err := r.pool.QueryRow(ctx,
		`UPDATE auth_codes
		 SET consumed_at = $2
		 WHERE code = $1 AND consumed_at IS NULL AND expires_at > $2
		 RETURNING id, user_id, client_id, code, redirect_uri, scope, expires_at, consumed_at, created_at`,
		code, now).
		Scan(&c.ID, &c.UserID, &c.ClientID, &c.Code, &c.RedirectURI, &c.Scope,
			&c.ExpiresAt, &c.ConsumedAt, &c.CreatedAt)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.AuthCode{}, fmt.Errorf("consume authorization code: %w", err)
	}

	// Distinguish a never-issued code from one already burned so the
	// caller can log reuse attempts.
	var exists bool
	if probeErr := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM auth_codes WHERE code = $1)`, code).Scan(&exists); probeErr != nil {
		return domain.AuthCode{}, fmt.Errorf("probe authorization code: %w", probeErr)
	}
	if exists {
		return domain.AuthCode{}, ErrCodeConsumed
	}
	return domain.AuthCode{}, ErrNotFound
}
