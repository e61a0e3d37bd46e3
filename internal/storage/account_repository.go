package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/uptime-rewards/internal/duration"
	apperrors "github.com/uptime-rewards/internal/errors"
	"github.com/uptime-rewards/internal/models"
	"github.com/uptime-rewards/internal/types"
)

const accountColumns = `
	wallet, role, total_points, daily_points, last_reset_at,
	session_is_running, session_started_at, session_elapsed_ms, session_elapsed_human, last_seen_at,
	referral_code, referred_by, referral_bonus_level, tier_level_claimed,
	referral_points, tier_points, task_points, completed_tasks,
	username, email, username_changed_at, email_changed_at,
	is_banned, country_code, points_revision, created_at, updated_at`

const uniqueViolation = "23505"

// AccountRepository is the Postgres-backed AccountStore.
type AccountRepository struct {
	db *PostgresDB
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *PostgresDB) *AccountRepository {
	return &AccountRepository{db: db}
}

var _ AccountStore = (*AccountRepository)(nil)

func scanAccount(row pgx.Row) (*models.Account, error) {
	var (
		acct      models.Account
		role      string
		tasksJSON []byte
	)
	err := row.Scan(
		&acct.Wallet,
		&role,
		&acct.TotalPoints,
		&acct.DailyPoints,
		&acct.LastResetAt,
		&acct.SessionIsRunning,
		&acct.SessionStartedAt,
		&acct.SessionElapsedMs,
		&acct.SessionElapsedHuman,
		&acct.LastSeenAt,
		&acct.ReferralCode,
		&acct.ReferredBy,
		&acct.ReferralBonusLevel,
		&acct.TierLevelClaimed,
		&acct.ReferralPoints,
		&acct.TierPoints,
		&acct.TaskPoints,
		&tasksJSON,
		&acct.Username,
		&acct.Email,
		&acct.UsernameChangedAt,
		&acct.EmailChangedAt,
		&acct.IsBanned,
		&acct.CountryCode,
		&acct.PointsRevision,
		&acct.CreatedAt,
		&acct.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	acct.Role = types.Role(role)
	acct.CompletedTasks = models.ParseCompletedTasks(tasksJSON)
	return &acct, nil
}

// Get retrieves an account by wallet
func (r *AccountRepository) Get(ctx context.Context, wallet string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE wallet = $1`

	acct, err := scanAccount(r.db.Pool().QueryRow(ctx, query, wallet))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("account", wallet)
		}
		return nil, apperrors.NewDatabaseError("get account", err)
	}
	return acct, nil
}

// Upsert creates the account with defaults on first contact.
func (r *AccountRepository) Upsert(ctx context.Context, wallet string, referredBy string) (*models.Account, bool, error) {
	query := `
		INSERT INTO accounts (wallet, referred_by)
		VALUES ($1, (SELECT referral_code FROM accounts WHERE referral_code = NULLIF($2, '') AND wallet <> $1))
		ON CONFLICT (wallet) DO NOTHING
	`

	tag, err := r.db.Pool().Exec(ctx, query, wallet, strings.ToUpper(strings.TrimSpace(referredBy)))
	if err != nil {
		return nil, false, apperrors.NewDatabaseError("upsert account", err)
	}

	acct, err := r.Get(ctx, wallet)
	if err != nil {
		return nil, false, err
	}
	return acct, tag.RowsAffected() == 1, nil
}

// SetCountry records the account's country code.
func (r *AccountRepository) SetCountry(ctx context.Context, wallet, countryCode string) error {
	return r.execOne(ctx, "set country",
		`UPDATE accounts SET country_code = $2, updated_at = NOW() WHERE wallet = $1`,
		wallet, countryCode)
}

// SetRole sets the role, creating the account if needed.
func (r *AccountRepository) SetRole(ctx context.Context, wallet string, role types.Role) error {
	query := `
		INSERT INTO accounts (wallet, role) VALUES ($1, $2)
		ON CONFLICT (wallet) DO UPDATE SET role = EXCLUDED.role, updated_at = NOW()
	`
	if _, err := r.db.Pool().Exec(ctx, query, wallet, string(role)); err != nil {
		return apperrors.NewDatabaseError("set role", err)
	}
	return nil
}

// ReadCounters returns the accrual counters of the account.
func (r *AccountRepository) ReadCounters(ctx context.Context, wallet string) (models.Counters, error) {
	query := `
		SELECT total_points, daily_points, last_reset_at, session_elapsed_ms, points_revision
		FROM accounts
		WHERE wallet = $1
	`

	var (
		c         models.Counters
		lastReset *time.Time
	)
	err := r.db.Pool().QueryRow(ctx, query, wallet).Scan(&c.Total, &c.Daily, &lastReset, &c.ElapsedMs, &c.Revision)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Counters{}, apperrors.NewNotFoundError("account", wallet)
		}
		return models.Counters{}, apperrors.NewDatabaseError("read counters", err)
	}
	if lastReset != nil {
		c.LastResetAt = *lastReset
	}
	return c, nil
}

// WriteCounters max-merges the counters in a single statement so a
// concurrent writer can push the row forward but never back.
func (r *AccountRepository) WriteCounters(ctx context.Context, wallet string, c models.Counters, seenAt time.Time) (models.Counters, bool, error) {
	query := `
		UPDATE accounts SET
			total_points = GREATEST(total_points, $2::bigint),
			daily_points = CASE
				WHEN $4::timestamptz IS NOT NULL AND (last_reset_at IS NULL OR last_reset_at < $4::timestamptz) THEN $3::bigint
				WHEN last_reset_at IS NOT NULL AND ($4::timestamptz IS NULL OR last_reset_at > $4::timestamptz) THEN daily_points
				ELSE GREATEST(daily_points, $3::bigint)
			END,
			last_reset_at = GREATEST(last_reset_at, $4::timestamptz),
			session_elapsed_human = CASE WHEN $5::bigint > session_elapsed_ms THEN $6 ELSE session_elapsed_human END,
			session_elapsed_ms = GREATEST(session_elapsed_ms, $5::bigint),
			last_seen_at = $7,
			updated_at = NOW()
		WHERE wallet = $1 AND points_revision = $8
		RETURNING total_points, daily_points, last_reset_at, session_elapsed_ms, points_revision
	`

	var (
		out       models.Counters
		lastReset *time.Time
	)
	err := r.db.Pool().QueryRow(ctx, query,
		wallet,
		c.Total,
		c.Daily,
		nullableTime(c.LastResetAt),
		c.ElapsedMs,
		duration.Format(c.ElapsedMs),
		seenAt,
		c.Revision,
	).Scan(&out.Total, &out.Daily, &lastReset, &out.ElapsedMs, &out.Revision)

	if errors.Is(err, pgx.ErrNoRows) {
		// revision moved on, or the account is gone
		current, readErr := r.ReadCounters(ctx, wallet)
		if readErr != nil {
			return models.Counters{}, false, readErr
		}
		return current, false, nil
	}
	if err != nil {
		return models.Counters{}, false, apperrors.NewDatabaseError("write counters", err)
	}
	if lastReset != nil {
		out.LastResetAt = *lastReset
	}
	return out, true, nil
}

// SetSession records the running flag and session start.
func (r *AccountRepository) SetSession(ctx context.Context, wallet string, running bool, startedAt *time.Time, seenAt time.Time) error {
	return r.execOne(ctx, "set session",
		`UPDATE accounts
		 SET session_is_running = $2, session_started_at = $3, last_seen_at = $4, updated_at = NOW()
		 WHERE wallet = $1`,
		wallet, running, startedAt, seenAt)
}

// ClaimTier grants reward and moves the claimed tier from expectedLevel to
// level. It reports false when the stored claimed tier is no longer expectedLevel.
func (r *AccountRepository) ClaimTier(ctx context.Context, wallet string, expectedLevel, level int, reward int64) (bool, error) {
	query := `
		UPDATE accounts SET
			total_points = total_points + $4,
			tier_points = tier_points + $4,
			tier_level_claimed = $3,
			updated_at = NOW()
		WHERE wallet = $1 AND tier_level_claimed = $2 AND $3 > tier_level_claimed
	`
	tag, err := r.db.Pool().Exec(ctx, query, wallet, expectedLevel, level, reward)
	if err != nil {
		return false, apperrors.NewDatabaseError("claim tier", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ClaimReferralBonus is ClaimTier for the referral bonus ladder.
func (r *AccountRepository) ClaimReferralBonus(ctx context.Context, wallet string, expectedLevel, level int, reward int64) (bool, error) {
	query := `
		UPDATE accounts SET
			total_points = total_points + $4,
			referral_points = referral_points + $4,
			referral_bonus_level = $3,
			updated_at = NOW()
		WHERE wallet = $1 AND referral_bonus_level = $2 AND $3 > referral_bonus_level
	`
	tag, err := r.db.Pool().Exec(ctx, query, wallet, expectedLevel, level, reward)
	if err != nil {
		return false, apperrors.NewDatabaseError("claim referral bonus", err)
	}
	return tag.RowsAffected() == 1, nil
}

// CompleteTask appends taskID to the completed list and grants points, once.
func (r *AccountRepository) CompleteTask(ctx context.Context, wallet, taskID string, points int64) (bool, error) {
	query := `
		UPDATE accounts SET
			completed_tasks = (CASE WHEN jsonb_typeof(completed_tasks) = 'array'
				THEN completed_tasks ELSE '[]'::jsonb END) || to_jsonb($2::text),
			total_points = total_points + $3,
			task_points = task_points + $3,
			updated_at = NOW()
		WHERE wallet = $1 AND NOT (jsonb_typeof(completed_tasks) = 'array' AND completed_tasks ? $2)
	`
	tag, err := r.db.Pool().Exec(ctx, query, wallet, taskID, points)
	if err != nil {
		return false, apperrors.NewDatabaseError("complete task", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	if err := r.exists(ctx, wallet); err != nil {
		return false, err
	}
	return false, nil
}

// EnsureReferralCode assigns a code once and returns the stored one afterwards.
func (r *AccountRepository) EnsureReferralCode(ctx context.Context, wallet string) (string, error) {
	const attempts = 5
	for i := 0; i < attempts; i++ {
		var code string
		err := r.db.Pool().QueryRow(ctx,
			`UPDATE accounts SET referral_code = $2, updated_at = NOW()
			 WHERE wallet = $1 AND referral_code IS NULL
			 RETURNING referral_code`,
			wallet, newReferralCode()).Scan(&code)
		if err == nil {
			return code, nil
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			continue
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return "", apperrors.NewDatabaseError("assign referral code", err)
		}

		var existing *string
		err = r.db.Pool().QueryRow(ctx, `SELECT referral_code FROM accounts WHERE wallet = $1`, wallet).Scan(&existing)
		if errors.Is(err, pgx.ErrNoRows) {
			return "", apperrors.NewNotFoundError("account", wallet)
		}
		if err != nil {
			return "", apperrors.NewDatabaseError("read referral code", err)
		}
		if existing != nil {
			return *existing, nil
		}
	}
	return "", apperrors.NewConflictError("could not allocate a unique referral code")
}

// SetUsername records the username once.
func (r *AccountRepository) SetUsername(ctx context.Context, wallet, username string, at time.Time) error {
	return r.setOnce(ctx, "username", wallet, username, at)
}

// SetEmail records the email once.
func (r *AccountRepository) SetEmail(ctx context.Context, wallet, email string, at time.Time) error {
	return r.setOnce(ctx, "email", wallet, email, at)
}

// setOnce writes a unique profile column guarded by its *_changed_at marker.
// field is one of the fixed column names above, never user input.
func (r *AccountRepository) setOnce(ctx context.Context, field, wallet, value string, at time.Time) error {
	query := fmt.Sprintf(`
		UPDATE accounts SET %[1]s = $2, %[1]s_changed_at = $3, updated_at = NOW()
		WHERE wallet = $1 AND %[1]s_changed_at IS NULL
	`, field)

	tag, err := r.db.Pool().Exec(ctx, query, wallet, value, at)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return apperrors.NewTakenError(field)
		}
		return apperrors.NewDatabaseError("set "+field, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if err := r.exists(ctx, wallet); err != nil {
		return err
	}
	return apperrors.NewAlreadySetError(field)
}

// ReferredAccounts lists the accounts referred by code.
func (r *AccountRepository) ReferredAccounts(ctx context.Context, code string) ([]models.ReferredAccount, error) {
	byCode, err := r.ReferredAccountsFor(ctx, []string{code})
	if err != nil {
		return nil, err
	}
	if rows := byCode[code]; rows != nil {
		return rows, nil
	}
	return []models.ReferredAccount{}, nil
}

// ReferredAccountsFor lists referred accounts for several codes in one query.
func (r *AccountRepository) ReferredAccountsFor(ctx context.Context, codes []string) (map[string][]models.ReferredAccount, error) {
	out := make(map[string][]models.ReferredAccount, len(codes))
	if len(codes) == 0 {
		return out, nil
	}

	query := `
		SELECT referred_by, wallet, session_elapsed_human, last_seen_at, total_points
		FROM accounts
		WHERE referred_by = ANY($1)
		ORDER BY last_seen_at DESC NULLS LAST, wallet
	`
	rows, err := r.db.Pool().Query(ctx, query, codes)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list referred accounts", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			code string
			ref  models.ReferredAccount
		)
		if err := rows.Scan(&code, &ref.Wallet, &ref.ElapsedHuman, &ref.LastSeenAt, &ref.TotalPoints); err != nil {
			return nil, apperrors.NewDatabaseError("scan referred account", err)
		}
		out[code] = append(out[code], ref)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError("list referred accounts", err)
	}
	return out, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// buildUserFilter renders the WHERE clause of the admin listing.
func buildUserFilter(f models.UserFilter) (string, []interface{}) {
	var (
		clauses []string
		args    []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Role == string(types.RoleUser) || f.Role == string(types.RoleAdmin) {
		clauses = append(clauses, "role = "+arg(f.Role))
	}
	switch f.Banned {
	case "only":
		clauses = append(clauses, "is_banned = TRUE")
	case "none":
		clauses = append(clauses, "is_banned = FALSE")
	}
	if f.Country != "" {
		clauses = append(clauses, "country_code = "+arg(f.Country))
	}
	if f.Query != "" {
		or := []string{"wallet ILIKE " + arg("%"+likeEscaper.Replace(f.Query)+"%")}
		if n, ok := pointsQuery(f.Query); ok {
			p := arg(n)
			or = append(or, "total_points = "+p, "daily_points = "+p)
		}
		clauses = append(clauses, "("+strings.Join(or, " OR ")+")")
	}

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// ListUsers returns one page of the admin listing. The filter is expected to
// be normalized by the caller.
func (r *AccountRepository) ListUsers(ctx context.Context, f models.UserFilter) (*models.UserPage, error) {
	where, args := buildUserFilter(f)

	var total int64
	if err := r.db.Pool().QueryRow(ctx, `SELECT COUNT(*) FROM accounts`+where, args...).Scan(&total); err != nil {
		return nil, apperrors.NewDatabaseError("count users", err)
	}

	column, ok := SortColumns[f.Sort]
	if !ok {
		column = SortColumns[DefaultSort]
	}
	dir := "ASC"
	if f.Desc {
		dir = "DESC"
	}

	args = append(args, f.Limit, (f.Page-1)*f.Limit)
	query := fmt.Sprintf(`
		SELECT wallet, role, is_banned, country_code, total_points, daily_points,
			session_elapsed_human, last_seen_at, referral_code
		FROM accounts%s
		ORDER BY %s %s NULLS LAST, wallet ASC
		LIMIT $%d OFFSET $%d
	`, where, column, dir, len(args)-1, len(args))

	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list users", err)
	}
	defer rows.Close()

	page := &models.UserPage{Users: []models.AccountSummary{}, Total: total, Page: f.Page, Limit: f.Limit}
	for rows.Next() {
		var (
			s    models.AccountSummary
			role string
		)
		if err := rows.Scan(&s.Wallet, &role, &s.IsBanned, &s.CountryCode, &s.TotalPoints, &s.DailyPoints,
			&s.SessionElapsedHuman, &s.LastSeenAt, &s.ReferralCode); err != nil {
			return nil, apperrors.NewDatabaseError("scan user", err)
		}
		s.Role = types.Role(role)
		page.Users = append(page.Users, s)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError("list users", err)
	}
	return page, nil
}

// SetBanned sets or clears the ban flag.
func (r *AccountRepository) SetBanned(ctx context.Context, wallet string, banned bool) error {
	return r.execOne(ctx, "set banned",
		`UPDATE accounts SET is_banned = $2, updated_at = NOW() WHERE wallet = $1`,
		wallet, banned)
}

// ResetDaily zeroes the daily counter and bumps the points revision.
func (r *AccountRepository) ResetDaily(ctx context.Context, wallet string, at time.Time) error {
	return r.execOne(ctx, "reset daily",
		`UPDATE accounts
		 SET daily_points = 0, last_reset_at = $2, points_revision = points_revision + 1, updated_at = NOW()
		 WHERE wallet = $1`,
		wallet, at)
}

// SetTotalPoints overwrites the total and bumps the points revision.
func (r *AccountRepository) SetTotalPoints(ctx context.Context, wallet string, points int64) error {
	return r.execOne(ctx, "set points",
		`UPDATE accounts
		 SET total_points = $2, points_revision = points_revision + 1, updated_at = NOW()
		 WHERE wallet = $1`,
		wallet, points)
}

func (r *AccountRepository) execOne(ctx context.Context, op, query string, args ...interface{}) error {
	tag, err := r.db.Pool().Exec(ctx, query, args...)
	if err != nil {
		return apperrors.NewDatabaseError(op, err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewNotFoundError("account", fmt.Sprint(args[0]))
	}
	return nil
}

func (r *AccountRepository) exists(ctx context.Context, wallet string) error {
	var one int
	err := r.db.Pool().QueryRow(ctx, `SELECT 1 FROM accounts WHERE wallet = $1`, wallet).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NewNotFoundError("account", wallet)
	}
	if err != nil {
		return apperrors.NewDatabaseError("check account", err)
	}
	return nil
}
