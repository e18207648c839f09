package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/socialhub/internal/database"
	"github.com/hitoshi/socialhub/internal/model"
)

const connectionColumns = `id, user_id, provider_id, provider_user_id, access_token, secret, token_expiry,
	display_name, profile_url, image_url, rank`

// PostgresConnectionRepo はPostgreSQLを使用したソーシャル紐付けリポジトリ。
type PostgresConnectionRepo struct {
	db *sql.DB
}

// NewPostgresConnectionRepo はPostgresConnectionRepoを生成する。
func NewPostgresConnectionRepo(db *sql.DB) *PostgresConnectionRepo {
	return &PostgresConnectionRepo{db: db}
}

// Create は紐付けを作成し、採番されたIDをconnに設定する。
func (r *PostgresConnectionRepo) Create(ctx context.Context, conn *model.Connection) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO connections (user_id, provider_id, provider_user_id, access_token, secret, token_expiry,
		                          display_name, profile_url, image_url, rank)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id`,
		conn.UserID, conn.ProviderID, conn.ProviderUserID, conn.AccessToken, conn.Secret, nullTime(conn.TokenExpiry),
		conn.DisplayName, conn.ProfileURL, conn.ImageURL, conn.Rank,
	).Scan(&conn.ID)
	if database.IsUniqueViolation(err, "connections_provider_user_key") {
		return model.ErrConnectionExists
	}
	if err != nil {
		return fmt.Errorf("failed to insert connection: %w", err)
	}
	return nil
}

// FindByProviderUserID はprovider_idとprovider_user_idで紐付けを検索する。
// 見つからない場合はnilを返す。
func (r *PostgresConnectionRepo) FindByProviderUserID(ctx context.Context, providerID, providerUserID string) (*model.Connection, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+connectionColumns+`
		 FROM connections
		 WHERE provider_id = $1 AND provider_user_id = $2`,
		providerID, providerUserID,
	)
	conn, err := scanConnection(row)
	if err != nil {
		return nil, fmt.Errorf("failed to find connection: %w", err)
	}
	return conn, nil
}

// FindPrimary はユーザーの指定プロバイダーに対する紐付けのうちrankが最小のものを返す。
func (r *PostgresConnectionRepo) FindPrimary(ctx context.Context, userID int64, providerID string) (*model.Connection, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+connectionColumns+`
		 FROM connections
		 WHERE user_id = $1 AND provider_id = $2
		 ORDER BY rank, id
		 LIMIT 1`,
		userID, providerID,
	)
	conn, err := scanConnection(row)
	if err != nil {
		return nil, fmt.Errorf("failed to find primary connection: %w", err)
	}
	return conn, nil
}

// CountByUserAndProvider はユーザーの指定プロバイダーに対する紐付け数を返す。
func (r *PostgresConnectionRepo) CountByUserAndProvider(ctx context.Context, userID int64, providerID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM connections WHERE user_id = $1 AND provider_id = $2`,
		userID, providerID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count connections: %w", err)
	}
	return count, nil
}

// UpdateToken は紐付けのアクセストークン、リフレッシュトークン、有効期限を更新する。
func (r *PostgresConnectionRepo) UpdateToken(ctx context.Context, id int64, token model.OAuthResponse) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE connections SET access_token = $1, secret = $2, token_expiry = $3 WHERE id = $4`,
		token.AccessToken, token.RefreshToken, nullTime(token.Expiry), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update connection token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update connection token: %w", err)
	}
	if n == 0 {
		return model.ErrConnectionNotFound
	}
	return nil
}

// nullTime はゼロ値の時刻をNULLとして扱う。
func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

// scanConnection は1行をConnectionに読み込む。行がない場合はnilを返す。
func scanConnection(row *sql.Row) (*model.Connection, error) {
	conn := &model.Connection{}
	var expiry sql.NullTime
	err := row.Scan(
		&conn.ID, &conn.UserID, &conn.ProviderID, &conn.ProviderUserID, &conn.AccessToken, &conn.Secret, &expiry,
		&conn.DisplayName, &conn.ProfileURL, &conn.ImageURL, &conn.Rank,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if expiry.Valid {
		conn.TokenExpiry = expiry.Time
	}
	return conn, nil
}

// compile-time interface check
var _ ConnectionRepository = (*PostgresConnectionRepo)(nil)
