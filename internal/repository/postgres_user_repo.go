package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/socialhub/internal/database"
	"github.com/hitoshi/socialhub/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// Create はユーザーを作成し、採番されたIDとcreated_atをuserに設定する。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO users (email, password, active)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		user.Email, user.Password, user.Active,
	).Scan(&user.ID, &user.CreatedAt)
	if database.IsUniqueViolation(err, "users_email_key") {
		return model.ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	user := &model.User{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, password, active, created_at FROM users WHERE id = $1`,
		id,
	).Scan(&user.ID, &user.Email, &user.Password, &user.Active, &user.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}

	return user, nil
}

// FindByEmail はメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	user := &model.User{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, password, active, created_at FROM users WHERE lower(email) = lower($1)`,
		email,
	).Scan(&user.ID, &user.Email, &user.Password, &user.Active, &user.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}

	return user, nil
}

// ListAll は全ユーザーをロール付きでID順に取得する。
// roles_usersとのLEFT JOINで1クエリにまとめ、ユーザー単位に畳み込む。
func (r *PostgresUserRepo) ListAll(ctx context.Context) ([]model.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT u.id, u.email, u.active, u.created_at, ro.id, ro.name, ro.description
		 FROM users u
		 LEFT JOIN roles_users ru ON ru.user_id = u.id
		 LEFT JOIN roles ro ON ro.id = ru.role_id
		 ORDER BY u.id, ro.name`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		var (
			u        model.User
			roleID   sql.NullInt64
			roleName sql.NullString
			roleDesc sql.NullString
		)
		if err := rows.Scan(&u.ID, &u.Email, &u.Active, &u.CreatedAt, &roleID, &roleName, &roleDesc); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}

		if n := len(users); n == 0 || users[n-1].ID != u.ID {
			users = append(users, u)
		}
		if roleID.Valid {
			last := &users[len(users)-1]
			last.Roles = append(last.Roles, model.Role{
				ID:          roleID.Int64,
				Name:        roleName.String,
				Description: roleDesc.String,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}

	return users, nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
