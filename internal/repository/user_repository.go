package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-admission-api/internal/models"
)

// UserRepository provides read access to users.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository constructs a new UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetUserByID retrieves a user by ID or returns sql.ErrNoRows.
func (r *UserRepository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	const query = `SELECT id, full_name, email, role FROM users WHERE id = $1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return &user, nil
}
