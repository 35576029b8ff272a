// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/danielhkuo/consensus-engine/db"
	"github.com/danielhkuo/consensus-engine/models"
)

// CreateUser registers a user. Usernames are unique.
func (e *Engine) CreateUser(ctx context.Context, username string) (models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return models.User{}, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}

	u := models.User{Username: username, CreatedAt: e.clock()}
	err := e.conn.QueryRowContext(ctx,
		`INSERT INTO app_user (username, created_at) VALUES ($1, $2) RETURNING id`,
		u.Username, u.CreatedAt).Scan(&u.ID)
	if db.IsUniqueViolation(err) {
		return models.User{}, ErrUsernameTaken
	}
	if err != nil {
		return models.User{}, fmt.Errorf("failed to create user: %w", err)
	}
	return u, nil
}

func (e *Engine) GetUser(ctx context.Context, id int64) (models.User, error) {
	u, err := scanUser(e.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM app_user WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return u, notFound("user", id)
	}
	if err != nil {
		return u, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}
