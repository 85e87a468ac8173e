package storage

import (
	"context"
	"fmt"

	"ledger/internal/core"
)

const userColumns = `id, login, email, name, password_hash, active`

func (t *Tx) InsertUser(ctx context.Context, u core.User) error {
	_, err := t.exec(ctx, "insert user",
		`INSERT INTO users (id, login, email, name, password_hash, active) VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.Login, u.Email, u.Name, u.PasswordHash, u.Active)
	return err
}

func (t *Tx) GetUser(ctx context.Context, id string) (core.User, error) {
	return t.scanUser(ctx, fmt.Sprintf("get user %s", id),
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

// GetUserByLogin matches either the login or the email address.
func (t *Tx) GetUserByLogin(ctx context.Context, login string) (core.User, error) {
	return t.scanUser(ctx, "get user by login",
		`SELECT `+userColumns+` FROM users WHERE login = ? OR email = ?`, login, login)
}

func (t *Tx) scanUser(ctx context.Context, op, query string, args ...any) (core.User, error) {
	var u core.User
	err := t.queryRow(ctx, query, args...).
		Scan(&u.ID, &u.Login, &u.Email, &u.Name, &u.PasswordHash, &u.Active)
	if err != nil {
		return core.User{}, translateError(op, err)
	}
	return u, nil
}
