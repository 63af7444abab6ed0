package storage

import "context"

type userDirectory struct{ c conn }

// UsersWithRole implements ports.UserDirectory.
func (s userDirectory) UsersWithRole(ctx context.Context, role string) ([]string, error) {
	rows, err := s.c.query(ctx, `SELECT user_id FROM user_roles WHERE role = ? ORDER BY user_id`, role)
	if err != nil {
		return nil, mapError("user_roles", "UsersWithRole", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, mapError("user_roles", "UsersWithRole", err)
		}
		users = append(users, id)
	}
	return users, mapError("user_roles", "UsersWithRole", rows.Err())
}

// GrantRole implements ports.UserDirectory.
func (s userDirectory) GrantRole(ctx context.Context, userID, role string) error {
	_, err := s.c.exec(ctx,
		`INSERT INTO user_roles (user_id, role) VALUES (?, ?) ON CONFLICT (user_id, role) DO NOTHING`,
		userID, role)
	return mapError("user_roles", "GrantRole", err)
}
