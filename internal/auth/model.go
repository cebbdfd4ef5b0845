package auth

import "time"

type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PublicUser is the user shape handed to clients. The password hash never
// leaves the server.
type PublicUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (u User) Public() PublicUser {
	return PublicUser{ID: u.ID, Name: u.Name, Email: u.Email}
}

// TokenPair is what a successful login produces: a short-lived access token
// for the Authorization header and a long-lived refresh token destined for
// the HTTP-only cookie.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}
