package model

import "time"

// User represents a registered user in the database.
type User struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RegisterRequest represents a user registration request.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest represents a user login request.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterResponse is returned after successful registration. The field
// casing mirrors the public API contract.
type RegisterResponse struct {
	Success     bool   `json:"Success"`
	Message     string `json:"message"`
	AccessToken string `json:"accessToken"`
}

// LoginResponse is returned after successful login.
type LoginResponse struct {
	AccessToken string `json:"accessToken"`
}
