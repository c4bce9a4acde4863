package models

import "time"

type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type MentorProfile struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	DisplayName *string   `json:"display_name"`
	Bio         *string   `json:"bio"`
	HourlyRate  *float64  `json:"hourly_rate"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
