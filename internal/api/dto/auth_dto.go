package dto

import "time"

// CustomerLoginRequest payload.
type CustomerLoginRequest struct {
	CustomerID string `json:"customerId" validate:"required"`
	Phone      string `json:"phone"`
}

// StaffLoginRequest payload.
type StaffLoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// TokenResponse wraps an issued token.
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	Subject   string    `json:"subject"`
	SubjectID string    `json:"subjectId"`
	Name      string    `json:"name"`
}
