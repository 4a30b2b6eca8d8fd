package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims represents the JWT payload issued by the church portal.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	MemberID string   `json:"member_id"`
	Role     UserRole `json:"role"`
	FullName string   `json:"full_name"`
	jwt.RegisteredClaims
}

// Caller is the authenticated principal after privilege resolution.
type Caller struct {
	UserID    string    `json:"user_id"`
	MemberID  string    `json:"member_id"`
	Role      UserRole  `json:"role"`
	Privilege Privilege `json:"privilege"`
}
