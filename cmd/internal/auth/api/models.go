package authapi

import (
	"time"

	"expertly/cmd/identity"
)

type registerRequest struct {
	Username          string `json:"username"`
	Email             string `json:"email"`
	Password          string `json:"password"`
	PreferredLanguage string `json:"preferredLanguage"`
}

type expertRegisterRequest struct {
	Username          string   `json:"username"`
	Email             string   `json:"email"`
	Password          string   `json:"password"`
	PreferredLanguage string   `json:"preferredLanguage"`
	FullName          string   `json:"fullName"`
	Headline          string   `json:"headline"`
	Bio               string   `json:"bio"`
	Skills            []string `json:"skills"`
	ImageURL          string   `json:"imageUrl"`
}

type checkUsernameRequest struct {
	Username string `json:"username"`
}

type checkUsernameResponse struct {
	Available bool `json:"available"`
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type logoutResponse struct {
	Success bool `json:"success"`
}

type accountResponse struct {
	ID                string    `json:"id"`
	Username          string    `json:"username"`
	Email             string    `json:"email"`
	Role              string    `json:"role"`
	AvatarURL         *string   `json:"avatarUrl,omitempty"`
	PreferredLanguage string    `json:"preferredLanguage,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}

type profileResponse struct {
	FullName string   `json:"fullName"`
	Headline string   `json:"headline,omitempty"`
	Bio      string   `json:"bio,omitempty"`
	Skills   []string `json:"skills,omitempty"`
	ImageURL *string  `json:"imageUrl,omitempty"`
}

type sessionResponse struct {
	AccessToken      string    `json:"accessToken,omitempty"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshToken     string    `json:"refreshToken,omitempty"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

type authResponse struct {
	Account accountResponse  `json:"account"`
	Profile *profileResponse `json:"profile,omitempty"`
	Session sessionResponse  `json:"session"`
}

type meResponse struct {
	Account accountResponse  `json:"account"`
	Profile *profileResponse `json:"profile,omitempty"`
}

func toAccountResponse(acc identity.Account) accountResponse {
	return accountResponse{
		ID:                acc.ID,
		Username:          acc.Username,
		Email:             acc.Email,
		Role:              string(acc.Role),
		AvatarURL:         acc.AvatarURL,
		PreferredLanguage: acc.PreferredLanguage,
		CreatedAt:         acc.CreatedAt,
	}
}

func toProfileResponse(p identity.ExpertProfile) *profileResponse {
	return &profileResponse{
		FullName: p.FullName,
		Headline: p.Headline,
		Bio:      p.Bio,
		Skills:   p.Skills,
		ImageURL: p.ImageURL,
	}
}
