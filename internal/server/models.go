package server

import (
	"time"

	"github.com/mohammad-safakhou/foresight/internal/models"
)

// HTTPError is a generic error envelope returned by the server.
type HTTPError struct {
	Error string `json:"error"`
}

// AuthSignupRequest represents the signup payload.
type AuthSignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthLoginRequest represents the login payload.
type AuthLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse carries a bearer token.
type TokenResponse struct {
	Token string `json:"token"`
}

// CreateForecastRequest submits a question for forecasting.
type CreateForecastRequest struct {
	Question       models.Question `json:"question"`
	RetrievalIndex int             `json:"retrieval_index"`
}

// ForecastAcceptedResponse acknowledges an async forecast run.
type ForecastAcceptedResponse struct {
	RunID     string    `json:"run_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}
