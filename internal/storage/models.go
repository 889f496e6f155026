package storage

import (
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type Provider struct {
	ID           uuid.UUID          `json:"id"`
	Name         string             `json:"name"`
	ProviderType string             `json:"provider_type"`
	Credentials  []byte             `json:"credentials"`
	Priority     int32              `json:"priority"`
	Enabled      bool               `json:"enabled"`
	DailyLimit   int32              `json:"daily_limit"`
	UsedToday    int32              `json:"used_today"`
	SuccessCount int64              `json:"success_count"`
	FailureCount int64              `json:"failure_count"`
	LastUsed     pgtype.Timestamptz `json:"last_used"`
	CreatedAt    pgtype.Timestamptz `json:"created_at"`
	UpdatedAt    pgtype.Timestamptz `json:"updated_at"`
}

type ProviderStat struct {
	ProviderName string      `json:"provider_name"`
	Date         pgtype.Date `json:"date"`
	Sent         int32       `json:"sent"`
	Failed       int32       `json:"failed"`
}
