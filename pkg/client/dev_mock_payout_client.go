package client

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/AccelByte/extend-questboard-common/pkg/config"
)

// DevMockPayoutClient is a simple mock implementation for local development.
// Unlike MockPayoutClient (testify/mock), this doesn't require explicit setup
// and always succeeds with logged output.
//
// Use this for local development when QUESTBOARD_PAYOUT_MODE=log.
// For tests, use MockPayoutClient instead.
type DevMockPayoutClient struct {
	logger *slog.Logger
}

// GrantReward logs the grant and returns success.
func (d *DevMockPayoutClient) GrantReward(ctx context.Context, userID, questID string, amount float64) error {
	if amount < 0 {
		return &InvalidAmountError{Amount: amount}
	}
	d.logger.InfoContext(ctx, "[DevMock] GrantReward",
		"user_id", userID,
		"quest_id", questID,
		"amount", amount,
	)
	return nil
}

// NewDevMockPayoutClient creates a new development mock payout client.
func NewDevMockPayoutClient(logger *slog.Logger) *DevMockPayoutClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &DevMockPayoutClient{logger: logger}
}

// NewPayoutClient builds the payout client selected by cfg.Mode.
func NewPayoutClient(cfg config.PayoutConfig, logger *slog.Logger) (PayoutClient, error) {
	switch cfg.Mode {
	case config.PayoutModeLog, "":
		return NewDevMockPayoutClient(logger), nil
	default:
		return nil, fmt.Errorf("unsupported payout mode: %q", cfg.Mode)
	}
}
