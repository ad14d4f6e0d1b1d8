package client

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockPayoutClient is a mock implementation of PayoutClient for testing.
// It uses testify/mock to allow test assertions on method calls.
type MockPayoutClient struct {
	mock.Mock
}

// GrantReward mocks paying out a quest reward.
func (m *MockPayoutClient) GrantReward(ctx context.Context, userID, questID string, amount float64) error {
	args := m.Called(ctx, userID, questID, amount)
	return args.Error(0)
}

// NewMockPayoutClient creates a new mock payout client.
func NewMockPayoutClient() *MockPayoutClient {
	return &MockPayoutClient{}
}
