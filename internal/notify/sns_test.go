package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trial-matcher/internal/common/logger"
	"trial-matcher/internal/models"
)

// ==========================
// Test Helper Functions
// ==========================

type MockSNSService struct {
	PublishFunc func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
	calls       []*sns.PublishInput
}

func (m *MockSNSService) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	m.calls = append(m.calls, params)
	return m.PublishFunc(ctx, params, optFns...)
}

func okPublisher() *MockSNSService {
	return &MockSNSService{
		PublishFunc: func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
			return &sns.PublishOutput{MessageId: aws.String("msg-1")}, nil
		},
	}
}

func result(offering string, confidence float64, tier models.ConfidenceTier) *models.MatchResult {
	return &models.MatchResult{
		MatchID:    "m-" + offering,
		OfferingID: offering,
		Confidence: confidence,
		Tier:       tier,
	}
}

// ==========================
// NotifyMatches Tests
// ==========================

func TestNotifyMatches_PublishesHighTier(t *testing.T) {
	api := okPublisher()
	n := NewSNSNotifier(api, "arn:aws:sns:us-east-1:123:matches", logger.NewTestLogger(t))

	sent, err := n.NotifyMatches(context.Background(), "patient-1", []*models.MatchResult{
		result("trial-1", 92, models.TierHigh),
		result("trial-2", 70, models.TierMedium),
		result("trial-3", 81, models.TierHigh),
	})

	require.NoError(t, err)
	assert.True(t, sent)
	require.Len(t, api.calls, 1)

	input := api.calls[0]
	assert.Equal(t, "arn:aws:sns:us-east-1:123:matches", aws.ToString(input.TopicArn))
	assert.Equal(t, EventHighConfidenceMatch, aws.ToString(input.MessageAttributes["event"].StringValue))

	var msg Message
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(input.Message)), &msg))
	assert.Equal(t, "patient-1", msg.SubjectID)
	assert.Equal(t, 2, msg.HighCount)
	require.Len(t, msg.TopMatches, 2)
	assert.Equal(t, "trial-1", msg.TopMatches[0].OfferingID)
	assert.Equal(t, "trial-3", msg.TopMatches[1].OfferingID)
}

func TestNotifyMatches_NoHighTierIsNoop(t *testing.T) {
	api := okPublisher()
	n := NewSNSNotifier(api, "arn", logger.NewTestLogger(t))

	tests := []struct {
		name    string
		results []*models.MatchResult
	}{
		{"empty", nil},
		{"medium only", []*models.MatchResult{result("trial-1", 70, models.TierMedium)}},
		{"nil entries", []*models.MatchResult{nil, result("trial-2", 50, models.TierLow)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sent, err := n.NotifyMatches(context.Background(), "patient-1", tt.results)
			assert.NoError(t, err)
			assert.False(t, sent)
		})
	}
	assert.Empty(t, api.calls)
}

func TestNotifyMatches_PublishError(t *testing.T) {
	api := &MockSNSService{
		PublishFunc: func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
			return nil, errors.New("throttled")
		},
	}
	n := NewSNSNotifier(api, "arn", logger.NewTestLogger(t))

	sent, err := n.NotifyMatches(context.Background(), "patient-1", []*models.MatchResult{result("trial-1", 95, models.TierHigh)})

	assert.False(t, sent)
	assert.ErrorIs(t, err, ErrNotification)
	assert.Contains(t, err.Error(), "throttled")
}

func TestNotifyMatches_NotConfigured(t *testing.T) {
	n := NewSNSNotifier(nil, "", nil)

	sent, err := n.NotifyMatches(context.Background(), "patient-1", []*models.MatchResult{result("trial-1", 95, models.TierHigh)})

	assert.False(t, sent)
	assert.ErrorIs(t, err, ErrNotification)
}

func TestBuildMessage_CapsListedMatches(t *testing.T) {
	var results []*models.MatchResult
	for i := 0; i < 8; i++ {
		results = append(results, result(fmt.Sprintf("trial-%d", i), 90, models.TierHigh))
	}

	msg := BuildMessage("patient-1", results)

	require.NotNil(t, msg)
	assert.Equal(t, 8, msg.HighCount)
	assert.Len(t, msg.TopMatches, maxListedMatches)
	assert.Equal(t, "trial-0", msg.TopMatches[0].OfferingID)
}
