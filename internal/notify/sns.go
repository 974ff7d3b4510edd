// internal/notify/sns.go
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	awsclient "trial-matcher/internal/common/aws"
	"trial-matcher/internal/common/logger"
	"trial-matcher/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

var ErrNotification = errors.New("NOTIFICATION_FAILED")

const (
	EventHighConfidenceMatch = "match.high_confidence"
	maxListedMatches         = 5
)

type MatchSummary struct {
	MatchID    string                `json:"matchId,omitempty"`
	OfferingID string                `json:"offeringId"`
	Confidence float64               `json:"confidence"`
	Tier       models.ConfidenceTier `json:"tier"`
}

type Message struct {
	Event      string         `json:"event"`
	SubjectID  string         `json:"subjectId"`
	HighCount  int            `json:"highCount"`
	TopMatches []MatchSummary `json:"topMatches"`
}

// SNSNotifier publishes a summary when a batch produced High-tier matches.
type SNSNotifier struct {
	api      awsclient.SNSPublisher
	topicArn string
	logger   logger.Logger
}

func NewSNSNotifier(api awsclient.SNSPublisher, topicArn string, log logger.Logger) *SNSNotifier {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &SNSNotifier{
		api:      api,
		topicArn: topicArn,
		logger:   log.WithFields(map[string]interface{}{"component": "notify"}),
	}
}

// NotifyMatches publishes at most one message. It reports whether a message
// was sent; results without a High-tier match are a no-op.
func (n *SNSNotifier) NotifyMatches(ctx context.Context, subjectID string, results []*models.MatchResult) (bool, error) {
	msg := BuildMessage(subjectID, results)
	if msg == nil {
		return false, nil
	}
	if n.api == nil || n.topicArn == "" {
		return false, fmt.Errorf("%w: sns publisher not configured", ErrNotification)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrNotification, err)
	}

	out, err := n.api.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topicArn),
		Subject:  aws.String("High-confidence trial matches"),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event": {
				DataType:    aws.String("String"),
				StringValue: aws.String(EventHighConfidenceMatch),
			},
		},
	})
	if err != nil {
		return false, fmt.Errorf("%w: publish: %v", ErrNotification, err)
	}

	fields := map[string]interface{}{
		"subjectId": subjectID,
		"highCount": msg.HighCount,
	}
	if out != nil && out.MessageId != nil {
		fields["messageId"] = *out.MessageId
	}
	n.logger.Info("match notification published", fields)
	return true, nil
}

// BuildMessage returns nil when no result is High tier. Results are assumed
// ranked, so the listed matches are the best ones.
func BuildMessage(subjectID string, results []*models.MatchResult) *Message {
	msg := &Message{
		Event:      EventHighConfidenceMatch,
		SubjectID:  subjectID,
		TopMatches: []MatchSummary{},
	}
	for _, r := range results {
		if r == nil || r.Tier != models.TierHigh {
			continue
		}
		msg.HighCount++
		if len(msg.TopMatches) < maxListedMatches {
			msg.TopMatches = append(msg.TopMatches, MatchSummary{
				MatchID:    r.MatchID,
				OfferingID: r.OfferingID,
				Confidence: r.Confidence,
				Tier:       r.Tier,
			})
		}
	}
	if msg.HighCount == 0 {
		return nil
	}
	return msg
}
