package errors

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/camunda/zeebe/clients/go/v8/pkg/commands"
	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
)

// ==========================
// Test Doubles
// ==========================

// fakeGateway records the requests the real zeebe command builders send.
type fakeGateway struct {
	pb.GatewayClient
	failed []*pb.FailJobRequest
	thrown []*pb.ThrowErrorRequest
}

func (g *fakeGateway) FailJob(ctx context.Context, in *pb.FailJobRequest, _ ...grpc.CallOption) (*pb.FailJobResponse, error) {
	g.failed = append(g.failed, in)
	return &pb.FailJobResponse{}, nil
}

func (g *fakeGateway) ThrowError(ctx context.Context, in *pb.ThrowErrorRequest, _ ...grpc.CallOption) (*pb.ThrowErrorResponse, error) {
	g.thrown = append(g.thrown, in)
	return &pb.ThrowErrorResponse{}, nil
}

func noRetry(context.Context, error) bool { return false }

type fakeJobClient struct {
	gateway *fakeGateway
}

func (c *fakeJobClient) NewCompleteJobCommand() commands.CompleteJobCommandStep1 {
	return commands.NewCompleteJobCommand(c.gateway, noRetry)
}

func (c *fakeJobClient) NewFailJobCommand() commands.FailJobCommandStep1 {
	return commands.NewFailJobCommand(c.gateway, noRetry)
}

func (c *fakeJobClient) NewThrowErrorCommand() commands.ThrowErrorCommandStep1 {
	return commands.NewThrowErrorCommand(c.gateway, noRetry)
}

type recordingLogger struct {
	entries []map[string]interface{}
}

func (l *recordingLogger) Error(msg string, fields map[string]interface{}) {
	l.entries = append(l.entries, fields)
}

func createJob(retries int32) entities.Job {
	return entities.Job{ActivatedJob: &pb.ActivatedJob{
		Key:                42,
		Type:               "match-trials",
		ProcessInstanceKey: 420,
		Retries:            retries,
	}}
}

// ==========================
// HandleJobError
// ==========================

func TestHandleJobError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		jobRetries  int32
		wantFail    bool
		wantRetries int32
		wantCode    string
	}{
		{
			name:        "retryable error fails job with one retry used",
			err:         NewStoreQueryFailedError("patients", errors.New("connection reset")),
			jobRetries:  3,
			wantFail:    true,
			wantRetries: 2,
			wantCode:    "STORE_QUERY_FAILED",
		},
		{
			name:        "retries capped by error code",
			err:         NewExplanationTimeoutError(),
			jobRetries:  5,
			wantFail:    true,
			wantRetries: 1,
			wantCode:    "EXPLANATION_TIMEOUT",
		},
		{
			name:        "last attempt leaves no retries",
			err:         NewMatchPersistFailedError(errors.New("deadline exceeded")),
			jobRetries:  1,
			wantFail:    true,
			wantRetries: 0,
			wantCode:    "MATCH_PERSIST_FAILED",
		},
		{
			name:       "business error is thrown",
			err:        NewSubjectNotFoundError("patient-1"),
			jobRetries: 3,
			wantCode:   "SUBJECT_NOT_FOUND",
		},
		{
			name:       "retryable code marked non-retryable is thrown",
			err:        &StandardError{Code: ErrCodeStoreQueryFailed, Message: "bad query", Retryable: false},
			jobRetries: 3,
			wantCode:   "STORE_QUERY_FAILED",
		},
		{
			name:       "exhausted job is thrown",
			err:        NewNotificationFailedError("sns", errors.New("throttled")),
			jobRetries: 0,
			wantCode:   "NOTIFICATION_FAILED",
		},
		{
			name:       "plain error becomes internal",
			err:        errors.New("boom"),
			jobRetries: 3,
			wantCode:   "INTERNAL_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gateway := &fakeGateway{}
			log := &recordingLogger{}

			NewErrorHandler(log).HandleJobError(context.Background(), &fakeJobClient{gateway: gateway}, createJob(tt.jobRetries), tt.err)

			var variables string
			if tt.wantFail {
				require.Len(t, gateway.failed, 1)
				assert.Empty(t, gateway.thrown)
				req := gateway.failed[0]
				assert.Equal(t, int64(42), req.JobKey)
				assert.Equal(t, tt.wantRetries, req.Retries)
				variables = req.Variables
			} else {
				require.Len(t, gateway.thrown, 1)
				assert.Empty(t, gateway.failed)
				req := gateway.thrown[0]
				assert.Equal(t, int64(42), req.JobKey)
				assert.Equal(t, tt.wantCode, req.ErrorCode)
				variables = req.Variables
			}

			var vars map[string]interface{}
			require.NoError(t, json.Unmarshal([]byte(variables), &vars))
			assert.Equal(t, tt.wantCode, vars["errorCode"])

			require.Len(t, log.entries, 1)
			assert.Equal(t, tt.wantCode, log.entries[0]["errorCode"])
			assert.Equal(t, int64(420), log.entries[0]["workflowInstance"])
		})
	}
}
