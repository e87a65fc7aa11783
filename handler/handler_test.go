package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"

	"chat-gateway/internal/domain"
	"chat-gateway/internal/usecase"
)

type stubService struct {
	out usecase.SendOutput
	err error
	in  usecase.SendInput
}

func (s *stubService) Send(_ context.Context, in usecase.SendInput) (usecase.SendOutput, error) {
	s.in = in
	return s.out, s.err
}

func makeEvent(body string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodPost,
		Path:       "/chat",
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       body,
	}
}

func parseBody[T any](t *testing.T, body string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(body), &v))
	return v
}

func TestNewHandler_ValidatesDependency(t *testing.T) {
	_, err := NewHandler(nil)
	require.Error(t, err)
}

func TestHandle_HappyPath(t *testing.T) {
	svc := &stubService{out: usecase.SendOutput{Reply: "hello there", Remaining: 4}}
	h, err := NewHandler(svc)
	require.NoError(t, err)

	body := `{"sessionId":7,"subjectId":"alice","message":"hi","history":[{"role":"user","content":"earlier"},{"role":"assistant","content":"reply"}]}`
	resp, err := h.Handle(context.Background(), makeEvent(body))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Equal(t, int64(7), svc.in.SessionID)
	require.Equal(t, "alice", svc.in.SubjectID)
	require.Equal(t, "hi", svc.in.Message)
	require.Equal(t, []domain.ConversationTurn{
		{Role: domain.RoleUser, Content: "earlier"},
		{Role: domain.RoleAssistant, Content: "reply"},
	}, svc.in.History)

	out := parseBody[chatResponse](t, resp.Body)
	require.True(t, out.Success)
	require.Equal(t, "hello there", out.Reply)
	require.Equal(t, 4, out.Remaining)
	require.NotEmpty(t, resp.Headers["X-Correlation-Id"])
}

func TestHandle_UnlimitedSessionReportsMinusOne(t *testing.T) {
	svc := &stubService{out: usecase.SendOutput{Reply: "ok", Remaining: -1}}
	h, err := NewHandler(svc)
	require.NoError(t, err)

	resp, err := h.Handle(context.Background(), makeEvent(`{"sessionId":7,"subjectId":"alice","message":"hi"}`))
	require.NoError(t, err)

	out := parseBody[chatResponse](t, resp.Body)
	require.Equal(t, -1, out.Remaining)
}

func TestHandle_MissingSubjectGetsGeneratedIdentity(t *testing.T) {
	svc := &stubService{out: usecase.SendOutput{Reply: "ok", Remaining: -1}}
	h, err := NewHandler(svc)
	require.NoError(t, err)

	_, err = h.Handle(context.Background(), makeEvent(`{"sessionId":7,"message":"hi"}`))
	require.NoError(t, err)
	require.NotEmpty(t, svc.in.SubjectID)
}

func TestHandle_InvalidBody(t *testing.T) {
	h, err := NewHandler(&stubService{})
	require.NoError(t, err)

	resp, err := h.Handle(context.Background(), makeEvent(`not-json`))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	out := parseBody[errorResponse](t, resp.Body)
	require.False(t, out.Success)
	require.NotEmpty(t, out.Error)
}

func TestHandle_RejectsMissingOrNonPositiveSessionID(t *testing.T) {
	for _, body := range []string{
		`{"message":"hi"}`,
		`{"sessionId":0,"message":"hi"}`,
		`{"sessionId":-3,"message":"hi"}`,
	} {
		svc := &stubService{out: usecase.SendOutput{Reply: "ok", Remaining: -1}}
		h, err := NewHandler(svc)
		require.NoError(t, err)

		resp, err := h.Handle(context.Background(), makeEvent(body))
		require.NoError(t, err)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)

		out := parseBody[errorResponse](t, resp.Body)
		require.False(t, out.Success)
		require.Equal(t, "A valid session id is required.", out.Error)
		require.Zero(t, svc.in, "service must not be called for %s", body)
	}
}

func TestHandle_RateLimitedShape(t *testing.T) {
	svc := &stubService{err: &usecase.Error{
		Code:    usecase.ErrorRateLimited,
		Reason:  "quota_exhausted",
		Message: "You have reached your limit of 2 questions per day. Please try again later.",
	}}
	h, err := NewHandler(svc)
	require.NoError(t, err)

	resp, err := h.Handle(context.Background(), makeEvent(`{"sessionId":7,"subjectId":"alice","message":"hi"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	out := parseBody[map[string]any](t, resp.Body)
	require.Equal(t, false, out["success"])
	require.Equal(t, "You have reached your limit of 2 questions per day. Please try again later.", out["error"])
	require.Equal(t, float64(0), out["remaining"])
}

func TestHandle_FailureShapesOmitRemaining(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{name: "session limit", err: &usecase.Error{Code: usecase.ErrorSessionLimit, Reason: "history_cap_reached", Message: "You have reached the maximum number of messages for this session."}, status: http.StatusBadRequest},
		{name: "invalid input", err: &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "empty_message"}, status: http.StatusBadRequest},
		{name: "content failure", err: &usecase.Error{Code: usecase.ErrorContent, Reason: "content_fetch_error"}, status: http.StatusBadGateway},
		{name: "generation failure", err: &usecase.Error{Code: usecase.ErrorUpstream, Reason: "generation_error", Message: "model overloaded"}, status: http.StatusBadGateway},
		{name: "internal", err: &usecase.Error{Code: usecase.ErrorInternal, Reason: "usage_write_error"}, status: http.StatusInternalServerError},
		{name: "unexpected", err: errors.New("boom"), status: http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, err := NewHandler(&stubService{err: tc.err})
			require.NoError(t, err)

			resp, err := h.Handle(context.Background(), makeEvent(`{"sessionId":7,"subjectId":"alice","message":"hi"}`))
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)

			out := parseBody[map[string]any](t, resp.Body)
			require.Equal(t, false, out["success"])
			require.NotEmpty(t, out["error"])
			require.NotContains(t, out, "remaining")
		})
	}
}

func TestHandle_GenerationErrorSurfacedVerbatim(t *testing.T) {
	svc := &stubService{err: &usecase.Error{Code: usecase.ErrorUpstream, Reason: "generation_error", Message: "model overloaded"}}
	h, err := NewHandler(svc)
	require.NoError(t, err)

	resp, err := h.Handle(context.Background(), makeEvent(`{"sessionId":7,"subjectId":"alice","message":"hi"}`))
	require.NoError(t, err)

	out := parseBody[errorResponse](t, resp.Body)
	require.Equal(t, "model overloaded", out.Error)
}

func TestHandle_UsesProvidedCorrelationID_CaseInsensitive(t *testing.T) {
	svc := &stubService{out: usecase.SendOutput{Reply: "ok", Remaining: -1}}
	h, err := NewHandler(svc)
	require.NoError(t, err)

	event := makeEvent(`{"sessionId":7,"subjectId":"alice","message":"hi"}`)
	event.Headers["x-correlation-id"] = "corr-123"
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, "corr-123", resp.Headers["X-Correlation-Id"])
}
