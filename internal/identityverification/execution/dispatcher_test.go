package execution

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"idverify/internal/identityverification/models"
)

type stubHTTP struct {
	res *Result
	err error
	cfg *models.HTTPRequestConfig
}

func (s *stubHTTP) Execute(_ context.Context, cfg *models.HTTPRequestConfig, _ map[string]any) (*Result, error) {
	s.cfg = cfg
	return s.res, s.err
}

type resolverFunc func(status int) int

func (f resolverFunc) Resolve(_ context.Context, _ []models.ResponseResolveConfig, status int, _ http.Header, _ map[string]any) int {
	return f(status)
}

type DispatcherSuite struct {
	suite.Suite
	ctx context.Context
}

func TestDispatcherSuite(t *testing.T) {
	suite.Run(t, new(DispatcherSuite))
}

func (s *DispatcherSuite) SetupTest() {
	s.ctx = context.Background()
}

func (s *DispatcherSuite) TestNoAction() {
	res, err := NewDispatcher(nil, nil).Execute(s.ctx, models.ExecutionConfig{Type: models.ExecutionNoAction}, nil)
	s.Require().NoError(err)
	s.Equal(http.StatusOK, res.StatusCode)
	s.Empty(res.Body)
}

func (s *DispatcherSuite) TestMock() {
	s.Run("defaults to 200", func() {
		res, err := NewDispatcher(nil, nil).Execute(s.ctx, models.ExecutionConfig{
			Type: models.ExecutionMock,
			Mock: &models.MockConfig{ResponseBody: map[string]any{"application_id": "mock-1"}},
		}, nil)
		s.Require().NoError(err)
		s.Equal(http.StatusOK, res.StatusCode)
		s.Equal("mock-1", res.Body["application_id"])
	})

	s.Run("non-2xx mock is a failure", func() {
		res, err := NewDispatcher(nil, nil).Execute(s.ctx, models.ExecutionConfig{
			Type: models.ExecutionMock,
			Mock: &models.MockConfig{StatusCode: 422},
		}, nil)
		var failure *Failure
		s.Require().ErrorAs(err, &failure)
		s.Equal(422, failure.CallerStatus())
		s.Equal(CategoryClientError, res.StatusCategory())
	})
}

func (s *DispatcherSuite) TestHTTPRequestAppliesResolver() {
	stub := &stubHTTP{res: &Result{Type: models.ExecutionHTTPRequest, StatusCode: 200, UpstreamStatusCode: 200, Body: map[string]any{}}}
	d := NewDispatcher(stub, resolverFunc(func(int) int { return 400 }))

	cfg := &models.HTTPRequestConfig{URL: "https://kyc.example"}
	res, err := d.Execute(s.ctx, models.ExecutionConfig{Type: models.ExecutionHTTPRequest, HTTPRequest: cfg}, nil)

	var failure *Failure
	s.Require().ErrorAs(err, &failure)
	s.Equal(400, res.StatusCode)
	s.Equal(200, res.UpstreamStatusCode)
	s.Same(cfg, stub.cfg)
}

func (s *DispatcherSuite) TestHTTPRequestConfigurationError() {
	stub := &stubHTTP{err: errors.New("invalid url")}
	_, err := NewDispatcher(stub, nil).Execute(s.ctx, models.ExecutionConfig{Type: models.ExecutionHTTPRequest}, nil)
	s.Require().Error(err)
	var failure *Failure
	s.False(errors.As(err, &failure))
}

func (s *DispatcherSuite) TestUnknownType() {
	_, err := NewDispatcher(nil, nil).Execute(s.ctx, models.ExecutionConfig{Type: "grpc"}, nil)
	s.Require().Error(err)
}

func TestFailureCallerStatus(t *testing.T) {
	tests := []struct {
		upstream int
		want     int
		category string
	}{
		{400, 400, CategoryClientError},
		{404, 404, CategoryClientError},
		{500, 500, CategoryServerError},
		{502, 502, CategoryServerError},
		{503, 503, CategoryServerError},
		{504, 504, CategoryServerError},
		{302, 500, CategoryServerError},
	}
	for _, tc := range tests {
		f := &Failure{Result: &Result{Type: models.ExecutionHTTPRequest, StatusCode: tc.upstream}}
		assert.Equal(t, tc.want, f.CallerStatus(), "upstream %d", tc.upstream)
		assert.Equal(t, tc.category, f.Result.StatusCategory())
	}

	details := (&Failure{Result: &Result{Type: models.ExecutionHTTPRequest, StatusCode: 503}}).Details()
	require.Equal(t, "http_request", details["execution_type"])
	assert.Equal(t, "server_error", details["status_category"])
	assert.Equal(t, 503, details["status_code"])
	assert.Equal(t, map[string]any{}, details["response_body"])
}
