// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/mailpilot/api/schemas"
)

// -- LLM Client Mock --

// MockLLMClient mocks the schemas.LLMClient interface.
type MockLLMClient struct {
	mock.Mock
}

// Generate provides a mock function for LLM calls.
func (m *MockLLMClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockLLMClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

// -- Browser Mocks --

// MockSessionOpener mocks the schemas.SessionOpener interface.
type MockSessionOpener struct {
	mock.Mock
}

func (m *MockSessionOpener) Open(ctx context.Context, provider schemas.ProviderTag) (schemas.Session, error) {
	args := m.Called(ctx, provider)
	if s := args.Get(0); s != nil {
		return s.(schemas.Session), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockSession mocks the schemas.Session interface.
type MockSession struct {
	mock.Mock
}

func (m *MockSession) ID() string { return m.Called().String(0) }

func (m *MockSession) NewPage(ctx context.Context) (schemas.Page, error) {
	args := m.Called(ctx)
	if p := args.Get(0); p != nil {
		return p.(schemas.Page), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSession) Close(ctx context.Context) error { return m.Called(ctx).Error(0) }

// MockPage mocks the schemas.Page interface.
type MockPage struct {
	mock.Mock
}

func (m *MockPage) SetViewport(ctx context.Context, width, height int) error {
	return m.Called(ctx, width, height).Error(0)
}
func (m *MockPage) Navigate(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}
func (m *MockPage) Reload(ctx context.Context) error { return m.Called(ctx).Error(0) }
func (m *MockPage) WaitVisible(ctx context.Context, locator string, timeout time.Duration) error {
	return m.Called(ctx, locator, timeout).Error(0)
}
func (m *MockPage) IsVisible(ctx context.Context, locator string) (bool, error) {
	args := m.Called(ctx, locator)
	return args.Bool(0), args.Error(1)
}
func (m *MockPage) Click(ctx context.Context, locator string) error {
	return m.Called(ctx, locator).Error(0)
}
func (m *MockPage) Fill(ctx context.Context, locator, value string) error {
	return m.Called(ctx, locator, value).Error(0)
}
func (m *MockPage) Type(ctx context.Context, locator, text string, delay time.Duration) error {
	return m.Called(ctx, locator, text, delay).Error(0)
}
func (m *MockPage) Press(ctx context.Context, locator, key string) error {
	return m.Called(ctx, locator, key).Error(0)
}
func (m *MockPage) Close(ctx context.Context) error { return m.Called(ctx).Error(0) }

// -- Run Log Mock --

// MockRunSink mocks the runlog.Sink interface.
type MockRunSink struct {
	mock.Mock
}

func (m *MockRunSink) Append(ctx context.Context, outcome schemas.RunOutcome) error {
	return m.Called(ctx, outcome).Error(0)
}

func (m *MockRunSink) Close() error { return m.Called().Error(0) }
