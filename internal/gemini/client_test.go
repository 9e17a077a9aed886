package gemini

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockGenerativeAPI is a mock for the Gemini API
type MockGenerativeAPI struct {
	mock.Mock
}

func (m *MockGenerativeAPI) GenerateText(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

func TestClient_Generate_Success(t *testing.T) {
	mockAPI := new(MockGenerativeAPI)
	client := &Client{api: mockAPI}

	ctx := context.Background()
	prompt := "Resume las medidas cautelares del expediente."
	mockAPI.On("GenerateText", ctx, prompt).Return("Se acordó el embargo preventivo de bienes.", nil)

	answer, err := client.Generate(ctx, prompt)

	assert.NoError(t, err)
	assert.Equal(t, "Se acordó el embargo preventivo de bienes.", answer)
	mockAPI.AssertExpectations(t)
}

func TestClient_Generate_TrimsWhitespace(t *testing.T) {
	mockAPI := new(MockGenerativeAPI)
	client := &Client{api: mockAPI}

	ctx := context.Background()
	mockAPI.On("GenerateText", ctx, "pregunta").Return("\n  respuesta  \n", nil)

	answer, err := client.Generate(ctx, "pregunta")

	assert.NoError(t, err)
	assert.Equal(t, "respuesta", answer)
}

func TestClient_Generate_EmptyPrompt(t *testing.T) {
	client := &Client{api: new(MockGenerativeAPI)}

	answer, err := client.Generate(context.Background(), "   \n\t ")

	assert.Error(t, err)
	assert.Empty(t, answer)
	assert.Equal(t, ErrEmptyPrompt, err)
}

func TestClient_Generate_APIError(t *testing.T) {
	mockAPI := new(MockGenerativeAPI)
	client := &Client{api: mockAPI}

	ctx := context.Background()
	apiErr := errors.New("quota exceeded")
	mockAPI.On("GenerateText", ctx, "pregunta").Return("", apiErr)

	answer, err := client.Generate(ctx, "pregunta")

	assert.Error(t, err)
	assert.Empty(t, answer)
	assert.Contains(t, err.Error(), "failed to generate content")
	mockAPI.AssertExpectations(t)
}

func TestClient_Generate_NoCandidates(t *testing.T) {
	mockAPI := new(MockGenerativeAPI)
	client := &Client{api: mockAPI}

	ctx := context.Background()
	mockAPI.On("GenerateText", ctx, "pregunta").Return("   ", nil)

	answer, err := client.Generate(ctx, "pregunta")

	assert.Error(t, err)
	assert.Empty(t, answer)
	assert.Equal(t, ErrNoCandidates, err)
}

func TestNewClientFromEnv_NoAPIKey(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "")

	client, err := NewClientFromEnv(context.Background())

	assert.Nil(t, client)
	assert.Equal(t, ErrNoAPIKey, err)
}
