package embedding

import (
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/dbaxter/docrag/internal/domain"
)

// Client wraps the OpenAI client for embedding generation.
type Client struct {
	client *openai.Client
}

// NewClient creates an OpenAI client with an explicit API key.
// The key is required; configuration is injected rather than read from
// ambient process state.
func NewClient(apiKey string) (*Client, error) {
	if apiKey == "" {
		return nil, domain.NewError(domain.ErrCodeValidation, "openai api key not configured")
	}

	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &Client{client: &client}, nil
}
