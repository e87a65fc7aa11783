// Package paramstore reads gateway settings and secrets from AWS SSM
// Parameter Store.
package paramstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"

	"chat-gateway/internal/domain"
)

// ssmAPI is the minimal AWS SSM interface required by Client.
// *ssm.Client from aws-sdk-go-v2 satisfies this interface.
type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Getter is the interface that wraps GetParameter. Consumers (e.g. the
// OpenAI client) should depend on this interface rather than the concrete
// *Client so they remain testable without real AWS calls.
type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// Client wraps an AWS SSM API for parameter retrieval.
type Client struct {
	api ssmAPI
}

// New creates a Client with the given SSM API implementation.
func New(api ssmAPI) (*Client, error) {
	if api == nil {
		return nil, errors.New("paramstore: api must not be nil")
	}
	return &Client{api: api}, nil
}

func (c *Client) GetParameter(ctx context.Context, name string) (string, error) {
	if c.api == nil {
		return "", errors.New("paramstore: client not initialized")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("paramstore: name is required")
	}

	withDecryption := true
	out, err := c.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &name,
		WithDecryption: &withDecryption,
	})
	if err != nil {
		return "", fmt.Errorf("paramstore: get parameter %q: %w", name, err)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return "", errors.New("paramstore: parameter missing value")
	}
	return *out.Parameter.Value, nil
}

// LoadGenerationParams reads the generation model and optional sampling
// settings from under the given prefix. The model is required; temperature
// and max tokens fall back to zero (provider defaults) when absent.
func LoadGenerationParams(ctx context.Context, g Getter, prefix string) (domain.GenerationParams, error) {
	prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return domain.GenerationParams{}, errors.New("paramstore: parameter prefix must not be empty")
	}

	model, err := g.GetParameter(ctx, prefix+"/config/model")
	if err != nil {
		return domain.GenerationParams{}, fmt.Errorf("paramstore: load model: %w", err)
	}
	if strings.TrimSpace(model) == "" {
		return domain.GenerationParams{}, errors.New("paramstore: model parameter is empty")
	}
	params := domain.GenerationParams{Model: strings.TrimSpace(model)}

	// Temperature and max tokens are optional: only a genuine not-found
	// falls back to provider defaults. Any other failure (throttling,
	// permissions, outage) must surface rather than silently change the
	// sampling settings.
	raw, err := g.GetParameter(ctx, prefix+"/config/temperature")
	switch {
	case err == nil:
		t, parseErr := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if parseErr != nil {
			return domain.GenerationParams{}, fmt.Errorf("paramstore: parse temperature: %w", parseErr)
		}
		params.Temperature = t
	case !isNotFound(err):
		return domain.GenerationParams{}, fmt.Errorf("paramstore: load temperature: %w", err)
	}

	raw, err = g.GetParameter(ctx, prefix+"/config/max_tokens")
	switch {
	case err == nil:
		n, parseErr := strconv.Atoi(strings.TrimSpace(raw))
		if parseErr != nil {
			return domain.GenerationParams{}, fmt.Errorf("paramstore: parse max tokens: %w", parseErr)
		}
		params.MaxTokens = n
	case !isNotFound(err):
		return domain.GenerationParams{}, fmt.Errorf("paramstore: load max tokens: %w", err)
	}

	return params, nil
}

func isNotFound(err error) bool {
	var notFound *ssmtypes.ParameterNotFound
	return errors.As(err, &notFound)
}
