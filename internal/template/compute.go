package template

import (
	"encoding/json"
	"fmt"

	"oauth-refresh/internal/models"
	svcerrors "oauth-refresh/pkg/errors"

	"github.com/jmespath/go-jmespath"
)

// Evaluate applies a JMESPath expression to a JSON payload and returns the
// derived value.
func (e *Engine) Evaluate(expression string, payload interface{}) (interface{}, error) {
	tree, err := normalize(payload)
	if err != nil {
		return nil, svcerrors.Wrap(err, svcerrors.ErrComputation)
	}

	result, err := jmespath.Search(expression, tree)
	if err != nil {
		return nil, svcerrors.Wrap(fmt.Errorf("evaluate %q: %w", expression, err), svcerrors.ErrComputation)
	}

	return result, nil
}

// Compute evaluates a definition's computation transform against the secret
// payload, yielding the headers/query/body sub-payloads used as template
// context downstream.
func (e *Engine) Compute(expression string, payload interface{}) (*models.Computation, error) {
	result, err := e.Evaluate(expression, payload)
	if err != nil {
		return nil, err
	}

	var computation models.Computation
	if err := decode(result, &computation); err != nil {
		return nil, svcerrors.Wrap(err, svcerrors.ErrComputation)
	}

	return &computation, nil
}

// DecodeResponse applies a definition's response transform to the decode
// document and normalizes the result. The decode document carries both the
// raw provider reply and the original secret, so transforms can fall back
// to prior values for fields the provider omits.
func (e *Engine) DecodeResponse(expression string, document interface{}) (*models.OAuthResponse, error) {
	result, err := e.Evaluate(expression, document)
	if err != nil {
		return nil, err
	}

	var response models.OAuthResponse
	if err := decode(result, &response); err != nil {
		return nil, svcerrors.Wrap(err, svcerrors.ErrComputation)
	}

	if response.AccessToken == "" {
		return nil, svcerrors.WithMessage(svcerrors.ErrComputation, "response transform produced no access token")
	}
	if response.ExpiresIn <= 0 {
		return nil, svcerrors.WithMessage(svcerrors.ErrComputation, "response transform produced no expiry")
	}

	return &response, nil
}

func decode(value interface{}, out interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("serialize transform result: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode transform result: %w", err)
	}
	return nil
}
