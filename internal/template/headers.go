package template

import (
	"fmt"
	"net/http"
	"net/url"

	svcerrors "oauth-refresh/pkg/errors"

	"golang.org/x/net/http/httpguts"
)

// Headers renders a definition's raw header map against the computation's
// headers sub-payload and validates every entry as an HTTP header. A single
// malformed name or value fails the whole render; there is no
// partial-success mode.
func (e *Engine) Headers(raw map[string]string, context interface{}) (http.Header, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	ctx, err := normalize(context)
	if err != nil {
		return nil, svcerrors.Wrap(err, svcerrors.ErrComputation)
	}

	headers := make(http.Header, len(raw))
	for key, value := range raw {
		rendered, err := e.renderString(value, ctx)
		if err != nil {
			return nil, svcerrors.Wrap(fmt.Errorf("header %q: %w", key, err), svcerrors.ErrComputation)
		}

		if !httpguts.ValidHeaderFieldName(key) {
			return nil, svcerrors.WithMessage(svcerrors.ErrComputation, fmt.Sprintf("invalid header name %q", key))
		}
		if !httpguts.ValidHeaderFieldValue(rendered) {
			return nil, svcerrors.WithMessage(svcerrors.ErrComputation, fmt.Sprintf("invalid value for header %q", key))
		}

		headers.Set(key, rendered)
	}

	return headers, nil
}

// Query renders a definition's raw query-parameter map against the
// computation's queryParams sub-payload.
func (e *Engine) Query(raw map[string]string, context interface{}) (url.Values, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	ctx, err := normalize(context)
	if err != nil {
		return nil, svcerrors.Wrap(err, svcerrors.ErrComputation)
	}

	values := make(url.Values, len(raw))
	for key, value := range raw {
		rendered, err := e.renderString(value, ctx)
		if err != nil {
			return nil, svcerrors.Wrap(fmt.Errorf("query param %q: %w", key, err), svcerrors.ErrComputation)
		}
		values.Set(key, rendered)
	}

	return values, nil
}
