package template

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	svcerrors "oauth-refresh/pkg/errors"
)

// Engine renders placeholder templates against a JSON context and evaluates
// declarative JMESPath transforms. Rendering walks the string leaves of a
// JSON tree recursively, so arbitrarily nested structures can carry
// placeholders at any depth without a serialize/re-parse round trip.
type Engine struct {
	// Matches {{ access_token }}, {{access_token}} and {{ nested.field }}.
	// A leading dot is tolerated for compatibility with dotted templates.
	pattern *regexp.Regexp
}

// New creates a new template engine
func New() *Engine {
	return &Engine{
		pattern: regexp.MustCompile(`\{\{\s*\.?([a-zA-Z_][a-zA-Z0-9_]*(?:\.[a-zA-Z_][a-zA-Z0-9_]*)*)\s*\}\}`),
	}
}

// Render substitutes every placeholder in value against context. Missing
// variables, unrenderable values and any other template problem all map to
// the single computation-failed error kind.
func (e *Engine) Render(value interface{}, context interface{}) (interface{}, error) {
	ctx, err := normalize(context)
	if err != nil {
		return nil, svcerrors.Wrap(err, svcerrors.ErrComputation)
	}

	tree, err := normalize(value)
	if err != nil {
		return nil, svcerrors.Wrap(err, svcerrors.ErrComputation)
	}

	rendered, err := e.render(tree, ctx)
	if err != nil {
		return nil, svcerrors.Wrap(err, svcerrors.ErrComputation)
	}

	return rendered, nil
}

// RenderInto renders in against context and decodes the result into out.
// It is used for the optional full-definition pre-render, where the
// rendered tree must round-trip back into a typed structure.
func (e *Engine) RenderInto(in interface{}, context interface{}, out interface{}) error {
	rendered, err := e.Render(in, context)
	if err != nil {
		return err
	}

	data, err := json.Marshal(rendered)
	if err != nil {
		return svcerrors.Wrap(err, svcerrors.ErrComputation)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return svcerrors.Wrap(err, svcerrors.ErrComputation)
	}

	return nil
}

// RenderString renders a single template string against context.
func (e *Engine) RenderString(value string, context interface{}) (string, error) {
	ctx, err := normalize(context)
	if err != nil {
		return "", svcerrors.Wrap(err, svcerrors.ErrComputation)
	}

	rendered, err := e.renderString(value, ctx)
	if err != nil {
		return "", svcerrors.Wrap(err, svcerrors.ErrComputation)
	}

	return rendered, nil
}

func (e *Engine) render(value interface{}, context interface{}) (interface{}, error) {
	switch v := value.(type) {
	case string:
		return e.renderString(v, context)
	case map[string]interface{}:
		result := make(map[string]interface{}, len(v))
		for key, val := range v {
			rendered, err := e.render(val, context)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", key, err)
			}
			result[key] = rendered
		}
		return result, nil
	case []interface{}:
		result := make([]interface{}, len(v))
		for i, val := range v {
			rendered, err := e.render(val, context)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			result[i] = rendered
		}
		return result, nil
	default:
		// Numbers, booleans and nulls carry no placeholders
		return value, nil
	}
}

func (e *Engine) renderString(value string, context interface{}) (string, error) {
	var missing []string

	result := e.pattern.ReplaceAllStringFunc(value, func(match string) string {
		name := e.pattern.FindStringSubmatch(match)[1]
		resolved, ok := lookup(context, name)
		if !ok {
			missing = append(missing, name)
			return match
		}
		return stringify(resolved)
	})

	if len(missing) > 0 {
		return "", fmt.Errorf("missing template variables: %s", strings.Join(missing, ", "))
	}

	return result, nil
}

// lookup resolves a dotted path against a JSON tree.
func lookup(context interface{}, path string) (interface{}, bool) {
	current := context
	for _, segment := range strings.Split(path, ".") {
		node, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = node[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func stringify(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return ""
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}

// normalize round-trips a value through JSON so structs, maps and raw
// messages all become the generic tree the renderer walks. A nil context
// stays nil and every lookup against it fails as missing.
func normalize(value interface{}) (interface{}, error) {
	if value == nil {
		return nil, nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("normalize payload: %w", err)
	}

	var tree interface{}
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("normalize payload: %w", err)
	}

	return tree, nil
}
