package ingest

import (
	"fmt"
	"math"
	"strings"

	"github.com/agentic-research/trellis/internal/graph"
	"github.com/agentic-research/trellis/internal/schema"
)

var falsy = map[string]bool{"": true, "false": true, "0": true, "no": true, "n": true, "off": true}

// coerce converts a raw cell or JSON value to the scalar kind declared by t.
// Only text that does not read as a number is rejected; an INTEGER with a
// fraction is truncated toward zero.
func (im *Importer) coerce(t *schema.Type, raw any) (any, error) {
	switch t.Kind {
	case schema.KindInteger, schema.KindFloat:
		if s, isStr := raw.(string); isStr {
			raw = strings.TrimSpace(s)
		}
		f, ok := graph.ToFloat(raw)
		if !ok || math.IsNaN(f) {
			return nil, fmt.Errorf("%w: %s %q", ErrInvalidValue, t.Kind, fmt.Sprint(raw))
		}
		if t.Kind == schema.KindInteger && f != math.Trunc(f) {
			im.log.Debug("truncated integer value", "type", t.URI, "value", f)
			f = math.Trunc(f)
		}
		return f, nil
	case schema.KindBoolean:
		switch x := raw.(type) {
		case bool:
			return x, nil
		case string:
			return !falsy[strings.ToLower(strings.TrimSpace(x))], nil
		}
		f, ok := graph.ToFloat(raw)
		return ok && f != 0, nil
	}
	if s, ok := raw.(string); ok {
		return s, nil
	}
	return graph.FormatScalar(graph.ScalarValue(raw).Scalar()), nil
}
