package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aretw0/botfactory/pkg/breaker"
	"github.com/getkin/kin-openapi/openapi3"
)

// DefaultJSONAttempts bounds CompleteJSON when attempts is not positive.
const DefaultJSONAttempts = 3

const jsonInstruction = "Respond with a single valid JSON document only. " +
	"Do not add explanations or markdown. The document must match this JSON schema:\n"

// CompleteJSON asks for a document matching schema and returns the first one that
// validates. Invalid documents and unsafe responses consume an attempt; any other
// error is returned at once.
func (c *Client) CompleteJSON(ctx context.Context, req Request, schema *openapi3.Schema, attempts int) (any, error) {
	if attempts <= 0 {
		attempts = DefaultJSONAttempts
	}
	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to encode schema: %w", err)
	}
	req.System = strings.TrimSpace(req.System + "\n\n" + jsonInstruction + string(schemaJSON))
	req.RejectHarmful = true

	var last error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			req.NoCache = true
		}
		resp, err := c.Complete(ctx, req)
		if errors.Is(err, ErrUnsafeResponse) {
			last = err
			continue
		}
		if err != nil {
			return nil, err
		}
		if resp.Fallback {
			return nil, breaker.ErrOpen
		}

		doc, err := ExtractJSON(resp.Content)
		if err != nil {
			last = err
			c.logger.Debug("llm json attempt invalid", "attempt", attempt+1, "err", err)
			continue
		}
		if err := schema.VisitJSON(doc); err != nil {
			last = err
			c.logger.Debug("llm json attempt does not match schema", "attempt", attempt+1, "err", err)
			continue
		}
		return doc, nil
	}
	return nil, fmt.Errorf("%w after %d attempts: %v", ErrInvalidJSON, attempts, last)
}

// ExtractJSON pulls the first JSON object or array out of text, ignoring markdown fences
// and surrounding prose.
func ExtractJSON(text string) (any, error) {
	text = strings.TrimSpace(text)
	if i := strings.Index(text, "```"); i >= 0 {
		inner := text[i+3:]
		if nl := strings.IndexByte(inner, '\n'); nl >= 0 {
			inner = inner[nl+1:]
		}
		if end := strings.Index(inner, "```"); end >= 0 {
			inner = inner[:end]
		}
		text = strings.TrimSpace(inner)
	}

	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return nil, errors.New("no json document in response")
	}
	closer := byte('}')
	if text[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(text, closer)
	if end < start {
		return nil, errors.New("unterminated json document")
	}

	var doc any
	if err := json.Unmarshal([]byte(text[start:end+1]), &doc); err != nil {
		return nil, fmt.Errorf("invalid json: %w", err)
	}
	return doc, nil
}
