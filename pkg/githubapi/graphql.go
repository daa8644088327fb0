package githubapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/ghwire/ghwire/pkg/apierr"
)

// graphQLRequest is the POST /graphql body shape.
type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// graphQLResponse is the envelope GitHub returns. A response can carry
// both partial data and errors; errors win.
type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"errors"`
}

// GraphQL executes a raw GraphQL query and decodes the data envelope
// into result. Queries are plain strings; there is no query builder.
//
// GraphQL requests draw from their own rate limit category, and errors
// reported in the response errors array surface as graphql-category
// errors even though the HTTP status is 200.
func (c *Client) GraphQL(ctx context.Context, query string, variables map[string]any, result any) error {
	payload, err := json.Marshal(graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return apierr.Configuration("marshal graphql request", err)
	}

	response, err := c.doRaw(ctx, http.MethodPost, c.resolve("/graphql"), payload)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	requestID := response.Header.Get("X-GitHub-Request-Id")

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return apierr.Response(requestID, err)
	}

	var envelope graphQLResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return apierr.Response(requestID, err)
	}

	if len(envelope.Errors) > 0 {
		messages := make([]string, 0, len(envelope.Errors))
		for _, graphQLErr := range envelope.Errors {
			message := graphQLErr.Message
			if graphQLErr.Type != "" {
				message = graphQLErr.Type + ": " + message
			}
			messages = append(messages, message)
		}
		return apierr.GraphQL(requestID, messages)
	}

	if result == nil || len(envelope.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, result); err != nil {
		return apierr.Response(requestID, err)
	}
	return nil
}
