// ABOUTME: Calendar API service construction for Google Calendar integration
// ABOUTME: Creates an authenticated Calendar service from an OAuth token
package gcal

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// Service creates a Google Calendar API service from an OAuth token. Extra
// options come after the authenticated client so tests can override the
// endpoint.
func (c *Client) Service(ctx context.Context, tok *oauth2.Token, opts ...option.ClientOption) (*calendar.Service, error) {
	if tok == nil {
		return nil, fmt.Errorf("token cannot be nil")
	}

	httpClient := c.cfg.Client(ctx, tok)

	all := append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	service, err := calendar.NewService(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}

	return service, nil
}
