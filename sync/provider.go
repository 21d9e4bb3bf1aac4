// ABOUTME: Provider abstraction and token plumbing shared by the sync engine and channel manager
// ABOUTME: Decrypts stored token material, validates/rotates it, and persists rotations before use
package sync

import (
	"context"
	"database/sql"
	"fmt"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/hearthfam/hearth/db"
	"github.com/hearthfam/hearth/models"
	"github.com/hearthfam/hearth/vault"
)

// ProviderClient is the slice of the OAuth client the sync subsystem needs.
// *gcal.Client satisfies it; tests substitute a fake pointed at a local API
// server.
type ProviderClient interface {
	ValidToken(ctx context.Context, tok *oauth2.Token) (*oauth2.Token, bool, error)
	Service(ctx context.Context, tok *oauth2.Token, opts ...option.ClientOption) (*calendar.Service, error)
}

// tokenBundle decrypts the token material stored on a calendar source.
func tokenBundle(v *vault.Vault, src *models.CalendarSource) (*oauth2.Token, error) {
	access, err := v.Decrypt(src.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt access token: %w", err)
	}

	tok := &oauth2.Token{AccessToken: access}
	if src.RefreshToken != nil {
		refresh, err := v.Decrypt(*src.RefreshToken)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt refresh token: %w", err)
		}
		tok.RefreshToken = refresh
	}

	// No expiry is persisted for the access token, so a stored bundle always
	// reads as expired and gets refreshed before use.
	return tok, nil
}

// serviceFor produces a ready Calendar API service for a source. When the
// token manager rotated the bundle, the new material is persisted onto the
// source row before any API call is made.
func serviceFor(ctx context.Context, database *sql.DB, v *vault.Vault, provider ProviderClient, src *models.CalendarSource, opts ...option.ClientOption) (*calendar.Service, error) {
	stored, err := tokenBundle(v, src)
	if err != nil {
		return nil, err
	}

	tok, rotated, err := provider.ValidToken(ctx, stored)
	if err != nil {
		return nil, err
	}

	if rotated {
		encAccess, err := v.Encrypt(tok.AccessToken)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt rotated access token: %w", err)
		}
		var encRefresh *string
		if tok.RefreshToken != "" && tok.RefreshToken != stored.RefreshToken {
			enc, err := v.Encrypt(tok.RefreshToken)
			if err != nil {
				return nil, fmt.Errorf("failed to encrypt rotated refresh token: %w", err)
			}
			encRefresh = &enc
		}
		if err := db.UpdateCalendarSourceTokens(ctx, database, src.ID, encAccess, encRefresh); err != nil {
			return nil, fmt.Errorf("failed to persist rotated tokens: %w", err)
		}
		src.AccessToken = encAccess
		if encRefresh != nil {
			src.RefreshToken = encRefresh
		}
	}

	return provider.Service(ctx, tok, opts...)
}
