package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/imgdrop/internal/client/repositories/settings"
	"github.com/dmitrijs2005/imgdrop/internal/server/auth"
)

// devTokenTTL is the lifetime of tokens minted by "token mint".
const devTokenTTL = 24 * time.Hour

// getSecret is an indirection used to facilitate testing.
var getSecret = GetSecret

// Token sets the bearer token used by the transport.
//
//	token                       prompt for a token without echo
//	token mint <owner> <secret> sign a development token with the
//	                            server's shared secret
//	token forget                drop the saved token
//
// The token is saved in the local database for later sessions.
func (a *App) Token(ctx context.Context, args []string) error {
	var token string

	switch {
	case len(args) == 1 && args[0] == "forget":
		if err := a.settings.Delete(ctx, settings.KeyToken); err != nil {
			return err
		}
		a.transport.SetToken("")
		a.config.Token = ""
		fmt.Fprintln(a.out, "Token removed.")
		return nil
	case len(args) == 0:
		b, err := getSecret(a.out, "Enter token: ")
		if err != nil {
			return err
		}
		token = string(b)
	case args[0] == "mint" && len(args) == 3:
		t, err := auth.GenerateToken(args[1], []byte(args[2]), devTokenTTL)
		if err != nil {
			return fmt.Errorf("mint token: %w", err)
		}
		token = t
	default:
		return errors.New("usage: token | token mint <owner> <secret> | token forget")
	}

	if token == "" {
		return errors.New("token is empty")
	}
	a.transport.SetToken(token)
	a.config.Token = token
	if err := a.settings.Set(ctx, settings.KeyToken, token); err != nil {
		a.logger.Warn(ctx, "saving token", "error", err)
	}
	a.logger.Info(ctx, "access token updated")
	fmt.Fprintln(a.out, "Token set.")
	return nil
}
