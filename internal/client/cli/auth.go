package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/dmitrijs2005/scenekeeper/internal/client/repositories/metadata"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

// Register prompts for an email and password and creates a new account.
// On success the issued token is stored and installed, so the session is
// immediately authenticated.
func (a *App) Register(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email", os.Stdout)
	if err != nil {
		return err
	}

	password, err := getPassword(os.Stdout)
	if err != nil {
		return err
	}

	token, err := a.api.Register(ctx, email, string(password))
	if err != nil {
		return err
	}

	if err := a.storeSession(ctx, email, token); err != nil {
		return err
	}

	fmt.Println("Success!")
	return nil
}

// Login prompts for credentials and authenticates against the server. The
// token is persisted so a later start resumes the session.
func (a *App) Login(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email", os.Stdout)
	if err != nil {
		return err
	}

	password, err := getPassword(os.Stdout)
	if err != nil {
		return err
	}

	token, err := a.api.Login(ctx, email, string(password))
	if err != nil {
		return err
	}

	if err := a.storeSession(ctx, email, token); err != nil {
		return err
	}

	fmt.Println("Logged in")
	return nil
}

func (a *App) storeSession(ctx context.Context, email, token string) error {
	if err := a.repos.Metadata.Set(ctx, metadata.KeyAuthToken, []byte(token)); err != nil {
		return err
	}
	if err := a.repos.Metadata.Set(ctx, metadata.KeyEmail, []byte(email)); err != nil {
		return err
	}
	a.api.SetToken(token)
	a.email = email
	return nil
}

// Logout drops the stored token and the in-memory session.
func (a *App) Logout(ctx context.Context) error {
	if err := a.repos.Metadata.Delete(ctx, metadata.KeyAuthToken); err != nil {
		return err
	}
	if err := a.repos.Metadata.Delete(ctx, metadata.KeyEmail); err != nil {
		return err
	}
	a.api.SetToken("")
	a.email = ""
	a.openFileID = ""
	return nil
}
