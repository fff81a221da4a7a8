package services

import (
	"context"
	"errors"

	"casasweb/internal/apiclient"
	"casasweb/internal/session"
)

// ErrDuplicateAccount is returned by SignUp when the API reports the username or email as taken.
var ErrDuplicateAccount = errors.New("username or email already exists")

type AuthAPI interface {
	SignIn(ctx context.Context, email, password string) (string, error)
	SignUp(ctx context.Context, username, email, password string) error
}

type AuthService struct {
	API      AuthAPI
	Sessions *session.Store
}

// SignIn exchanges credentials for a token and binds it to the browser session.
func (s *AuthService) SignIn(ctx context.Context, sid, email, password string) error {
	tok, err := s.API.SignIn(ctx, email, password)
	if err != nil {
		return err
	}
	return s.Sessions.Login(sid, tok)
}

func (s *AuthService) SignUp(ctx context.Context, username, email, password string) error {
	err := s.API.SignUp(ctx, username, email, password)
	if apiclient.IsKind(err, apiclient.KindConflict) {
		return errors.Join(ErrDuplicateAccount, err)
	}
	return err
}

func (s *AuthService) Logout(sid string) error {
	return s.Sessions.Logout(sid)
}
