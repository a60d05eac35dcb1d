package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/workshoplabs/backend-garage/internal/auth"
	"github.com/workshoplabs/backend-garage/internal/common"
)

type stubAccounts struct {
	account auth.Account
}

func (s stubAccounts) AccountByEmail(_ context.Context, email string) (auth.Account, error) {
	if email != s.account.Email {
		return auth.Account{}, auth.ErrAccountNotFound
	}
	return s.account, nil
}

func newService(t *testing.T) (*auth.Service, auth.Account) {
	t.Helper()
	hash, err := auth.HashPassword("wrench-and-roll")
	require.NoError(t, err)
	account := auth.Account{
		ID:           "staff-1",
		Email:        "mia@garage.test",
		Name:         "Mia",
		Role:         "admin",
		PasswordHash: hash,
	}
	svc, err := auth.NewService(auth.Config{
		Store:          stubAccounts{account: account},
		Secret:         "test-secret",
		AccessTokenTTL: time.Minute,
	})
	require.NoError(t, err)
	return svc, account
}

func TestLoginIssuesParsableToken(t *testing.T) {
	svc, account := newService(t)

	result, err := svc.Login(context.Background(), "Mia@Garage.Test", "wrench-and-roll")
	require.NoError(t, err)
	require.Equal(t, account.ID, result.UserID)
	require.NotEmpty(t, result.AccessToken)

	subject, err := svc.ParseAccessToken(result.AccessToken)
	require.NoError(t, err)
	require.Equal(t, account.ID, subject)
}

func TestLoginRejectsBadPassword(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Login(context.Background(), "mia@garage.test", "wrong")
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "UNAUTHORIZED", appErr.Code)
}

func TestLoginRejectsUnknownAccount(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Login(context.Background(), "nobody@garage.test", "wrench-and-roll")
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "UNAUTHORIZED", appErr.Code)
}

func TestParseRejectsGarbage(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.ParseAccessToken("not-a-token")
	require.Error(t, err)
}
