package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfchat/internal/model"
	"pdfchat/internal/pkg/jwtutil"
)

type fakeUsers struct {
	byID map[uint]*model.User
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byID: make(map[uint]*model.User)}
}

func (f *fakeUsers) Create(_ context.Context, user *model.User) error {
	user.ID = uint(len(f.byID) + 1)
	f.byID[user.ID] = user
	return nil
}

func (f *fakeUsers) GetByUsername(_ context.Context, username string) (*model.User, error) {
	for _, u := range f.byID {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range f.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (f *fakeUsers) GetByID(_ context.Context, id uint) (*model.User, error) {
	return f.byID[id], nil
}

func TestRegisterThenLogin(t *testing.T) {
	ctx := context.Background()
	svc := NewAuthService(newFakeUsers(), "secret", time.Hour)

	reg, err := svc.Register(ctx, RegisterInput{Username: "ada", Email: "Ada@Example.com", Password: "correct horse"})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", reg.User.Email)

	claims, err := jwtutil.ParseToken("secret", reg.Token)
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, claims.UserID)

	login, err := svc.Login(ctx, LoginInput{Username: "ada", Password: "correct horse"})
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, login.User.ID)

	_, err = svc.Login(ctx, LoginInput{Username: "ada", Password: "wrong password"})
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestRegisterRejectsDuplicatesAndWeakInput(t *testing.T) {
	ctx := context.Background()
	svc := NewAuthService(newFakeUsers(), "secret", time.Hour)
	_, err := svc.Register(ctx, RegisterInput{Username: "ada", Email: "ada@example.com", Password: "longenough"})
	require.NoError(t, err)

	_, err = svc.Register(ctx, RegisterInput{Username: "ada", Email: "other@example.com", Password: "longenough"})
	assert.ErrorIs(t, err, ErrUsernameExists)
	_, err = svc.Register(ctx, RegisterInput{Username: "bob", Email: "ada@example.com", Password: "longenough"})
	assert.ErrorIs(t, err, ErrEmailExists)
	_, err = svc.Register(ctx, RegisterInput{Username: "bob", Email: "bob@example.com", Password: "short"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.GetUserByID(ctx, 0)
	assert.ErrorIs(t, err, ErrUnauthorized)
}
