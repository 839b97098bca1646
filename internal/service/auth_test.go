package service

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artmarket/marketplace-api/internal/dto"
	"github.com/artmarket/marketplace-api/internal/model"
)

type mockUserRepo struct {
	users map[uuid.UUID]*model.User
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[uuid.UUID]*model.User)}
}

func (m *mockUserRepo) Create(_ context.Context, user *model.User) error {
	user.ID = uuid.New()
	m.users[user.ID] = user
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	return m.users[id], nil
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func TestAuthService_Register(t *testing.T) {
	svc := NewAuthService(newMockUserRepo(), "test-secret", time.Hour)

	resp, err := svc.Register(context.Background(), dto.RegisterRequest{
		Email: "ines@example.com", Password: "correct-horse", FullName: "Ines Duarte",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, model.RoleBuyer, resp.User.Role, "role defaults to buyer")

	token, err := jwt.Parse(resp.Token, func(*jwt.Token) (interface{}, error) {
		return []byte("test-secret"), nil
	})
	require.NoError(t, err)
	claims := token.Claims.(jwt.MapClaims)
	assert.Equal(t, resp.User.ID.String(), claims["sub"])
	assert.Equal(t, model.RoleBuyer, claims["role"])
}

func TestAuthService_Register_SellerRole(t *testing.T) {
	svc := NewAuthService(newMockUserRepo(), "test-secret", time.Hour)
	resp, err := svc.Register(context.Background(), dto.RegisterRequest{
		Email: "atelier@example.com", Password: "correct-horse", FullName: "Atelier Nord", Role: model.RoleSeller,
	})
	require.NoError(t, err)
	assert.Equal(t, model.RoleSeller, resp.User.Role)
}

func TestAuthService_Register_DuplicateEmail(t *testing.T) {
	svc := NewAuthService(newMockUserRepo(), "test-secret", time.Hour)
	req := dto.RegisterRequest{Email: "ines@example.com", Password: "correct-horse", FullName: "Ines Duarte"}

	_, err := svc.Register(context.Background(), req)
	require.NoError(t, err)
	_, err = svc.Register(context.Background(), req)
	assert.ErrorIs(t, err, ErrUserAlreadyExists)
}

func TestAuthService_Login(t *testing.T) {
	svc := NewAuthService(newMockUserRepo(), "test-secret", time.Hour)
	_, err := svc.Register(context.Background(), dto.RegisterRequest{
		Email: "ines@example.com", Password: "correct-horse", FullName: "Ines Duarte",
	})
	require.NoError(t, err)

	resp, err := svc.Login(context.Background(), dto.LoginRequest{Email: "ines@example.com", Password: "correct-horse"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)

	_, err = svc.Login(context.Background(), dto.LoginRequest{Email: "ines@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(context.Background(), dto.LoginRequest{Email: "nobody@example.com", Password: "correct-horse"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}
