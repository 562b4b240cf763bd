package services

import (
	"fmt"
	"moonshop/auth"
	"moonshop/domain/account"
	"moonshop/domain/chat"
	"moonshop/errors"
	"moonshop/repositories"
	"strings"
)

type IAuthService interface {
	Signup(req auth.SignupRequest) (account.User, string, error)
	Login(req auth.LoginRequest) (account.User, string, error)
	GetUser(id chat.UserID) (account.User, error)
	UpdateProfile(id chat.UserID, req auth.UpdateProfileRequest) (account.User, error)
}

type AuthService struct {
	userRepository repositories.IUserRepository
	tokens         *auth.TokenManager
}

func NewAuthService(repo repositories.IUserRepository, tokens *auth.TokenManager) *AuthService {
	return &AuthService{userRepository: repo, tokens: tokens}
}

// Signup validates, hashes and stores a new account then issues its first token.
func (s *AuthService) Signup(req auth.SignupRequest) (account.User, string, error) {
	// Validation runs before any expensive hashing
	if err := auth.ValidateSignup(req); err != nil {
		return account.User{}, "", err
	}

	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		return account.User{}, "", fmt.Errorf("hashing failed: %w", err)
	}

	role := account.Role(req.Role)
	if role == "" {
		role = account.RoleBuyer
	}
	name := strings.TrimSpace(req.Name)
	user, err := s.userRepository.CreateUser(account.User{
		Name:         name,
		Email:        req.Email,
		PasswordHash: hashedPassword,
		Role:         role,
		Avatar:       account.DefaultAvatar(name),
	})
	if err != nil {
		return account.User{}, "", err
	}

	token, err := s.tokens.Generate(user)
	if err != nil {
		return account.User{}, "", err
	}
	return user, token, nil
}

func (s *AuthService) Login(req auth.LoginRequest) (account.User, string, error) {
	if err := auth.ValidateLogin(req); err != nil {
		return account.User{}, "", err
	}

	user, err := s.userRepository.GetUserByEmail(req.Email)
	if err != nil {
		// Same answer for unknown email and wrong password
		return account.User{}, "", errors.ErrInvalidCredentials
	}

	match, err := auth.ComparePassword(req.Password, user.PasswordHash)
	if err != nil || !match {
		return account.User{}, "", errors.ErrInvalidCredentials
	}

	token, err := s.tokens.Generate(user)
	if err != nil {
		return account.User{}, "", err
	}
	return user, token, nil
}

func (s *AuthService) GetUser(id chat.UserID) (account.User, error) {
	return s.userRepository.GetUserByID(id)
}

// UpdateProfile changes name, email, avatar and optionally the password.
func (s *AuthService) UpdateProfile(id chat.UserID, req auth.UpdateProfileRequest) (account.User, error) {
	if err := auth.ValidateUpdateProfile(req); err != nil {
		return account.User{}, err
	}

	update := account.ProfileUpdate{Name: req.Name, Email: req.Email, Avatar: req.Avatar}
	if req.Password != "" {
		hashedPassword, err := auth.HashPassword(req.Password)
		if err != nil {
			return account.User{}, fmt.Errorf("hashing failed: %w", err)
		}
		update.PasswordHash = hashedPassword
	}
	return s.userRepository.UpdateProfile(id, update)
}
