package services

import (
	"fmt"
	"log"
	"math/rand"
	"time"

	"duka/internal/models"
	"duka/internal/repositories"
	"duka/pkg/rabbitmq"

	"github.com/dgrijalva/jwt-go"
	"golang.org/x/crypto/bcrypt"
)

// AuthService handles business logic for authentication and authorization.
type AuthService struct {
	userRepo   repositories.UserRepository
	events     EventPublisher
	jwtSecret  []byte
	tokenDurat time.Duration // Duration for which JWT is valid
}

// NewAuthService creates a new AuthService.
func NewAuthService(userRepo repositories.UserRepository, events EventPublisher, jwtSecret string) *AuthService {
	return &AuthService{
		userRepo:   userRepo,
		events:     events,
		jwtSecret:  []byte(jwtSecret),
		tokenDurat: 24 * time.Hour, // Token valid for 24 hours
	}
}

// RegisterUser registers a new user, hashes their password, stores a
// verification code and dispatches the verification email through the
// notification queue. A failed dispatch is logged but never fails the
// registration; the code stays on the record and can be re-sent.
func (s *AuthService) RegisterUser(user *models.User) error {
	if existingUser, err := s.userRepo.GetByUsername(user.Username); err == nil && existingUser != nil {
		return fmt.Errorf("username '%s' already taken", user.Username)
	}
	if existingUser, err := s.userRepo.GetByEmail(user.Email); err == nil && existingUser != nil {
		return fmt.Errorf("email '%s' already registered", user.Email)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(user.Password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	user.Password = string(hashedPassword) // Store the hashed password

	if user.Role == "" {
		user.Role = models.RoleCustomer
	}
	user.Verified = false
	user.VerificationCode = fmt.Sprintf("%06d", rand.Intn(1000000))

	if err := s.userRepo.Create(user); err != nil {
		return fmt.Errorf("failed to register user: %w", err)
	}

	if s.events != nil {
		err := s.events.PublishEvent(rabbitmq.NotificationEventsQueue, "user.verification", map[string]interface{}{
			"email": user.Email,
			"code":  user.VerificationCode,
		})
		if err != nil {
			log.Printf("Warning: failed to dispatch verification email for %s: %v", user.Email, err)
		}
	}

	return nil
}

// VerifyEmail marks a user verified when the supplied code matches.
func (s *AuthService) VerifyEmail(email, code string) error {
	user, err := s.userRepo.GetByEmail(email)
	if err != nil {
		return fmt.Errorf("invalid verification request")
	}
	if user.Verified {
		return nil
	}
	if user.VerificationCode == "" || user.VerificationCode != code {
		return fmt.Errorf("invalid verification code")
	}

	user.Verified = true
	user.VerificationCode = ""
	if err := s.userRepo.Update(user); err != nil {
		return fmt.Errorf("failed to verify user: %w", err)
	}
	return nil
}

// LoginUser authenticates a verified user and returns a JWT token.
func (s *AuthService) LoginUser(username, password string) (string, error) {
	user, err := s.userRepo.GetByUsername(username)
	if err != nil {
		// It's good practice not to reveal if the username exists or not for security
		return "", fmt.Errorf("invalid credentials")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return "", fmt.Errorf("invalid credentials")
	}

	if !user.Verified {
		return "", fmt.Errorf("email not verified")
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  user.ID,
		"username": user.Username,
		"role":     user.Role,
		"exp":      time.Now().Add(s.tokenDurat).Unix(), // Token expiration time
		"iat":      time.Now().Unix(),                   // Issued at time
	})

	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	return tokenString, nil
}

// ValidateToken parses and validates a JWT token, returning the claims if valid.
func (s *AuthService) ValidateToken(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Validate the alg is what we expect:
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})

	if err != nil {
		log.Printf("Token validation error: %v", err)
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, fmt.Errorf("invalid token")
}
