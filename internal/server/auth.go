package server

import (
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	obscontext "github.com/smallbiznis/seometer/internal/observability/context"
	"github.com/smallbiznis/seometer/internal/usercontext"
	"go.uber.org/zap"
)

// Claims are issued by the dashboard's identity service. The subject is the user id.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 bearer token for userID.
func IssueToken(secret, issuer, userID, role string, ttl time.Duration, now time.Time) (string, error) {
	claims := Claims{
		Role: strings.ToLower(strings.TrimSpace(role)),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strings.TrimSpace(userID),
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// AuthRequired authenticates the bearer token and stores the user id and role on the request context.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := s.parseBearer(c.GetHeader("Authorization"))
		if err != nil {
			s.log.Debug("bearer rejected", zap.Error(err))
			AbortWithError(c, ErrUnauthorized)
			return
		}

		userID := strings.TrimSpace(claims.Subject)
		ctx := usercontext.WithUserID(c.Request.Context(), userID)
		ctx = usercontext.WithRole(ctx, claims.Role)
		ctx = obscontext.WithUserID(ctx, userID)
		c.Request = c.Request.WithContext(ctx)
		c.Set(contextUserIDKey, userID)
		c.Next()
	}
}

func (s *Server) parseBearer(header string) (*Claims, error) {
	secret := s.cfg.AuthJWTSecret
	if secret == "" {
		return nil, errors.New("jwt secret not configured")
	}

	scheme, raw, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(raw) == "" {
		return nil, errors.New("missing bearer token")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer := s.cfg.AuthJWTIssuer; issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(strings.TrimSpace(raw), claims, func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !token.Valid || strings.TrimSpace(claims.Subject) == "" {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

func userIDFromRequest(c *gin.Context) (string, bool) {
	userID, ok := usercontext.UserIDFromContext(c.Request.Context())
	if !ok || strings.TrimSpace(userID) == "" {
		return "", false
	}
	return userID, true
}
