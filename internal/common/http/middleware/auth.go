package middleware

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	pkgerrors "codearena/pkg/errors"
	"codearena/pkg/utils/contextkey"
	"codearena/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleAdmin       = "admin"
	RoleParticipant = "participant"
)

// Identity is the authenticated caller.
type Identity struct {
	UserID int64
	Role   string
}

// IsAdmin reports whether the caller holds the admin role.
func (i Identity) IsAdmin() bool {
	return strings.EqualFold(i.Role, RoleAdmin)
}

// TokenVerifier validates HS256 access tokens issued by the account service.
type TokenVerifier struct {
	secret []byte
	issuer string
}

func NewTokenVerifier(secret, issuer string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret), issuer: issuer}
}

type tokenClaims struct {
	Role      string `json:"role"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// Verify parses raw and returns the caller identity.
func (v *TokenVerifier) Verify(raw string) (Identity, error) {
	if raw == "" || len(v.secret) == 0 {
		return Identity{}, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	parsed, err := jwt.ParseWithClaims(raw, &tokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, pkgerrors.New(pkgerrors.TokenExpired)
		}
		return Identity{}, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok || !parsed.Valid {
		return Identity{}, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	if v.issuer != "" && claims.Issuer != v.issuer {
		return Identity{}, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	if claims.TokenType != "access" {
		return Identity{}, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return Identity{}, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	role := strings.ToLower(claims.Role)
	if role == "" {
		role = RoleParticipant
	}
	return Identity{UserID: userID, Role: role}, nil
}

// AuthMiddleware rejects requests without a valid bearer token. When roles
// is non-empty the caller must hold one of them.
func AuthMiddleware(verifier *TokenVerifier, roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearerToken(c.GetHeader("Authorization"))
		if token == "" {
			// Browsers cannot set headers on websocket upgrades.
			token = c.Query("access_token")
		}
		identity, err := verifier.Verify(token)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		if len(roles) > 0 && !hasRole(identity.Role, roles) {
			response.AbortWithErrorCode(c, pkgerrors.Forbidden, "insufficient role")
			return
		}

		c.Set(string(contextkey.UserID), identity.UserID)
		c.Set(string(contextkey.Role), identity.Role)
		ctx := context.WithValue(c.Request.Context(), contextkey.UserID, identity.UserID)
		ctx = context.WithValue(ctx, contextkey.Role, identity.Role)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// IdentityFrom returns the identity stored by AuthMiddleware.
func IdentityFrom(c *gin.Context) (Identity, bool) {
	rawID, ok := c.Get(string(contextkey.UserID))
	if !ok {
		return Identity{}, false
	}
	userID, ok := rawID.(int64)
	if !ok {
		return Identity{}, false
	}
	role, _ := c.Get(string(contextkey.Role))
	roleStr, _ := role.(string)
	return Identity{UserID: userID, Role: roleStr}, true
}

func extractBearerToken(authHeader string) string {
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func hasRole(role string, allowed []string) bool {
	for _, item := range allowed {
		if strings.EqualFold(role, item) {
			return true
		}
	}
	return false
}
