package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/Sonrial/family-budget/internal/core"
	"github.com/Sonrial/family-budget/internal/log"
)

const userKey = "auth.user"

var ErrMissingToken = errors.New("missing bearer token")

// Claims are the token claims issued by the identity provider. The subject
// is the household member id.
type Claims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 tokens signed with a shared secret.
type Verifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer, now: time.Now}
}

func (v *Verifier) Parse(tokenStr string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("%w: empty subject", jwt.ErrTokenInvalidClaims)
	}
	return claims, nil
}

// Issue signs a token for userID, for local development and tests.
func (v *Verifier) Issue(userID core.UserID, email, name string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	now := v.now()
	claims := &Claims{
		Email: email,
		Name:  name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(userID),
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// ProfileRecorder stores the identity of authenticated members, so that
// transfers can name and reach them.
type ProfileRecorder interface {
	UpsertProfile(ctx context.Context, p core.Profile) error
}

// Middleware authenticates the bearer token and records the caller's
// profile the first time it is seen with given claims.
type Middleware struct {
	verifier *Verifier
	profiles ProfileRecorder
	seen     sync.Map // user id -> core.Profile last recorded
}

func NewMiddleware(v *Verifier, profiles ProfileRecorder) *Middleware {
	return &Middleware{verifier: v, profiles: profiles}
}

func (m *Middleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		logger := log.FromContext(ctx).WithComponent(log.ComponentAuth)

		claims, err := m.authenticate(c.GetHeader("Authorization"))
		if err != nil {
			logger.WarnContext(ctx, "Rejected request", log.FieldError, err, log.FieldErrorType, log.ErrorTypeAuth)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		profile := core.Profile{ID: core.UserID(claims.Subject), Email: claims.Email, DisplayName: claims.Name}
		if err := m.record(ctx, profile); err != nil {
			logger.ErrorContext(ctx, "Failed to record profile", log.FieldUserID, profile.ID, log.FieldError, err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		c.Set(userKey, profile.ID)
		reqLogger := log.FromContext(ctx).With(log.FieldUserID, string(profile.ID))
		c.Request = c.Request.WithContext(log.NewContext(ctx, reqLogger))
		c.Next()
	}
}

func (m *Middleware) authenticate(header string) (*Claims, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return nil, ErrMissingToken
	}
	return m.verifier.Parse(strings.TrimSpace(token))
}

func (m *Middleware) record(ctx context.Context, p core.Profile) error {
	if prev, ok := m.seen.Load(p.ID); ok && prev.(core.Profile) == p {
		return nil
	}
	if err := m.profiles.UpsertProfile(ctx, p); err != nil {
		return err
	}
	m.seen.Store(p.ID, p)
	return nil
}

// UserID returns the authenticated member of the request.
func UserID(c *gin.Context) (core.UserID, bool) {
	v, ok := c.Get(userKey)
	if !ok {
		return "", false
	}
	id, ok := v.(core.UserID)
	return id, ok && id != ""
}
