package echoapi

import (
	"strconv"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/rahulsahu-12/nexus2/core"
	"github.com/rahulsahu-12/nexus2/core/user"
)

const (
	contextTokenKey    = "userToken"
	contextIdentityKey = "identity"
)

// Claims represents the authorization claims transmitted via a JWT.
// Tokens are issued by the auth service; the identity they carry is trusted verbatim.
type Claims struct {
	jwt.StandardClaims
	Role   string `json:"role"`
	Branch string `json:"branch,omitempty"`
	Year   string `json:"year,omitempty"`
}

func newJWTConfig(conf *core.Config, tokenLookup ...string) middleware.JWTConfig {
	cfg := middleware.JWTConfig{
		SigningKey:    []byte(conf.SecretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    contextTokenKey,
		Claims:        new(Claims),
	}
	if len(tokenLookup) > 0 {
		cfg.TokenLookup = tokenLookup[0]
	}
	return cfg
}

// NewClaims builds the claims of an identity, valid for conf.Server.JWTExpirationDelta.
func NewClaims(conf *core.Config, id user.Identity) *Claims {
	now := time.Now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   id.IDString(),
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		Role:   id.Role,
		Branch: id.Branch,
		Year:   id.Year,
	}
}

// GenerateToken generates a signed JWT token string representing the Claims.
func GenerateToken(conf *core.Config, claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.GetSigningMethod(middleware.AlgorithmHS256), claims)

	ss, err := token.SignedString([]byte(conf.SecretKey))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

// getContextIdentity resolves the caller from the JWT claims, once per request.
func getContextIdentity(ctx echo.Context) (user.Identity, error) {
	if id, ok := ctx.Get(contextIdentityKey).(user.Identity); ok {
		return id, nil
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return user.Identity{}, err
	}
	uid, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || uid <= 0 {
		return user.Identity{}, errUnauthorized
	}

	id := user.NewIdentity(uid, claims.Role, claims.Branch, claims.Year)
	ctx.Set(contextIdentityKey, id)
	return id, nil
}
