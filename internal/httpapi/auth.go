package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/MarkoPoloResearchLab/clubpoints/pkg/directory"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	contextKeyActor     = "actor"
	authorizationHeader = "Authorization"
	bearerScheme        = "Bearer"
)

// UserDirectory resolves the authenticated subject to a directory user.
type UserDirectory interface {
	GetUser(ctx context.Context, userID string) (directory.User, error)
}

type authenticator struct {
	signingKey []byte
	issuer     string
	users      UserDirectory
}

// middleware validates the bearer token and stores the resolved actor.
// The token subject is the user id; the role always comes from the directory.
func (auth *authenticator) middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		tokenString, ok := bearerToken(ctx.GetHeader(authorizationHeader))
		if !ok {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse(errorCodeUnauthorized, "authorization required"))
			return
		}
		claims := &jwt.RegisteredClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return auth.signingKey, nil
		}, jwt.WithIssuer(auth.issuer), jwt.WithExpirationRequired())
		if err != nil || !token.Valid || strings.TrimSpace(claims.Subject) == "" {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse(errorCodeUnauthorized, "invalid or expired token"))
			return
		}
		user, err := auth.users.GetUser(ctx.Request.Context(), strings.TrimSpace(claims.Subject))
		if err != nil {
			status, code := classifyError(err)
			if status == http.StatusNotFound {
				status, code = http.StatusUnauthorized, errorCodeUnauthorized
			}
			ctx.AbortWithStatusJSON(status, errorResponse(code, "unknown user"))
			return
		}
		actor, err := directory.NewActor(user.ID, user.Role)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse(errorCodeUnauthorized, err.Error()))
			return
		}
		ctx.Set(contextKeyActor, actor)
		ctx.Next()
	}
}

// requireRoles rejects actors whose role is not listed.
func requireRoles(roles ...directory.Role) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		actor, ok := currentActor(ctx)
		if !ok {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse(errorCodeUnauthorized, "missing actor"))
			return
		}
		for _, role := range roles {
			if actor.Role == role {
				ctx.Next()
				return
			}
		}
		ctx.AbortWithStatusJSON(http.StatusForbidden, errorResponse(errorCodeForbidden, fmt.Sprintf("role %s may not call this endpoint", actor.Role)))
	}
}

func currentActor(ctx *gin.Context) (directory.Actor, bool) {
	value, ok := ctx.Get(contextKeyActor)
	if !ok {
		return directory.Actor{}, false
	}
	actor, ok := value.(directory.Actor)
	return actor, ok
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || scheme != bearerScheme {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
