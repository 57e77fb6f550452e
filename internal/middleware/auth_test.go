package middleware

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

const testSecret = "test-secret"

func sign(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func run(token string) (*fasthttp.RequestCtx, string) {
	var seen string
	handler := JWTAuth(testSecret, "proposals", nil)(func(ctx *fasthttp.RequestCtx) {
		seen = string(ctx.Request.Header.Peek(ActorHeader))
		ctx.SetStatusCode(fasthttp.StatusOK)
	})
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.Set(ActorHeader, "spoofed")
	if token != "" {
		ctx.Request.Header.Set("Authorization", "Bearer "+token)
	}
	handler(ctx)
	return ctx, seen
}

func TestJWTAuth_SetsActorFromSubject(t *testing.T) {
	token := sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{
		"sub": "rep-42",
		"iss": "proposals",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	ctx, actor := run(token)

	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Equal(t, "rep-42", actor)
}

func TestJWTAuth_FallsBackToUserIDClaim(t *testing.T) {
	token := sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{
		"user_id": "rep-7",
		"iss":     "proposals",
	})

	_, actor := run(token)

	assert.Equal(t, "rep-7", actor)
}

func TestJWTAuth_Rejects(t *testing.T) {
	cases := map[string]string{
		"missing token": "",
		"wrong secret": sign(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{
			"sub": "rep-1", "iss": "proposals",
		}),
		"wrong issuer": sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{
			"sub": "rep-1", "iss": "someone-else",
		}),
		"expired": sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{
			"sub": "rep-1", "iss": "proposals", "exp": time.Now().Add(-time.Minute).Unix(),
		}),
		"no actor": sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{
			"iss": "proposals",
		}),
		"unsigned": sign(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, jwt.MapClaims{
			"sub": "rep-1", "iss": "proposals",
		}),
	}

	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			ctx, actor := run(token)
			assert.Equal(t, fasthttp.StatusUnauthorized, ctx.Response.StatusCode())
			assert.Empty(t, actor)
		})
	}
}
