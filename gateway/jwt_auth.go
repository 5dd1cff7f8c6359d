package gateway

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"

	"github.com/adonese/storewatch/track_fields"
)

// JWTAuth provides an encapsulation for jwt auth on the dashboard API.
type JWTAuth struct {
	Config track_fields.Config
	Key    []byte
}

// Init picks the signing key: the configured one, or a random per-process
// key when none is set (tokens then die with the process, which is fine for
// a single-operator tracker).
func (j *JWTAuth) Init() {
	if j.Config.JWTKey != "" {
		j.Key = []byte(j.Config.JWTKey)
		return
	}
	key, _ := GenerateAPIKey()
	j.Key = []byte(key)
}

// TokenClaims is the dashboard claim set.
type TokenClaims struct {
	Username string `json:"username"`
	jwt.StandardClaims
}

// Default populates token claims with a 3h expiry.
func (t TokenClaims) Default(username string) jwt.Claims {
	n := time.Now().Unix()
	n3h := time.Now().Add(3 * time.Hour).Unix()
	t.StandardClaims = generateClaims(n, n3h, "storewatch")
	t.Username = username
	return t
}

func generateClaims(iat, eat int64, issuer string) jwt.StandardClaims {
	return jwt.StandardClaims{
		IssuedAt:  iat,
		ExpiresAt: eat,
		Issuer:    issuer,
	}
}

// GenerateJWT signs a token for the given user.
func (j *JWTAuth) GenerateJWT(username string) (string, error) {
	if j.Key == nil {
		return "", errors.New("empty jwt key")
	}
	claims := TokenClaims{}.Default(username)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.Key)
}

// GenerateJWTWithClaim signs a token carrying the provided claims.
func (j *JWTAuth) GenerateJWTWithClaim(username string, tk TokenClaims) (string, error) {
	tk.Username = username
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tk)
	return token.SignedString(j.Key)
}

// VerifyJWT validates the token signature and expiry and returns its claims.
func (j *JWTAuth) VerifyJWT(tokenString string) (*TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.Key, nil
	})
	if token == nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*TokenClaims); ok && token.Valid {
		return claims, nil
	} else {
		return claims, err
	}
}
