package jwttoken

import (
	"errors"
	"maps"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	dErrors "idverify/pkg/domain-errors"
)

// Claims is the validated view of a bearer token.
type Claims struct {
	UserID   string
	ClientID string
	// Raw holds every claim in the token, registered ones included.
	Raw map[string]any
}

// JWTService issues and validates HS256 access tokens. It stands in for the
// OAuth layer that normally issues tokens to verification callers.
type JWTService struct {
	signingKey []byte
	issuer     string
	audience   string
	now        func() time.Time
}

func NewJWTService(signingKey string, issuer string, audience string) *JWTService {
	return &JWTService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
		now:        time.Now,
	}
}

// GenerateAccessToken signs a token for userID. extra claims are copied in
// first so they can never shadow sub, client_id or the registered claims.
func (s *JWTService) GenerateAccessToken(
	userID string,
	clientID string,
	extra map[string]any,
	expiresIn time.Duration) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{}
	maps.Copy(claims, extra)
	claims["sub"] = userID
	claims["client_id"] = clientID
	claims["iat"] = jwt.NewNumericDate(now)
	claims["exp"] = jwt.NewNumericDate(now.Add(expiresIn))
	claims["jti"] = uuid.NewString()
	if s.issuer != "" {
		claims["iss"] = s.issuer
	}
	if s.audience != "" {
		claims["aud"] = []string{s.audience}
	}

	signedToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return "", err
	}
	return signedToken, nil
}

func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	if s.audience != "" {
		opts = append(opts, jwt.WithAudience(s.audience))
	}

	parsed, err := jwt.ParseWithClaims(tokenString, jwt.MapClaims{}, func(token *jwt.Token) (any, error) {
		return s.signingKey, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	if !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	mc, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	sub, err := mc.GetSubject()
	if err != nil || sub == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "token has no subject")
	}
	clientID, _ := mc["client_id"].(string)

	return &Claims{
		UserID:   sub,
		ClientID: clientID,
		Raw:      map[string]any(mc),
	}, nil
}
