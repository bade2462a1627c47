package echoapi

import (
	"context"
	"strconv"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/eduavalia/backend/core"
	"github.com/eduavalia/backend/core/academic"
)

const (
	contextTokenKey  = "personToken"
	contextPersonKey = "person"
)

func newJWTConfig(conf *core.Config) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    []byte(conf.SecretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    contextTokenKey,
		Claims:        new(Claims),
	}
}

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	OrigIssuedAt int64  `json:"oriat,omitempty"`
	Name         string `json:"name,omitempty"`
	Email        string `json:"email,omitempty"`
	Role         string `json:"role,omitempty"`
}

func (c Claims) PersonID() int {
	id, _ := strconv.Atoi(c.Subject)
	return id
}

func (c Claims) IsStudent() bool   { return c.Role == academic.RoleStudent }
func (c Claims) IsProfessor() bool { return c.Role == academic.RoleProfessor }
func (c Claims) IsAdmin() bool     { return c.Role == academic.RoleAdmin }

func GetPersonClaims(conf *core.Config, p academic.Person, origIat ...int64) *Claims {
	now := time.Now()
	nownix := now.Unix()

	var oriat int64
	if len(origIat) > 0 {
		oriat = origIat[0]
	} else {
		oriat = nownix
	}

	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Id:        uuid.New().String(),
			Issuer:    conf.AppName,
			Subject:   strconv.Itoa(p.ID),
			Audience:  "EduAvalia",
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  nownix,
		},
		OrigIssuedAt: oriat,
		Name:         p.Name,
		Email:        p.Email,
		Role:         p.Role,
	}
}

func (s *server) authenticate(ctx context.Context, email, pwd string) (*Claims, error) {
	p, err := s.deps.AcademicSvc.GetPersonByEmail(ctx, email)
	if err != nil {
		if errors.Cause(err) == academic.ErrPersonNotFound {
			return nil, errAuthenticationFailed
		}
		return nil, errors.Wrap(err, "finding person by email")
	}
	if err = p.CheckPassword(pwd); err != nil {
		return nil, errAuthenticationFailed
	}
	if !p.IsActive {
		return nil, errAccountDeactivated
	}
	p, err = s.deps.AcademicSvc.SetLastLogin(ctx, p)
	if err != nil {
		return nil, errors.Wrap(err, "setting lastLogin")
	}
	return GetPersonClaims(s.deps.Conf, p), nil
}

// GenerateToken generates a signed JWT token string representing the Claims.
func GenerateToken(conf *core.Config, claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	ss, err := token.SignedString([]byte(conf.SecretKey))
	if err != nil {
		return "", errors.New("signing token")
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

func (s *server) getContextPerson(ctx echo.Context, clms ...Claims) (academic.Person, error) {
	if p, ok := ctx.Get(contextPersonKey).(academic.Person); ok {
		return p, nil
	}

	var claims Claims
	var err error
	if len(clms) > 0 {
		claims = clms[0]
	} else {
		claims, err = getContextClaims(ctx)
		if err != nil {
			return academic.Person{}, errors.Wrap(err, "getting context claims")
		}
	}

	p, err := s.deps.AcademicSvc.GetPersonByID(ctx.Request().Context(), claims.PersonID())
	if err != nil {
		return academic.Person{}, errors.Wrap(err, "finding person by ID")
	}
	ctx.Set(contextPersonKey, p)
	return p, nil
}

func (s *server) refreshToken(ctx echo.Context) (string, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return "", errors.Wrap(err, "getting context claims")
	}

	p, err := s.getContextPerson(ctx, claims)
	if err != nil {
		return "", errors.Wrap(err, "getting context person")
	}

	// check the account is still active
	if !p.IsActive {
		return "", errAccountDeactivated
	}

	// check the refresh window has not closed
	expTime := time.Unix(claims.OrigIssuedAt, 0).Add(s.deps.Conf.Server.JWTRefreshExpirationDelta)
	if time.Now().After(expTime) {
		return "", errRefreshExpired
	}

	newClaims := GetPersonClaims(s.deps.Conf, p, claims.OrigIssuedAt)
	token, err := GenerateToken(s.deps.Conf, newClaims)
	return token, errors.Wrap(err, "generating token")
}
