package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/eduavalia/backend/core"
	"github.com/eduavalia/backend/core/academic"
	"github.com/eduavalia/backend/core/enrollment"
	"github.com/eduavalia/backend/core/evaluation"
	"github.com/eduavalia/backend/core/stats"
)

type (
	ServerDeps struct {
		Conf          *core.Config
		Logger        core.Logger
		AcademicSvc   *academic.Service
		EnrollmentSvc *enrollment.Service
		EvaluationSvc *evaluation.Service
		StatsSvc      *stats.Service
		Validate      *validator.Validate
		Translator    ut.Translator
	}

	Server interface {
		http.Handler
		Start()
		Shutdown(context.Context) error
		Close() error
		Errors() <-chan error
		ShutdownSignal() <-chan os.Signal
	}

	server struct {
		deps       ServerDeps
		app        *echo.Echo
		jwtConfig  middleware.JWTConfig
		errCh      chan error
		shutdownCh chan os.Signal
	}
)

var _ Server = (*server)(nil)

func NewServer(deps ServerDeps) Server {
	s := &server{
		deps:       deps,
		app:        echo.New(),
		jwtConfig:  newJWTConfig(deps.Conf),
		errCh:      make(chan error, 1),
		shutdownCh: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdownCh, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *server) setup() {
	conf := s.deps.Conf

	s.app.Pre(middleware.RemoveTrailingSlash())
	if !conf.TestMode {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug
	s.app.HideBanner = true

	s.app.GET("/", home)

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(s.jwtConfig)

	registerAuthAPI(v1, jwt, s)
	registerAcademicAPI(v1, jwt, s)
	registerEvaluationAPI(v1, jwt, s)
	registerStatsAPI(v1, jwt, s)
}

// signalShutdown requests a graceful stop; the outer process drives the actual
// shutdown off ShutdownSignal.
func (s *server) signalShutdown() {
	s.shutdownCh <- syscall.SIGTERM
}

func (s *server) Start() {
	if err := s.app.Start(s.deps.Conf.Server.APIHost); err != nil && err != http.ErrServerClosed {
		s.errCh <- err
	}
}

func (s *server) Shutdown(ctx context.Context) error { return s.app.Shutdown(ctx) }
func (s *server) Close() error                       { return s.app.Close() }
func (s *server) Errors() <-chan error               { return s.errCh }
func (s *server) ShutdownSignal() <-chan os.Signal   { return s.shutdownCh }

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to EduAvalia API!")
}
