package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	echoapi "github.com/eduavalia/backend/apps/api/echo"
	"github.com/eduavalia/backend/core"
	"github.com/eduavalia/backend/core/academic"
	"github.com/eduavalia/backend/core/enrollment"
	"github.com/eduavalia/backend/core/evaluation"
	"github.com/eduavalia/backend/core/stats"
	emailsvc "github.com/eduavalia/backend/services/email"
	inmemdb "github.com/eduavalia/backend/storage/database/inmem"
	testutil "github.com/eduavalia/backend/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

// testApp wires a full API server over fresh in-memory repositories.
type testApp struct {
	app  echoapi.Server
	conf *core.Config

	academicRepo   *inmemdb.AcademicRepository
	enrollmentRepo *inmemdb.EnrollmentRepository
	evalRepo       *inmemdb.EvaluationRepository
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	conf := testutil.NewTestConfig(t)
	logger := testutil.Logger{T: t}
	core.ParseEmailTemplates(conf, logger)

	db := inmemdb.Open()
	a := &testApp{
		conf:           conf,
		academicRepo:   inmemdb.NewAcademicRepository(db),
		enrollmentRepo: inmemdb.NewEnrollmentRepository(db),
		evalRepo:       inmemdb.NewEvaluationRepository(db),
	}

	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	academicSvc := academic.NewService(a.academicRepo, mailSvc, conf)
	enrollmentSvc := enrollment.NewService(a.enrollmentRepo, a.academicRepo)
	evaluationSvc := evaluation.NewService(a.evalRepo, enrollmentSvc, a.academicRepo, mailSvc, conf)
	statsSvc := stats.NewService(inmemdb.NewStatsRepository(db), a.academicRepo)

	if err := evaluationSvc.Setup(context.Background()); err != nil {
		t.Fatalf("Setup() failed: %v", err)
	}

	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)

	a.app = echoapi.NewServer(echoapi.ServerDeps{
		Conf:          conf,
		Logger:        logger,
		AcademicSvc:   academicSvc,
		EnrollmentSvc: enrollmentSvc,
		EvaluationSvc: evaluationSvc,
		StatsSvc:      statsSvc,
		Validate:      validate,
		Translator:    translator,
	})
	return a
}

func (a *testApp) getToken(t *testing.T, p academic.Person) string {
	t.Helper()
	claims := echoapi.GetPersonClaims(a.conf, p)
	token, err := echoapi.GenerateToken(a.conf, claims)
	if err != nil {
		t.Fatalf("getToken(): %v", err)
	}
	return token
}

type httpErr struct {
	Success bool        `json:"success"`
	Error   interface{} `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func marshalObj(t *testing.T, obj interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshalObj(): %v", err)
	}
	return data
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
