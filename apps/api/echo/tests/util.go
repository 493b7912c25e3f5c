package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	. "github.com/rahulsahu-12/nexus2/apps/api/echo"
	"github.com/rahulsahu-12/nexus2/core"
	"github.com/rahulsahu-12/nexus2/core/attendance"
	"github.com/rahulsahu-12/nexus2/core/user"
	"github.com/rahulsahu-12/nexus2/services/live"
	"github.com/rahulsahu-12/nexus2/storage/database/sqlxrepos"
	"github.com/rahulsahu-12/nexus2/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type fixture struct {
	conf     *core.Config
	server   *Server
	hub      *live.Hub
	sessions attendance.SessionRepository
	records  attendance.RecordRepository
}

func setup(t *testing.T) fixture {
	conf := testutil.NewConfig(t)
	logger := testutil.NewLogger()

	// set up DB & repos
	db := testutil.PrepareDB(t, conf)
	f := fixture{
		conf:     conf,
		hub:      live.NewHub(conf, logger),
		sessions: sqlxrepos.NewSessionRepository(db),
		records:  sqlxrepos.NewRecordRepository(db),
	}

	// set up services
	attendanceSvc := attendance.NewService(db, f.sessions, f.records, f.hub, conf)

	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)

	// set up server
	f.server = NewServer(ServerDeps{
		Conf:          conf,
		Logger:        logger,
		AttendanceSvc: attendanceSvc,
		Hub:           f.hub,
		Validate:      validate,
		Translator:    translator,
	})
	t.Cleanup(func() { _ = f.server.Close() })
	return f
}

type httpErr struct {
	Error string `json:"error"`
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

func getToken(t *testing.T, conf *core.Config, id user.Identity) string {
	token, err := GenerateToken(conf, NewClaims(conf, id))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
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
	if _, ok := j1.([]interface{}); !ok {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
