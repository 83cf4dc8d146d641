package handlers

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/desietsy/desietsy-backend-go/middleware"
	"github.com/desietsy/desietsy-backend-go/models"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type caller struct {
	id   primitive.ObjectID
	role models.Role
}

var anonymous = caller{}

// call runs h against a request carrying body as JSON. Path parameters are
// given as name/value pairs.
func call(t *testing.T, h echo.HandlerFunc, method, body string, who caller, params ...string) *httptest.ResponseRecorder {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var names, values []string
	for i := 0; i+1 < len(params); i += 2 {
		names = append(names, params[i])
		values = append(values, params[i+1])
	}
	c.SetParamNames(names...)
	c.SetParamValues(values...)

	if !who.id.IsZero() {
		c.Set(middleware.UserIDKey, who.id)
		c.Set(middleware.RoleKey, who.role)
	}

	require.NoError(t, h(c))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func newCaller(role models.Role) caller {
	return caller{id: primitive.NewObjectID(), role: role}
}
