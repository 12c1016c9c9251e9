package httputil

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParam(t *testing.T) {
	t.Run("query value", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/preview/?format=pdf", nil)
		assert.Equal(t, "pdf", Param(r, "format", "image"))
	})

	t.Run("default when absent", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/preview/", nil)
		assert.Equal(t, "image", Param(r, "format", "image"))
	})

	t.Run("form wins over query", func(t *testing.T) {
		form := url.Values{"format": {"pdf"}}
		r := httptest.NewRequest("POST", "/preview/?format=image", strings.NewReader(form.Encode()))
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "pdf", Param(r, "format", "image"))
	})
}

func TestParamInt(t *testing.T) {
	r := httptest.NewRequest("GET", "/preview/?width=640", nil)

	v, err := ParamInt(r, "width", 320)
	require.NoError(t, err)
	assert.Equal(t, 640, v)

	v, err = ParamInt(r, "height", 240)
	require.NoError(t, err)
	assert.Equal(t, 240, v)

	r = httptest.NewRequest("GET", "/preview/?width=wide", nil)
	_, err = ParamInt(r, "width", 320)
	assert.Error(t, err)
}

func TestClampInt(t *testing.T) {
	assert.Equal(t, 800, ClampInt(1200, 800))
	assert.Equal(t, 640, ClampInt(640, 800))
	assert.Equal(t, 1200, ClampInt(1200, 0))
}

func TestPathVar(t *testing.T) {
	router := mux.NewRouter()
	var got string
	router.HandleFunc("/files/{name}", func(w http.ResponseWriter, r *http.Request) {
		v, err := PathVar(r, "name")
		require.NoError(t, err)
		got = v
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/files/report.pdf", nil))
	assert.Equal(t, "report.pdf", got)

	_, err := PathVar(httptest.NewRequest("GET", "/", nil), "name")
	assert.Error(t, err)
}

func TestRequestIDMiddleware(t *testing.T) {
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("generates an id", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
		assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	})

	t.Run("honors a supplied id", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("X-Request-ID", "given")
		handler.ServeHTTP(w, r)
		assert.Equal(t, "given", w.Header().Get("X-Request-ID"))
	})
}

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	handler := Chain(mw("outer"), mw("inner"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}

func TestMaxBytesMiddleware(t *testing.T) {
	handler := MaxBytesMiddleware(4)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			WriteBadRequest(w, "body too large")
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	r := httptest.NewRequest("POST", "/", strings.NewReader("a=1&b=2&c=3"))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
