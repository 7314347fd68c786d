package httputil

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	cases := []struct {
		name string
		url  string
		v    interface{}
		want string
	}{
		{"plain", "/x", map[string]int{"a": 1}, "{\"a\":1}\n"},
		{"pretty", "/x?pretty=1", map[string]int{"a": 1}, "{\n  \"a\": 1\n}\n"},
		{"error", "/x", errors.New("boom"), "{\"error\":\"boom\"}\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteJSON(w, httptest.NewRequest(http.MethodGet, tc.url, nil), http.StatusTeapot, tc.v)
			assert.Equal(t, http.StatusTeapot, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			assert.Equal(t, tc.want, w.Body.String())
		})
	}
}

func TestBoolFromQuery(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/x?a=on&b=0&c=maybe", nil)

	v, err := BoolFromQuery(r, "a", false)
	require.NoError(t, err)
	assert.True(t, v)

	v, err = BoolFromQuery(r, "b", true)
	require.NoError(t, err)
	assert.False(t, v)

	v, err = BoolFromQuery(r, "missing", true)
	require.NoError(t, err)
	assert.True(t, v)

	_, err = BoolFromQuery(r, "c", false)
	assert.Error(t, err)
}

func TestIntFromParam(t *testing.T) {
	var got []int
	var errs int
	mux := chi.NewRouter()
	mux.Get("/n/{id}", func(w http.ResponseWriter, r *http.Request) {
		v, err := IntFromParam(r, "id")
		if err != nil {
			errs++
			return
		}
		got = append(got, v)
	})
	for _, path := range []string{"/n/3", "/n/0", "/n/-1", "/n/abc"} {
		mux.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}
	assert.Equal(t, []int{3, 0}, got)
	assert.Equal(t, 2, errs)
}
