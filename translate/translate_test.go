package translate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/burrowbb/burrow/cfg"
)

func testClient(url string) *Client {
	return NewClient(cfg.TranslatorConfiguration{URL: url, TimeoutMS: 500})
}

func TestTranslateSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "hola mundo", r.URL.Query().Get("content"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"is_english": false, "translated_content": "hello world"}`))
	}))
	defer server.Close()

	isEnglish, translated := testClient(server.URL).Translate(context.Background(), "hola mundo")
	require.False(t, isEnglish)
	require.Equal(t, "hello world", translated)
}

func TestTranslateEnglishPassthrough(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"is_english": true, "translated_content": "already english"}`))
	}))
	defer server.Close()

	isEnglish, translated := testClient(server.URL).Translate(context.Background(), "already english")
	require.True(t, isEnglish)
	require.Equal(t, "already english", translated)
}

func TestTranslateFailsOpenOnOutage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // simulate an unreachable service

	isEnglish, translated := testClient(server.URL).Translate(context.Background(), "contenu original")
	require.True(t, isEnglish)
	require.Equal(t, "contenu original", translated)
}

func TestTranslateFailsOpenOnBadResponse(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"non-200": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		},
		"malformed json": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"is_english": `))
		},
		"missing fields": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{}`))
		},
	}
	for name, handler := range cases {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(handler)
			defer server.Close()

			isEnglish, translated := testClient(server.URL).Translate(context.Background(), "le contenu")
			require.True(t, isEnglish)
			require.Equal(t, "le contenu", translated)
		})
	}
}

func TestTranslateDisabledWithoutURL(t *testing.T) {
	isEnglish, translated := testClient("").Translate(context.Background(), "anything")
	require.True(t, isEnglish)
	require.Equal(t, "anything", translated)
}
