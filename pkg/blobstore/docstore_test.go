package blobstore

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func tokenPayload(access, refresh string) map[string]any {
	return map[string]any{
		"tokens": map[string]string{
			"access_token":  access,
			"refresh_token": refresh,
		},
	}
}

func TestDocStoreLoginStoresTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/login", r.URL.Path)

		var creds map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
		assert.Equal(t, "svc@example.com", creds["email"])
		assert.Equal(t, "password", creds["type"])

		json.NewEncoder(w).Encode(tokenPayload("access-1", "refresh-1"))
	}))
	defer srv.Close()

	client := NewDocStoreClient(srv.URL, srv.URL, "svc@example.com", "secret", "42", zap.NewNop())
	require.NoError(t, client.Login(context.Background()))
	assert.Equal(t, "access-1", client.accessToken)
	assert.Equal(t, "refresh-1", client.refreshToken)
}

func TestDocStoreRetriesOnceAfterUnauthorized(t *testing.T) {
	var downloadCalls, refreshCalls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/login":
			json.NewEncoder(w).Encode(tokenPayload("stale", "refresh-1"))
		case "/refresh":
			refreshCalls.Add(1)
			assert.Equal(t, "Bearer refresh-1", r.Header.Get("Authorization"))
			json.NewEncoder(w).Encode(tokenPayload("fresh", "refresh-2"))
		case "/document/blob-1":
			downloadCalls.Add(1)
			if r.Header.Get("Authorization") != "Bearer fresh" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			json.NewEncoder(w).Encode(map[string]string{"url": "https://cdn.example.com/blob-1"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := NewDocStoreClient(srv.URL, srv.URL, "svc@example.com", "secret", "42", zap.NewNop())

	url, err := client.GetDownloadURL(context.Background(), "blob-1")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/blob-1", url)
	assert.Equal(t, int32(2), downloadCalls.Load(), "one failed attempt plus one retry")
	assert.Equal(t, int32(1), refreshCalls.Load())
}

func TestDocStoreUploadPostsToPresignedTarget(t *testing.T) {
	var uploadedField, uploadedFile string

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(tokenPayload("access-1", "refresh-1"))
	})
	mux.HandleFunc("/document", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "contract.pdf", body["filename"])
		assert.Equal(t, "application/pdf", body["mimetype"])

		json.NewEncoder(w).Encode(map[string]any{
			"url":    srv.URL + "/bucket",
			"fields": map[string]string{"key": "uploads/doc-7"},
			"id":     "doc-7",
		})
	})
	mux.HandleFunc("/bucket", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		uploadedField = r.FormValue("key")

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		uploadedFile = header.Filename
		w.WriteHeader(http.StatusNoContent)
	})

	client := NewDocStoreClient(srv.URL, srv.URL, "svc@example.com", "secret", "42", zap.NewNop())

	blobID, err := client.Upload(context.Background(), []byte("%PDF-1.7 test"), "contract.pdf")
	require.NoError(t, err)
	assert.Equal(t, "doc-7", blobID)
	assert.Equal(t, "uploads/doc-7", uploadedField)
	assert.Equal(t, "contract.pdf", uploadedFile)
}

func TestDocStoreDownloadFollowsResolvedURL(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(tokenPayload("access-1", "refresh-1"))
	})
	mux.HandleFunc("/document/doc-7", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("isAttachment"))
		assert.Equal(t, "true", r.URL.Query().Get("pdf"))
		json.NewEncoder(w).Encode(map[string]string{"url": srv.URL + "/cdn/doc-7"})
	})
	mux.HandleFunc("/cdn/doc-7", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "%PDF-1.7 signed")
	})

	client := NewDocStoreClient(srv.URL, srv.URL, "svc@example.com", "secret", "42", zap.NewNop())

	data, err := client.Download(context.Background(), "doc-7")
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7 signed", string(data))
}
