package airtable

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadAttachment(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody uploadRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	u := newAttachmentUploader("secret-key", "appBase1")
	u.baseURL = srv.URL

	err := u.Upload(context.Background(), "rec001", fieldDocument, "25079001000101.pdf", []byte("%PDF-1.4"))
	require.NoError(t, err)

	assert.Equal(t, "/v0/appBase1/rec001/Label Document/uploadAttachment", gotPath)
	assert.Equal(t, "Bearer secret-key", gotAuth)
	assert.Equal(t, "application/pdf", gotBody.ContentType)
	assert.Equal(t, "25079001000101.pdf", gotBody.Filename)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("%PDF-1.4")), gotBody.File)
}

func TestUploadAttachmentErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"INVALID_ATTACHMENT"}`, http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	u := newAttachmentUploader("secret-key", "appBase1")
	u.baseURL = srv.URL

	err := u.Upload(context.Background(), "rec001", fieldDocument, "x.pdf", []byte("%PDF-1.4"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
}
