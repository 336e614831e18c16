package gdrive

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/blimp/internal/adapter/driven/adaptertest"
	"github.com/ericfisherdev/blimp/internal/adapter/driven/upstream"
	"github.com/ericfisherdev/blimp/internal/domain/model"
)

func newTestAdapter(t *testing.T, mux *http.ServeMux) *Adapter {
	t.Helper()
	return New(adaptertest.Provider(t, "Google Drive", mux, upstream.ProviderOptions{Account: "Google"}))
}

func TestListFiles(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /drive/v3/files", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "name contains 'report'", q.Get("q"))
		assert.Equal(t, "5", q.Get("pageSize"))
		assert.Equal(t, listFields, q.Get("fields"))
		assert.Equal(t, "Bearer "+adaptertest.Token, r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"nextPageToken":"p2","files":[
			{"id":"f1","name":"report.txt","mimeType":"text/plain","createdTime":"2026-01-01T00:00:00Z","modifiedTime":"2026-01-02T00:00:00Z"}
		]}`))
	})
	a := newTestAdapter(t, mux)

	res, err := adaptertest.Invoke(t, a, "listFiles", model.Payload{"query": "name contains 'report'", "page_size": 5})
	require.NoError(t, err)

	out := res.(ListResult)
	require.Equal(t, 1, out.Count)
	assert.Equal(t, "p2", out.NextPageToken)
	assert.Equal(t, File{
		ID:           "f1",
		Name:         "report.txt",
		MimeType:     "text/plain",
		CreatedTime:  "2026-01-01T00:00:00Z",
		ModifiedTime: "2026-01-02T00:00:00Z",
	}, out.Files[0])
}

func TestListFiles_Unauthorized(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /drive/v3/files", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	a := newTestAdapter(t, mux)

	_, err := adaptertest.Invoke(t, a, "listFiles", model.Payload{})
	require.Error(t, err)
	assert.Equal(t, "Google Drive access token is invalid or expired. Please reconnect your Google account.", err.Error())
}

func readUpload(t *testing.T, r *http.Request) (map[string]any, []byte) {
	t.Helper()
	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	require.NoError(t, err)
	require.Equal(t, "multipart/related", mediaType)

	mr := multipart.NewReader(r.Body, params["boundary"])
	metaPart, err := mr.NextPart()
	require.NoError(t, err)
	var meta map[string]any
	require.NoError(t, json.NewDecoder(metaPart).Decode(&meta))

	mediaPart, err := mr.NextPart()
	require.NoError(t, err)
	content, err := io.ReadAll(mediaPart)
	require.NoError(t, err)
	return meta, content
}

func TestUploadFile(t *testing.T) {
	tests := []struct {
		name        string
		payload     model.Payload
		wantContent string
	}{
		{
			name:        "text",
			payload:     model.Payload{"file_name": "notes.txt", "file_content": "hello drive"},
			wantContent: "hello drive",
		},
		{
			name: "base64",
			payload: model.Payload{
				"file_name":    "notes.txt",
				"file_content": base64.StdEncoding.EncodeToString([]byte("binary\x00ok")),
				"encoding":     "base64",
				"folder_id":    "folder-7",
			},
			wantContent: "binary\x00ok",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var meta map[string]any
			var content []byte
			mux := http.NewServeMux()
			mux.HandleFunc("POST /upload/drive/v3/files", func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "multipart", r.URL.Query().Get("uploadType"))
				meta, content = readUpload(t, r)
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"id":"new-1","name":"notes.txt","mimeType":"text/plain","webViewLink":"https://drive.google.com/file/d/new-1/view"}`))
			})
			a := newTestAdapter(t, mux)

			res, err := adaptertest.Invoke(t, a, "uploadFile", tt.payload)
			require.NoError(t, err)

			assert.Equal(t, UploadResult{
				ID:          "new-1",
				Name:        "notes.txt",
				MimeType:    "text/plain",
				WebViewLink: "https://drive.google.com/file/d/new-1/view",
			}, res)
			assert.Equal(t, "notes.txt", meta["name"])
			assert.Equal(t, tt.wantContent, string(content))
			if folder, ok := tt.payload["folder_id"]; ok {
				assert.Equal(t, []any{folder}, meta["parents"])
			}
		})
	}
}

func TestUploadFile_BadInput(t *testing.T) {
	a := newTestAdapter(t, http.NewServeMux())

	_, err := adaptertest.Invoke(t, a, "uploadFile", model.Payload{"file_name": "a", "file_content": "%%%", "encoding": "base64"})
	require.Error(t, err)
	assert.Equal(t, "file_content is not valid base64", err.Error())

	_, err = adaptertest.Invoke(t, a, "uploadFile", model.Payload{"file_name": "a", "file_content": "x", "encoding": "hex"})
	require.Error(t, err)
	assert.Equal(t, "encoding must be text or base64", err.Error())

	_, err = adaptertest.Invoke(t, a, "uploadFile", model.Payload{"file_content": "x"})
	require.Error(t, err)
	assert.Equal(t, model.KindPayloadValidation, model.KindOf(err))
}
