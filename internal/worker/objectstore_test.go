package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/scan-pipeline/internal/worker/domain"
)

// newControlAndBlobServers stands up a fake control service issuing URLs
// that point at a fake blob store
func newControlAndBlobServers(t *testing.T) (control, blob *httptest.Server, blobs map[string][]byte) {
	t.Helper()

	blobs = map[string][]byte{}

	blobMux := http.NewServeMux()
	blobMux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path[1:]
		switch r.Method {
		case http.MethodGet:
			data, ok := blobs[key]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Write(data)
		case http.MethodPut:
			data, err := io.ReadAll(r.Body)
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			blobs[key] = data
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	blob = httptest.NewServer(blobMux)
	t.Cleanup(blob.Close)

	controlMux := http.NewServeMux()
	controlMux.HandleFunc("/get-image-url", func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Query().Get("key")
		json.NewEncoder(w).Encode(map[string]string{
			"url": fmt.Sprintf("%s/%s", blob.URL, key),
		})
	})
	controlMux.HandleFunc("/get-blurred-upload-url", func(w http.ResponseWriter, r *http.Request) {
		originalKey := r.URL.Query().Get("originalKey")
		blurredKey := "blurred/" + originalKey
		json.NewEncoder(w).Encode(map[string]string{
			"uploadUrl":  fmt.Sprintf("%s/%s", blob.URL, blurredKey),
			"blurredKey": blurredKey,
		})
	})
	control = httptest.NewServer(controlMux)
	t.Cleanup(control.Close)

	return control, blob, blobs
}

func TestObjectStore_Fetch(t *testing.T) {
	control, _, blobs := newControlAndBlobServers(t)
	blobs["scan123.nii.gz"] = []byte("voxel data")

	store := NewObjectStore(control.URL, slog.Default())

	data, err := store.Fetch(context.Background(), "scan123.nii.gz")
	require.NoError(t, err)
	assert.Equal(t, []byte("voxel data"), data)
}

func TestObjectStore_Fetch_PresignFailure(t *testing.T) {
	control := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(control.Close)

	store := NewObjectStore(control.URL, slog.Default())

	_, err := store.Fetch(context.Background(), "scan123.nii.gz")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPresignRequest)
}

func TestObjectStore_Fetch_MissingBlob(t *testing.T) {
	control, _, _ := newControlAndBlobServers(t)

	store := NewObjectStore(control.URL, slog.Default())

	_, err := store.Fetch(context.Background(), "no-such-key")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTransfer)
	assert.NotErrorIs(t, err, domain.ErrPresignRequest)
}

func TestObjectStore_Store(t *testing.T) {
	control, _, blobs := newControlAndBlobServers(t)

	store := NewObjectStore(control.URL, slog.Default())

	storedKey, err := store.Store(context.Background(), "scan123.nii.gz", []byte("blurred voxels"))
	require.NoError(t, err)

	// the service picks the key; the caller must not invent one
	assert.Equal(t, "blurred/scan123.nii.gz", storedKey)
	assert.Equal(t, []byte("blurred voxels"), blobs["blurred/scan123.nii.gz"])
}

func TestObjectStore_Store_UploadRejected(t *testing.T) {
	blob := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(blob.Close)

	control := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"uploadUrl":  blob.URL + "/blurred/scan123.nii.gz",
			"blurredKey": "blurred/scan123.nii.gz",
		})
	}))
	t.Cleanup(control.Close)

	store := NewObjectStore(control.URL, slog.Default())

	_, err := store.Store(context.Background(), "scan123.nii.gz", []byte("blurred voxels"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTransfer)
}

func TestObjectStore_Store_InvalidPresignBody(t *testing.T) {
	control := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	t.Cleanup(control.Close)

	store := NewObjectStore(control.URL, slog.Default())

	_, err := store.Store(context.Background(), "scan123.nii.gz", []byte("blurred voxels"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPresignRequest)
}

func TestObjectStore_RoundTrip(t *testing.T) {
	control, _, blobs := newControlAndBlobServers(t)
	blobs["scan123.nii.gz"] = []byte("voxel data")

	store := NewObjectStore(control.URL, slog.Default())

	fetched, err := store.Fetch(context.Background(), "scan123.nii.gz")
	require.NoError(t, err)

	storedKey, err := store.Store(context.Background(), "scan123.nii.gz", fetched)
	require.NoError(t, err)

	again, err := store.Fetch(context.Background(), storedKey)
	require.NoError(t, err)
	assert.Equal(t, fetched, again)
}
