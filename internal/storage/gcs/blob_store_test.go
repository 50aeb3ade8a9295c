package gcs_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/JakeFAU/thegirl-crawler/internal/storage/gcs"
)

const testBucket = "test-bucket"

// newTestStore points a BlobStore at a fake GCS JSON API.
func newTestStore(t *testing.T, handler http.Handler) *gcs.BlobStore {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	store, err := gcs.Dial(context.Background(), gcs.Config{Bucket: testBucket},
		option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestPutObject(t *testing.T) {
	t.Parallel()

	objectName := "pages/2024-01-02/abc.html"
	objectData := "<html>article</html>"

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, fmt.Sprintf("/upload/storage/v1/b/%s/o", testBucket))
		assert.Equal(t, objectName, r.URL.Query().Get("name"))

		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Contains(t, string(body), objectData)
		assert.Contains(t, string(body), "text/html")

		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"bucket":%q,"name":%q}`, testBucket, objectName)
	})

	store := newTestStore(t, handler)
	uri, err := store.PutObject(context.Background(), objectName, "text/html; charset=utf-8", strings.NewReader(objectData))
	require.NoError(t, err)
	assert.Equal(t, "gs://test-bucket/"+objectName, uri)
}

func TestPutObjectServerError(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	store := newTestStore(t, handler)
	_, err := store.PutObject(context.Background(), "pages/x.html", "", strings.NewReader("data"))
	assert.Error(t, err)
}

func TestPutObjectEmptyPath(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, http.NotFoundHandler())
	_, err := store.PutObject(context.Background(), " ", "", strings.NewReader("data"))
	assert.Error(t, err)
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := gcs.New(nil, gcs.Config{Bucket: testBucket})
	assert.Error(t, err)

	_, err = gcs.Dial(context.Background(), gcs.Config{})
	assert.Error(t, err)
}
