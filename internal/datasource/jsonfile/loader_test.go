package jsonfile

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const noSuchKey = `<?xml version="1.0" encoding="UTF-8"?>
<Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message><RequestId>1</RequestId></Error>`

// newS3Server emulates the GetObject call of an S3-compatible store for a
// single object.
func newS3Server(t *testing.T, path string, body []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != path {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(noSuchKey))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.Header().Set("Last-Modified", time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC).Format(http.TimeFormat))
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newMinioClient(t *testing.T, srv *httptest.Server) *minio.Client {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	client, err := minio.New(u.Host, &minio.Options{
		Creds:  credentials.NewStaticV4("access", "secret", ""),
		Secure: false,
		Region: "us-east-1",
	})
	require.NoError(t, err)
	return client
}

func TestLoadObject(t *testing.T) {
	body, err := os.ReadFile("testdata/dataset.json")
	require.NoError(t, err)

	srv := newS3Server(t, "/carbon-data/datasets/dataset.json", body)
	client := newMinioClient(t, srv)

	ds, err := LoadObject(context.Background(), client, "carbon-data", "datasets/dataset.json")
	require.NoError(t, err)
	assert.Len(t, ds.Emissions, 16)
	assert.Len(t, ds.Resources, 2)
}

func TestLoadObject_Missing(t *testing.T) {
	srv := newS3Server(t, "/carbon-data/datasets/dataset.json", []byte(`{}`))
	client := newMinioClient(t, srv)

	_, err := LoadObject(context.Background(), client, "carbon-data", "datasets/other.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3://carbon-data/datasets/other.json")
}
