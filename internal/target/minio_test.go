package target

import (
	"bufio"
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

type storedObject struct {
	data        []byte
	contentType string
}

// fakeS3 serves the subset of the S3 API a MinIO target uses, for a single
// bucket with path-style addressing.
type fakeS3 struct {
	bucket string

	mu      sync.Mutex
	objects map[string]storedObject
}

func newFakeS3(t *testing.T, bucket string) (*fakeS3, *httptest.Server) {
	t.Helper()
	f := &fakeS3{bucket: bucket, objects: make(map[string]storedObject)}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeS3) object(key string) (storedObject, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[key]
	return obj, ok
}

func (f *fakeS3) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	bucket, key, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")
	if bucket != f.bucket {
		writeS3Error(w, http.StatusNotFound, "NoSuchBucket", r.URL.Path)
		return
	}

	switch {
	case key == "" && r.Method == http.MethodGet:
		f.list(w, r)
	case r.Method == http.MethodPut:
		f.put(w, r, key)
	case r.Method == http.MethodHead, r.Method == http.MethodGet:
		f.get(w, r, key)
	default:
		writeS3Error(w, http.StatusNotImplemented, "NotImplemented", r.URL.Path)
	}
}

func (f *fakeS3) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	prefix := q.Get("prefix")
	maxKeys, err := strconv.Atoi(q.Get("max-keys"))
	if err != nil || maxKeys <= 0 {
		maxKeys = 1000
	}

	var contents strings.Builder
	count := 0
	for _, k := range f.keys() {
		if !strings.HasPrefix(k, prefix) || count == maxKeys {
			continue
		}
		obj, _ := f.object(k)
		fmt.Fprintf(&contents, "<Contents><Key>%s</Key><Size>%d</Size><ETag>&quot;%s&quot;</ETag><LastModified>%s</LastModified></Contents>",
			k, len(obj.data), etag(obj.data), time.Now().UTC().Format(time.RFC3339))
		count++
	}

	w.Header().Set("Content-Type", "application/xml")
	fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?><ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/"><Name>%s</Name><Prefix>%s</Prefix><KeyCount>%d</KeyCount><MaxKeys>%d</MaxKeys><IsTruncated>false</IsTruncated>%s</ListBucketResult>`,
		f.bucket, prefix, count, maxKeys, contents.String())
}

func (f *fakeS3) put(w http.ResponseWriter, r *http.Request, key string) {
	var data []byte
	var err error
	if strings.HasPrefix(r.Header.Get("X-Amz-Content-Sha256"), "STREAMING-") {
		data, err = decodeChunked(r.Body)
	} else {
		data, err = io.ReadAll(r.Body)
	}
	if err != nil {
		writeS3Error(w, http.StatusBadRequest, "IncompleteBody", key)
		return
	}

	f.mu.Lock()
	f.objects[key] = storedObject{data: data, contentType: r.Header.Get("Content-Type")}
	f.mu.Unlock()

	w.Header().Set("ETag", `"`+etag(data)+`"`)
	w.WriteHeader(http.StatusOK)
}

func (f *fakeS3) get(w http.ResponseWriter, r *http.Request, key string) {
	obj, ok := f.object(key)
	if !ok {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeS3Error(w, http.StatusNotFound, "NoSuchKey", key)
		return
	}

	contentType := obj.contentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(obj.data)))
	w.Header().Set("ETag", `"`+etag(obj.data)+`"`)
	w.Header().Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodGet {
		w.Write(obj.data)
	}
}

// decodeChunked strips the aws-chunked framing used by streaming
// signature uploads: "<hex size>;chunk-signature=<sig>\r\n<data>\r\n".
func decodeChunked(r io.Reader) ([]byte, error) {
	br := bufio.NewReader(r)
	var out bytes.Buffer
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return nil, err
		}
		sizeHex, _, _ := strings.Cut(strings.TrimSpace(line), ";")
		n, err := strconv.ParseInt(sizeHex, 16, 64)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return out.Bytes(), nil
		}
		if _, err := io.CopyN(&out, br, n); err != nil {
			return nil, err
		}
		if _, err := br.Discard(2); err != nil {
			return nil, err
		}
	}
}

func writeS3Error(w http.ResponseWriter, status int, code, resource string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>%s</Code><Message>%s</Message><Resource>%s</Resource><RequestId>test</RequestId></Error>`,
		code, code, resource)
}

func etag(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

func newTestMinIO(t *testing.T) (*MinIO, *fakeS3) {
	t.Helper()
	fake, srv := newFakeS3(t, "music")
	m, err := NewMinIO("music", "library", Options{
		Endpoint:  strings.TrimPrefix(srv.URL, "http://"),
		AccessKey: "access",
		SecretKey: "secret",
		Region:    "us-east-1",
		Insecure:  true,
	})
	if err != nil {
		t.Fatalf("NewMinIO: %v", err)
	}
	return m, fake
}

func TestMinIOCopyDir(t *testing.T) {
	m, fake := newTestMinIO(t)
	ctx := context.Background()

	src := t.TempDir()
	writeFile(t, filepath.Join(src, "Album", "01.flac"), "track one")
	writeFile(t, filepath.Join(src, "Album", "cover.jpg"), "jpeg")
	writeFile(t, filepath.Join(src, "Album", "CD2", "01.flac"), "disc two")

	stats, err := m.CopyDir(ctx, filepath.Join(src, "Album"), filepath.Join("Artist", "Album"))
	if err != nil {
		t.Fatalf("CopyDir: %v", err)
	}
	if stats.Files != 3 {
		t.Errorf("stats.Files = %d; want 3", stats.Files)
	}
	if want := int64(len("track one") + len("jpeg") + len("disc two")); stats.Size != want {
		t.Errorf("stats.Size = %d; want %d", stats.Size, want)
	}

	want := []string{
		"library/Artist/Album/01.flac",
		"library/Artist/Album/CD2/01.flac",
		"library/Artist/Album/cover.jpg",
	}
	got := fake.keys()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("stored keys = %v; want %v", got, want)
	}
	if obj, _ := fake.object("library/Artist/Album/cover.jpg"); obj.contentType != "image/jpeg" {
		t.Errorf("cover.jpg content type = %q; want image/jpeg", obj.contentType)
	}
	if obj, _ := fake.object("library/Artist/Album/CD2/01.flac"); string(obj.data) != "disc two" {
		t.Errorf("CD2/01.flac = %q; want %q", obj.data, "disc two")
	}

	_, err = m.CopyDir(ctx, filepath.Join(src, "Album"), filepath.Join("Artist", "Album"))
	if !errors.Is(err, fs.ErrExist) {
		t.Errorf("second CopyDir error = %v; want fs.ErrExist", err)
	}
}

func TestMinIOCopyDirFollowsSymlinkedRoot(t *testing.T) {
	m, fake := newTestMinIO(t)

	store := t.TempDir()
	writeFile(t, filepath.Join(store, "Album", "01.flac"), "linked")
	link := filepath.Join(t.TempDir(), "Linked")
	if err := os.Symlink(filepath.Join(store, "Album"), link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	stats, err := m.CopyDir(context.Background(), link, filepath.Join("Artist", "Linked"))
	if err != nil {
		t.Fatalf("CopyDir: %v", err)
	}
	if stats.Files != 1 || stats.Size != int64(len("linked")) {
		t.Errorf("stats = %+v; want 1 file of %d bytes", stats, len("linked"))
	}
	if obj, ok := fake.object("library/Artist/Linked/01.flac"); !ok || string(obj.data) != "linked" {
		t.Errorf("stored keys = %v", fake.keys())
	}
}

func TestMinIOExists(t *testing.T) {
	m, _ := newTestMinIO(t)
	ctx := context.Background()

	src := t.TempDir()
	writeFile(t, filepath.Join(src, "Album", "01.flac"), "track one")
	if _, err := m.CopyDir(ctx, filepath.Join(src, "Album"), filepath.Join("Artist", "Album")); err != nil {
		t.Fatalf("CopyDir: %v", err)
	}

	tests := []struct {
		rel      string
		expected bool
	}{
		{rel: "Artist", expected: true},
		{rel: filepath.Join("Artist", "Album"), expected: true},
		{rel: filepath.Join("Artist", "Album", "01.flac"), expected: true},
		{rel: "Art", expected: false},
		{rel: filepath.Join("Artist", "Other"), expected: false},
		{rel: "Nobody", expected: false},
	}
	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			got, err := m.Exists(ctx, tt.rel)
			if err != nil {
				t.Fatalf("Exists: %v", err)
			}
			if got != tt.expected {
				t.Errorf("Exists(%q) = %v; want %v", tt.rel, got, tt.expected)
			}
		})
	}
}

func TestMinIOOpen(t *testing.T) {
	m, _ := newTestMinIO(t)
	ctx := context.Background()

	src := t.TempDir()
	writeFile(t, filepath.Join(src, "Album", "01.flac"), "track one")
	if _, err := m.CopyDir(ctx, filepath.Join(src, "Album"), filepath.Join("Artist", "Album")); err != nil {
		t.Fatalf("CopyDir: %v", err)
	}

	rc, err := m.Open(ctx, filepath.Join("Artist", "Album", "01.flac"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "track one" {
		t.Errorf("content = %q; want %q", data, "track one")
	}

	_, err = m.Open(ctx, filepath.Join("Artist", "Album", "02.flac"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Open missing key error = %v; want fs.ErrNotExist", err)
	}
}
