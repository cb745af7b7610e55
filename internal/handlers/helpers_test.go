package handlers

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/quickai-labs/quickai/backend/internal/ai"
	"github.com/quickai-labs/quickai/backend/internal/cloudinary"
	"github.com/quickai-labs/quickai/backend/internal/identity"
	"github.com/quickai-labs/quickai/backend/internal/middleware"
	"github.com/quickai-labs/quickai/backend/internal/quota"
)

// tinyGIF is a minimal valid GIF header so uploads pass image sniffing.
var tinyGIF = []byte("GIF87a\x01\x00\x01\x00\x00\x00\x00")

type fakeIdentityStore struct {
	user     identity.User
	getErr   error
	setErr   error
	getCalls int
	setTo    []int
}

func (f *fakeIdentityStore) GetUser(ctx context.Context, userID string) (identity.User, error) {
	f.getCalls++
	if f.getErr != nil {
		return identity.User{}, f.getErr
	}
	return f.user, nil
}

func (f *fakeIdentityStore) SetFreeUsage(ctx context.Context, u identity.User, usage int) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.setTo = append(f.setTo, usage)
	return nil
}

type fakeCompleter struct {
	content  string
	err      error
	calls    int
	messages []ai.Message
}

func (f *fakeCompleter) Complete(ctx context.Context, temperature float64, maxTokens int, messages ...ai.Message) (string, error) {
	f.calls++
	f.messages = messages
	if f.err != nil {
		return "", f.err
	}
	return f.content, nil
}

type fakeImageGen struct {
	data  []byte
	err   error
	calls int
}

func (f *fakeImageGen) TextToImage(ctx context.Context, prompt string) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.data, nil
}

type fakeImageStore struct {
	result  cloudinary.UploadResult
	err     error
	calls   int
	lastOpt cloudinary.UploadOptions
	lastRaw []byte
}

func (f *fakeImageStore) Upload(ctx context.Context, file io.Reader, filename string, opts cloudinary.UploadOptions) (cloudinary.UploadResult, error) {
	f.calls++
	f.lastOpt = opts
	f.lastRaw, _ = io.ReadAll(file)
	if f.err != nil {
		return cloudinary.UploadResult{}, f.err
	}
	return f.result, nil
}

func (f *fakeImageStore) URL(publicID string, transformation string) string {
	return "https://res.cloudinary.com/demo/image/upload/" + transformation + "/" + publicID
}

type testEnv struct {
	h       *Handler
	mock    sqlmock.Sqlmock
	store   *fakeIdentityStore
	ai      *fakeCompleter
	images  *fakeImageGen
	storage *fakeImageStore
}

func freeUser(usage int) identity.User {
	return identity.User{ID: "user_1", PrivateMetadata: map[string]any{"plan": "free", "free_usage": float64(usage)}}
}

func premiumUser(usage int) identity.User {
	return identity.User{ID: "user_1", PrivateMetadata: map[string]any{"plan": "premium", "free_usage": float64(usage)}}
}

func newTestEnv(t *testing.T, user identity.User) testEnv {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	store := &fakeIdentityStore{user: user}
	completer := &fakeCompleter{content: "generated content"}
	images := &fakeImageGen{data: []byte("png-bytes")}
	storage := &fakeImageStore{result: cloudinary.UploadResult{
		PublicID:  "creations/abc123",
		SecureURL: "https://res.cloudinary.com/demo/image/upload/creations/abc123.png",
	}}

	h := New(db, quota.NewGate(store), completer, images, storage)
	return testEnv{h: h, mock: mock, store: store, ai: completer, images: images, storage: storage}
}

func authedJSONRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	return withTestUser(req)
}

func withTestUser(req *http.Request) *http.Request {
	return middleware.WithUserID(req, "user_1")
}

func multipartRequest(t *testing.T, path, fileField, filename string, data []byte, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if fileField != "" {
		fw, err := mw.CreateFormFile(fileField, filename)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := fw.Write(data); err != nil {
			t.Fatalf("write file: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return withTestUser(req)
}

func expectCreationInsert(mock sqlmock.Sqlmock, userID, prompt, content, creationType string, publish bool) {
	mock.ExpectExec(`INSERT INTO public\.creations`).
		WithArgs(userID, prompt, content, creationType, publish).
		WillReturnResult(sqlmock.NewResult(1, 1))
}
