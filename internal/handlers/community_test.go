package handlers

import (
	"database/sql"
	"net/http"
	"net/http/httptest"
	"time"

	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

var creationRowColumns = []string{"id", "user_id", "prompt", "content", "type", "publish", "likes", "created_at"}

func TestGetUserCreations(t *testing.T) {
	env := newTestEnv(t, freeUser(0))
	now := time.Now()
	rows := sqlmock.NewRows(creationRowColumns).
		AddRow(int64(2), "user_1", "a red car", "https://example.com/2.png", "image", true, []byte("{user_2,user_3}"), now).
		AddRow(int64(1), "user_1", "Write about Go", "An article.", "article", false, []byte("{}"), now.Add(-time.Hour))
	env.mock.ExpectQuery(`SELECT (.+) FROM public\.creations\s+WHERE user_id = \$1`).
		WithArgs("user_1").
		WillReturnRows(rows)

	rr := httptest.NewRecorder()
	env.h.GetUserCreations(rr, authedJSONRequest(http.MethodGet, "/api/user/get-user-creations", ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%q", rr.Code, rr.Body.String())
	}
	out := decodeBody(t, rr)
	creations := out["creations"].([]any)
	if len(creations) != 2 {
		t.Fatalf("expected 2 creations got %d", len(creations))
	}
	first := creations[0].(map[string]any)
	likes := first["likes"].([]any)
	if len(likes) != 2 || likes[0] != "user_2" {
		t.Fatalf("unexpected likes %#v", likes)
	}
	if err := env.mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}

func TestGetUserCreations_Unauthenticated(t *testing.T) {
	env := newTestEnv(t, freeUser(0))

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/user/get-user-creations", nil)
	env.h.GetUserCreations(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rr.Code)
	}
}

func TestGetUserCreations_QueryError(t *testing.T) {
	env := newTestEnv(t, freeUser(0))
	env.mock.ExpectQuery(`SELECT (.+) FROM public\.creations`).
		WithArgs("user_1").
		WillReturnError(sql.ErrConnDone)

	rr := httptest.NewRecorder()
	env.h.GetUserCreations(rr, authedJSONRequest(http.MethodGet, "/api/user/get-user-creations", ""))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", rr.Code)
	}
}

func TestGetPublishedCreations(t *testing.T) {
	env := newTestEnv(t, freeUser(0))
	rows := sqlmock.NewRows(creationRowColumns).
		AddRow(int64(7), "user_9", "sunset", "https://example.com/7.png", "image", true, []byte("{}"), time.Now())
	env.mock.ExpectQuery(`SELECT (.+) FROM public\.creations\s+WHERE publish = true`).
		WillReturnRows(rows)

	rr := httptest.NewRecorder()
	env.h.GetPublishedCreations(rr, authedJSONRequest(http.MethodGet, "/api/user/get-published-creations", ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%q", rr.Code, rr.Body.String())
	}
	out := decodeBody(t, rr)
	creations := out["creations"].([]any)
	if len(creations) != 1 {
		t.Fatalf("expected 1 creation got %d", len(creations))
	}
	// Empty likes must serialize as [], not null.
	if likes := creations[0].(map[string]any)["likes"]; likes == nil {
		t.Fatalf("expected empty array likes, got null")
	}
	if err := env.mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}

func TestGetPublishedCreations_EmptyFeed(t *testing.T) {
	env := newTestEnv(t, freeUser(0))
	env.mock.ExpectQuery(`SELECT (.+) FROM public\.creations\s+WHERE publish = true`).
		WillReturnRows(sqlmock.NewRows(creationRowColumns))

	rr := httptest.NewRecorder()
	env.h.GetPublishedCreations(rr, authedJSONRequest(http.MethodGet, "/api/user/get-published-creations", ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}
	out := decodeBody(t, rr)
	if creations, ok := out["creations"].([]any); !ok || len(creations) != 0 {
		t.Fatalf("expected empty creations array got %#v", out["creations"])
	}
}

func TestToggleLikeCreation_Like(t *testing.T) {
	env := newTestEnv(t, freeUser(0))
	env.mock.ExpectQuery(`UPDATE public\.creations\s+SET likes = CASE`).
		WithArgs(int64(7), "user_1").
		WillReturnRows(sqlmock.NewRows([]string{"liked"}).AddRow(true))

	rr := httptest.NewRecorder()
	env.h.ToggleLikeCreation(rr, authedJSONRequest(http.MethodPost, "/api/user/toggle-like-creation", `{"id":7}`))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%q", rr.Code, rr.Body.String())
	}
	out := decodeBody(t, rr)
	if out["message"] != "Creation Liked" {
		t.Fatalf("unexpected message %#v", out["message"])
	}
	if err := env.mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}

func TestToggleLikeCreation_Unlike(t *testing.T) {
	env := newTestEnv(t, freeUser(0))
	env.mock.ExpectQuery(`UPDATE public\.creations\s+SET likes = CASE`).
		WithArgs(int64(7), "user_1").
		WillReturnRows(sqlmock.NewRows([]string{"liked"}).AddRow(false))

	rr := httptest.NewRecorder()
	env.h.ToggleLikeCreation(rr, authedJSONRequest(http.MethodPost, "/api/user/toggle-like-creation", `{"id":7}`))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}
	out := decodeBody(t, rr)
	if out["message"] != "Creation Unliked" {
		t.Fatalf("unexpected message %#v", out["message"])
	}
}

func TestToggleLikeCreation_NotFound(t *testing.T) {
	env := newTestEnv(t, freeUser(0))
	env.mock.ExpectQuery(`UPDATE public\.creations\s+SET likes = CASE`).
		WithArgs(int64(999), "user_1").
		WillReturnError(sql.ErrNoRows)

	rr := httptest.NewRecorder()
	env.h.ToggleLikeCreation(rr, authedJSONRequest(http.MethodPost, "/api/user/toggle-like-creation", `{"id":999}`))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d body=%q", rr.Code, rr.Body.String())
	}
}

func TestToggleLikeCreation_MissingID(t *testing.T) {
	env := newTestEnv(t, freeUser(0))

	rr := httptest.NewRecorder()
	env.h.ToggleLikeCreation(rr, authedJSONRequest(http.MethodPost, "/api/user/toggle-like-creation", `{}`))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
	if err := env.mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("no database calls expected: %v", err)
	}
}

func TestCreateCommunityCreation(t *testing.T) {
	env := newTestEnv(t, freeUser(0))
	rows := sqlmock.NewRows(creationRowColumns).
		AddRow(int64(3), "user_1", "sunset", "https://example.com/3.png", "image", true, []byte("{}"), time.Now())
	env.mock.ExpectQuery(`INSERT INTO public\.creations`).
		WithArgs("user_1", "sunset", "https://example.com/3.png", "image", true).
		WillReturnRows(rows)

	rr := httptest.NewRecorder()
	env.h.CreateCommunityCreation(rr, authedJSONRequest(http.MethodPost, "/api/user/create-creation",
		`{"prompt":"sunset","content":"https://example.com/3.png"}`))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%q", rr.Code, rr.Body.String())
	}
	out := decodeBody(t, rr)
	creation := out["creation"].(map[string]any)
	if creation["id"] != float64(3) || creation["publish"] != true {
		t.Fatalf("unexpected creation %#v", creation)
	}
	if err := env.mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}

func TestCreateCommunityCreation_PublishFalse(t *testing.T) {
	env := newTestEnv(t, freeUser(0))
	rows := sqlmock.NewRows(creationRowColumns).
		AddRow(int64(4), "user_1", "sunset", "https://example.com/4.png", "image", false, []byte("{}"), time.Now())
	env.mock.ExpectQuery(`INSERT INTO public\.creations`).
		WithArgs("user_1", "sunset", "https://example.com/4.png", "image", false).
		WillReturnRows(rows)

	rr := httptest.NewRecorder()
	env.h.CreateCommunityCreation(rr, authedJSONRequest(http.MethodPost, "/api/user/create-creation",
		`{"prompt":"sunset","content":"https://example.com/4.png","publish":false}`))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%q", rr.Code, rr.Body.String())
	}
}

func TestCreateCommunityCreation_MissingFields(t *testing.T) {
	env := newTestEnv(t, freeUser(0))

	for _, body := range []string{`{"prompt":"sunset"}`, `{"content":"x"}`, `{}`} {
		rr := httptest.NewRecorder()
		env.h.CreateCommunityCreation(rr, authedJSONRequest(http.MethodPost, "/api/user/create-creation", body))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("body %q: expected 400 got %d", body, rr.Code)
		}
	}
}
