package middleware

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	testReqID = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	testActor = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func newEcho(rdb *redis.Client, ttl time.Duration, handler echo.HandlerFunc) *echo.Echo {
	log := logrus.New()
	log.SetOutput(io.Discard)
	e := echo.New()
	e.HideBanner = true
	e.Use(Idempotency(rdb, ttl, logrus.NewEntry(log)))
	e.POST("/loan-requests", handler)
	e.GET("/loan-requests", handler)
	return e
}

func doReq(t *testing.T, e *echo.Echo, method, path string, body []byte, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func validHeaders() map[string]string {
	return map[string]string{
		"X-Request-Id": testReqID,
		"X-Request-At": time.Now().UTC().Format(time.RFC3339),
		"X-User-Id":    testActor,
	}
}

func createdHandler(c echo.Context) error {
	return c.JSON(http.StatusCreated, map[string]any{"id": "lr-1"})
}

func TestIdempotencyBypassesReads(t *testing.T) {
	e := newEcho(newRedis(t), time.Minute, func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	// No headers at all: GET must pass straight through.
	rec := doReq(t, e, http.MethodGet, "/loan-requests", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET bypass: want 200, got %d", rec.Code)
	}
}

func TestIdempotencyHeaderValidation(t *testing.T) {
	e := newEcho(newRedis(t), time.Minute, createdHandler)
	body := []byte(`{"amount":1}`)

	cases := []struct {
		name   string
		mutate func(h map[string]string)
	}{
		{"missing X-Request-Id", func(h map[string]string) { delete(h, "X-Request-Id") }},
		{"malformed X-Request-Id", func(h map[string]string) { h["X-Request-Id"] = "not-an-id" }},
		{"missing X-Request-At", func(h map[string]string) { delete(h, "X-Request-At") }},
		{"prose X-Request-At", func(h map[string]string) { h["X-Request-At"] = "yesterday" }},
		{"skewed X-Request-At", func(h map[string]string) {
			h["X-Request-At"] = time.Now().UTC().Add(-maxClockSkew - time.Minute).Format(time.RFC3339)
		}},
		{"missing X-User-Id", func(h map[string]string) { delete(h, "X-User-Id") }},
	}
	for _, tc := range cases {
		h := validHeaders()
		tc.mutate(h)
		rec := doReq(t, e, http.MethodPost, "/loan-requests", body, h)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: want 400, got %d", tc.name, rec.Code)
		}
	}
}

func TestIdempotencyReplaysRecordedResponse(t *testing.T) {
	calls := 0
	e := newEcho(newRedis(t), time.Minute, func(c echo.Context) error {
		calls++
		return c.JSON(http.StatusCreated, map[string]any{"id": "lr-1"})
	})
	body := []byte(`{"amount":250000}`)
	h := validHeaders()

	rec1 := doReq(t, e, http.MethodPost, "/loan-requests", body, h)
	if rec1.Code != http.StatusCreated {
		t.Fatalf("first request: want 201, got %d body=%s", rec1.Code, rec1.Body.String())
	}

	// Same id, same body: the recorded response comes back without the
	// handler running again.
	rec2 := doReq(t, e, http.MethodPost, "/loan-requests", body, h)
	if rec2.Code != http.StatusCreated {
		t.Fatalf("replay: want 201, got %d body=%s", rec2.Code, rec2.Body.String())
	}
	if rec1.Body.String() != rec2.Body.String() {
		t.Fatalf("replay body mismatch: %q vs %q", rec1.Body.String(), rec2.Body.String())
	}
	if calls != 1 {
		t.Fatalf("handler ran %d times, want 1", calls)
	}
}

func TestIdempotencyRejectsReusedIDWithDifferentBody(t *testing.T) {
	rdb := newRedis(t)
	e := newEcho(rdb, time.Minute, createdHandler)

	// A finished request is already recorded under this id.
	recorded := idempEntry{
		Code:        http.StatusCreated,
		Body:        []byte(`{"id":"lr-1"}`),
		BodySHA256:  bodyHash([]byte(`{"amount":1}`)),
		RequestID:   testReqID,
		RequestAtMS: time.Now().UnixMilli(),
		CreatedAt:   nowUTC(),
	}
	key := buildKey(http.MethodPost, "/loan-requests", testActor, testReqID)
	if err := saveFinal(context.Background(), rdb, key, recorded, time.Minute); err != nil {
		t.Fatalf("seed final entry: %v", err)
	}

	rec := doReq(t, e, http.MethodPost, "/loan-requests", []byte(`{"amount":2}`), validHeaders())
	if rec.Code != http.StatusConflict {
		t.Fatalf("reused id, different body: want 409, got %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestIdempotencyRejectsInProgress(t *testing.T) {
	rdb := newRedis(t)
	e := newEcho(rdb, time.Minute, createdHandler)
	body := []byte(`{"amount":1}`)

	// Another request holds the provisional lock for this id.
	provisional := idempEntry{
		InProgress:  true,
		BodySHA256:  bodyHash(body),
		RequestID:   testReqID,
		RequestAtMS: time.Now().UnixMilli(),
		CreatedAt:   nowUTC(),
	}
	key := buildKey(http.MethodPost, "/loan-requests", testActor, testReqID)
	if ok, err := provisionalSet(context.Background(), rdb, key, provisional); err != nil || !ok {
		t.Fatalf("seed provisional entry: ok=%v err=%v", ok, err)
	}

	rec := doReq(t, e, http.MethodPost, "/loan-requests", body, validHeaders())
	if rec.Code != http.StatusConflict {
		t.Fatalf("in progress: want 409, got %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestIdempotencyStoreUnavailable(t *testing.T) {
	// Closed address: SetNX fails fast and the request is refused.
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	e := newEcho(rdb, time.Minute, createdHandler)

	rec := doReq(t, e, http.MethodPost, "/loan-requests", []byte(`{}`), validHeaders())
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("store unavailable: want 503, got %d", rec.Code)
	}
}
