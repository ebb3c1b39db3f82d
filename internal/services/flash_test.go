package services

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlashAccumulatesAndConsumes(t *testing.T) {
	store := NewFlashStore(testSecret, true)

	rec := httptest.NewRecorder()
	store.Add(rec, httptest.NewRequest(http.MethodGet, "/", nil), Flash{Level: LevelSuccess, Text: "one"})
	first := cookieNamed(rec, flashCookie)
	require.NotNil(t, first)
	assert.True(t, first.Secure)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(first)
	rec = httptest.NewRecorder()
	store.Add(rec, req, Flash{Level: LevelError, Text: "two"})
	second := cookieNamed(rec, flashCookie)
	require.NotNil(t, second)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(second)
	rec = httptest.NewRecorder()
	got := store.Consume(rec, req)
	assert.Equal(t, []Flash{{LevelSuccess, "one"}, {LevelError, "two"}}, got)
	assert.NotNil(t, cookieNamed(rec, flashCookie))
}

func TestFlashIgnoresForgedCookie(t *testing.T) {
	forger := NewFlashStore("ffffffffffffffffffffffffffffffff", false)
	rec := httptest.NewRecorder()
	forger.Add(rec, httptest.NewRequest(http.MethodGet, "/", nil), Flash{Level: LevelSuccess, Text: "forged"})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookieNamed(rec, flashCookie))
	assert.Empty(t, NewFlashStore(testSecret, false).Consume(httptest.NewRecorder(), req))

	var nilStore *FlashStore
	assert.Nil(t, nilStore.Consume(httptest.NewRecorder(), req))
}
