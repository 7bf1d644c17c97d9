package pagination

import (
	"errors"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	params, err := Parse(url.Values{}, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if params.PageSize != DefaultPageSize || params.PageToken != "" || !params.Cursor.IsZero() {
		t.Fatalf("unexpected params %+v", params)
	}
}

func TestParsePageSize(t *testing.T) {
	cases := map[string]int{"": 20, "5": 5, "1000": 100}
	for raw, want := range cases {
		params, err := Parse(url.Values{"pageSize": {raw}}, Options{DefaultPageSize: 20, MaxPageSize: 100})
		if err != nil {
			t.Fatalf("pageSize %q: unexpected error %v", raw, err)
		}
		if params.PageSize != want {
			t.Fatalf("pageSize %q: want %d got %d", raw, want, params.PageSize)
		}
	}
}

func TestParseInvalidPageSize(t *testing.T) {
	for _, raw := range []string{"abc", "0", "-3"} {
		if _, err := Parse(url.Values{"pageSize": {raw}}, Options{}); !errors.Is(err, ErrInvalidPageSize) {
			t.Fatalf("pageSize %q: expected ErrInvalidPageSize, got %v", raw, err)
		}
	}
}

func TestTokenRoundTripThroughRequest(t *testing.T) {
	cursor := Cursor{CreatedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), ID: "01J0RECON"}
	token, err := EncodeToken(cursor)
	if err != nil || token == "" {
		t.Fatalf("EncodeToken: %q %v", token, err)
	}

	req := httptest.NewRequest("GET", "/api/v1/staff/reconciliations?pageSize=10&pageToken="+token, nil)
	params, err := FromRequest(req, Options{})
	if err != nil {
		t.Fatalf("FromRequest: %v", err)
	}
	if params.PageSize != 10 || params.PageToken != token {
		t.Fatalf("unexpected params %+v", params)
	}
	if !params.Cursor.CreatedAt.Equal(cursor.CreatedAt) || params.Cursor.ID != cursor.ID {
		t.Fatalf("unexpected cursor %+v", params.Cursor)
	}
}

func TestDecodeTokenInvalid(t *testing.T) {
	for _, token := range []string{"***", "e30"} {
		if _, err := DecodeToken(token); !errors.Is(err, ErrInvalidPageToken) {
			t.Fatalf("token %q: expected ErrInvalidPageToken, got %v", token, err)
		}
	}
	if token, _ := EncodeToken(Cursor{}); token != "" {
		t.Fatalf("expected empty token for zero cursor")
	}
}
