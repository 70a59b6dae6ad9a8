package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func TestDeepLEndpointForKey(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"abc-123:fx", deeplFreeEndpoint},
		{"ABC:FX", deeplFreeEndpoint},
		{"fk-abcdef", deeplFreeEndpoint},
		{"fk_abcdef", deeplFreeEndpoint},
		{"abc-123", deeplProEndpoint},
		{"fx-abc", deeplProEndpoint},
	}
	for _, tt := range tests {
		if got := DeepLEndpointForKey(tt.key); got != tt.want {
			t.Errorf("DeepLEndpointForKey(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestDeepLTranslator_Translate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/translate" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "DeepL-Auth-Key secret:fx" {
			t.Errorf("Authorization = %q", got)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm: %v", err)
		}
		if r.PostForm.Get("target_lang") != "ES" || r.PostForm.Get("source_lang") != "EN" {
			t.Errorf("form = %v", r.PostForm)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"translations":[{"detected_source_language":"EN","text":" Estudio: %s "}]}`, r.PostForm.Get("text"))
	}))
	defer srv.Close()

	d, err := NewDeepLTranslator("secret:fx", srv.URL+"/", srv.Client())
	if err != nil {
		t.Fatalf("NewDeepLTranslator: %v", err)
	}
	got, err := d.Translate(context.Background(), "X", "es", "en")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if got != "Estudio: X" {
		t.Errorf("Translate = %q", got)
	}
}

func TestDeepLTranslator_StatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusForbidden, ErrForbidden},
		{http.StatusUnauthorized, ErrForbidden},
		{http.StatusTooManyRequests, ErrRateLimited},
		{456, ErrRateLimited},
		{http.StatusInternalServerError, ErrTransient},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", tt.status)
		}))
		d, _ := NewDeepLTranslator("key", srv.URL, srv.Client())
		_, err := d.Translate(context.Background(), "X", "ES", "EN")
		srv.Close()

		if !errors.Is(err, tt.want) {
			t.Errorf("status %d: err = %v, want %v", tt.status, err, tt.want)
		}
		var te *TranslationError
		if errors.As(err, &te) && te.Status != tt.status {
			t.Errorf("status %d: TranslationError.Status = %d", tt.status, te.Status)
		}
	}
}

func TestNewDeepLTranslator_RequiresKey(t *testing.T) {
	if _, err := NewDeepLTranslator("  ", "", nil); err == nil {
		t.Error("expected error for empty key")
	}
}

func TestLibreTranslator_Translate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/translate" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req libreRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if req.Source != "en" || req.Target != "es" || req.Format != "text" || req.APIKey != "k" {
			t.Errorf("request = %+v", req)
		}
		json.NewEncoder(w).Encode(map[string]string{"translatedText": "Hola " + req.Q})
	}))
	defer srv.Close()

	l, err := NewLibreTranslator(srv.URL+"/", "k", srv.Client())
	if err != nil {
		t.Fatalf("NewLibreTranslator: %v", err)
	}
	if !l.Accepts("en") || l.Accepts("") || l.Accepts("FR") {
		t.Error("LibreTranslate should only accept EN")
	}
	got, err := l.Translate(context.Background(), "world", "ES", "EN")
	if err != nil || got != "Hola world" {
		t.Errorf("Translate = %q, %v", got, err)
	}
}

func TestLibreTranslator_ErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"language not supported"}`))
	}))
	defer srv.Close()

	l, _ := NewLibreTranslator(srv.URL, "", srv.Client())
	if _, err := l.Translate(context.Background(), "x", "ES", "EN"); !errors.Is(err, ErrTransient) {
		t.Errorf("err = %v, want transient", err)
	}
}

func TestMyMemoryTranslator(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
		err  error
	}{
		{"ok numeric status", `{"responseData":{"translatedText":"Hola"},"responseStatus":200}`, "Hola", nil},
		{"ok string status", `{"responseData":{"translatedText":"Hola"},"responseStatus":"200"}`, "Hola", nil},
		{"quota warning", `{"responseData":{"translatedText":"MYMEMORY WARNING: YOU USED ALL AVAILABLE FREE TRANSLATIONS FOR TODAY"},"responseStatus":200}`, "", ErrRateLimited},
		{"status in body", `{"responseData":{"translatedText":""},"responseStatus":"403"}`, "", ErrForbidden},
		{"bad json", `not json`, "", ErrTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if got := r.URL.Query().Get("langpair"); got != "en|es" {
					t.Errorf("langpair = %q", got)
				}
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			m := NewMyMemoryTranslator(srv.URL, srv.Client())
			got, err := m.Translate(context.Background(), "Hello", "ES", "EN")
			if tt.err != nil {
				if !errors.Is(err, tt.err) {
					t.Errorf("err = %v, want %v", err, tt.err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("Translate = %q, %v", got, err)
			}
		})
	}
}

// 上限を超える本文は切り詰めて送らず、翻訳なしとして次のプロバイダーに回す
func TestProviders_SkipOverLimitText(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"translations":[{"text":"Hola"}],"responseData":{"translatedText":"Hola"},"responseStatus":200}`))
	}))
	defer srv.Close()

	d, err := NewDeepLTranslator("secret:fx", srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("NewDeepLTranslator: %v", err)
	}
	m := NewMyMemoryTranslator(srv.URL, srv.Client())

	tests := []struct {
		name     string
		tr       Translator
		text     string
		want     string
		wantHits int32
	}{
		{"deepl over limit", d, strings.Repeat("é", deeplMaxChars+1), "", 0},
		{"deepl at limit", d, strings.Repeat("é", deeplMaxChars), "Hola", 1},
		{"mymemory over limit", m, strings.Repeat("a", myMemoryMaxChars+1), "", 0},
		{"mymemory at limit", m, strings.Repeat("a", myMemoryMaxChars), "Hola", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits.Store(0)
			got, err := tt.tr.Translate(context.Background(), tt.text, "ES", "EN")
			if err != nil || got != tt.want {
				t.Errorf("Translate = %q, %v; want %q", got, err, tt.want)
			}
			if n := hits.Load(); n != tt.wantHits {
				t.Errorf("server hit %d times, want %d", n, tt.wantHits)
			}
		})
	}
}
