package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"bilancio/internal/config"
)

func TestClientCredentials(t *testing.T) {
	clientFile := filepath.Join(t.TempDir(), "client.json")
	if err := os.WriteFile(clientFile, []byte(`{"installed":{}}`), 0600); err != nil {
		t.Fatalf("write client file: %v", err)
	}

	tests := []struct {
		name    string
		cfg     config.Config
		want    string
		wantErr bool
	}{
		{
			name: "inline json wins over file",
			cfg: config.Config{
				GoogleOAuthClientJSON: `{"web":{}}`,
				GoogleOAuthClientFile: clientFile,
			},
			want: `{"web":{}}`,
		},
		{
			name: "file fallback",
			cfg:  config.Config{GoogleOAuthClientFile: clientFile},
			want: `{"installed":{}}`,
		},
		{
			name:    "nothing configured",
			cfg:     config.Config{},
			wantErr: true,
		},
		{
			name:    "missing file",
			cfg:     config.Config{GoogleOAuthClientFile: filepath.Join(t.TempDir(), "absent.json")},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := clientCredentials(&tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("clientCredentials() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("clientCredentials() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("clientCredentials() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTokenPath(t *testing.T) {
	if got := tokenPath(&config.Config{}); got != "token.json" {
		t.Errorf("tokenPath() = %q, want token.json", got)
	}
	if got := tokenPath(&config.Config{GoogleOAuthTokenFile: "/tmp/t.json"}); got != "/tmp/t.json" {
		t.Errorf("tokenPath() = %q, want configured path", got)
	}
}

func TestSaveTokenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	tok := &oauth2.Token{
		AccessToken:  "access",
		RefreshToken: "refresh",
		TokenType:    "Bearer",
		Expiry:       time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC),
	}

	if err := saveToken(path, tok); err != nil {
		t.Fatalf("saveToken() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read token file: %v", err)
	}
	var got oauth2.Token
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("decode token: %v", err)
	}
	if got.RefreshToken != tok.RefreshToken || got.AccessToken != tok.AccessToken {
		t.Errorf("round-tripped token = %+v, want %+v", got, tok)
	}
}
