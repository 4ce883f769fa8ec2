package transport

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileTokenStore_EmptyCache(t *testing.T) {
	store := NewFileTokenStoreAt(t.TempDir(), "github")

	tokens, err := store.Tokens(context.Background())
	require.NoError(t, err)
	assert.Nil(t, tokens)

	verifier, err := store.CodeVerifier(context.Background())
	require.NoError(t, err)
	assert.Empty(t, verifier)
}

func TestFileTokenStore_TokenRoundTrip(t *testing.T) {
	// The cache directory does not exist yet; SaveTokens must create it.
	dir := filepath.Join(t.TempDir(), "toolmux", "tokens")
	store := NewFileTokenStoreAt(dir, "github")

	saved := &Tokens{
		AccessToken:  "tok-123",
		RefreshToken: "ref-456",
		TokenType:    "Bearer",
		ExpiresIn:    3600,
	}
	require.NoError(t, store.SaveTokens(context.Background(), saved))

	got, err := store.Tokens(context.Background())
	require.NoError(t, err)
	assert.Equal(t, saved, got)

	info, err := os.Stat(filepath.Join(dir, "github.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileTokenStore_VerifierRoundTrip(t *testing.T) {
	store := NewFileTokenStoreAt(filepath.Join(t.TempDir(), "tokens"), "search")

	require.NoError(t, store.SaveCodeVerifier(context.Background(), "pkce-verifier"))

	verifier, err := store.CodeVerifier(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "pkce-verifier", verifier)
}

func TestFileTokenStore_ServersDoNotShareTokens(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, NewFileTokenStoreAt(dir, "a").SaveTokens(context.Background(),
		&Tokens{AccessToken: "a-token", TokenType: "Bearer"}))

	tokens, err := NewFileTokenStoreAt(dir, "b").Tokens(context.Background())
	require.NoError(t, err)
	assert.Nil(t, tokens)
}

func TestFileTokenStore_CorruptCache(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "github.json"), []byte("{not json"), 0o600))

	_, err := NewFileTokenStoreAt(dir, "github").Tokens(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing cached tokens")
}

func TestFileTokenStore_SuppliesBearerHeader(t *testing.T) {
	store := NewFileTokenStoreAt(t.TempDir(), "github")
	require.NoError(t, store.SaveTokens(context.Background(),
		&Tokens{AccessToken: "tok-123", TokenType: "Bearer"}))

	headers, err := requestHeaders(context.Background(), nil, store)
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-123", headers.Get("Authorization"))
}

func TestFileTokenStore_RedirectUnsupported(t *testing.T) {
	authURL, err := url.Parse("https://auth.example.com/authorize")
	require.NoError(t, err)

	store := NewFileTokenStoreAt(t.TempDir(), "github")
	err = store.RedirectToAuthorization(context.Background(), authURL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "interactive authorization")
}
