package cmd

import (
	"bytes"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"conference-central/config"
)

func TestHashPassword(t *testing.T) {
	out := new(bytes.Buffer)
	rootCmd.SetOut(out)
	rootCmd.SetArgs([]string{"hash-password", "s3cret"})
	t.Cleanup(func() { rootCmd.SetArgs(nil); rootCmd.SetOut(nil) })

	require.NoError(t, rootCmd.Execute())
	hash := strings.TrimSpace(out.String())
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret")))
}

func TestRootCommandServes(t *testing.T) {
	t.Cleanup(func() { rootCmd.SetArgs(nil); cfgFile = "" })

	for _, args := range [][]string{
		{"--config", "/nonexistent/conference-central.yaml"},
		{"serve", "--config", "/nonexistent/conference-central.yaml"},
	} {
		rootCmd.SetArgs(args)
		err := rootCmd.Execute()
		require.Error(t, err, args)
		assert.Contains(t, err.Error(), "failed to load config file", args)
	}
}

func TestNewServerWiresRoutes(t *testing.T) {
	t.Setenv("SIGN", "a-long-enough-signing-key")
	t.Setenv("BADGER_IN_MEMORY", "true")
	t.Setenv(config.ConfigPathEnvVar, "")

	cfg, err := config.LoadFile("")
	require.NoError(t, err)
	store, err := openStore(t.Context(), cfg.Store)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	srv := newServer(cfg, store)
	t.Cleanup(func() { srv.queue.Close() })

	for route, want := range map[string]int{
		"/health":       200,
		"/metrics":      200,
		"/profile":      401,
		"/announcement": 401,
	} {
		req, err := http.NewRequest("GET", route, nil)
		require.NoError(t, err)
		res, err := srv.app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, want, res.StatusCode, route)
	}
}
