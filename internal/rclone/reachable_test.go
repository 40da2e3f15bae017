package rclone

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))

	assert.True(t, Reachable(context.Background(), srv.Client(), srv.URL+"/mods"))
	assert.False(t, Reachable(context.Background(), srv.Client(), srv.URL+"/missing"))
	assert.False(t, Reachable(context.Background(), srv.Client(), "://bad url"))

	url := srv.URL
	srv.Close()
	assert.False(t, Reachable(context.Background(), http.DefaultClient, url))
}
