package worker

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/neo/battlearena/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPokerRunsUntilCancelled(t *testing.T) {
	var calls atomic.Int32
	poker := NewPoker(10*time.Millisecond, ReconcilerFunc(func(ctx context.Context) error {
		calls.Add(1)
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		poker.Run(ctx)
	}()

	require.Eventually(t, func() bool { return calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("poker did not stop after cancel")
	}
}

func TestPokerSurvivesErrorsAndPanics(t *testing.T) {
	var calls atomic.Int32
	poker := NewPoker(5*time.Millisecond, ReconcilerFunc(func(ctx context.Context) error {
		switch calls.Add(1) {
		case 1:
			panic("boom")
		case 2:
			return errors.New("database locked")
		}
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go poker.Run(ctx)

	assert.Eventually(t, func() bool { return calls.Load() >= 4 }, 2*time.Second, 5*time.Millisecond)
}

func TestNewPokerDefaultsInterval(t *testing.T) {
	poker := NewPoker(0, ReconcilerFunc(func(context.Context) error { return nil }))
	assert.Equal(t, time.Minute, poker.interval)
}

func TestHTTPReconciler(t *testing.T) {
	var gotPath, gotToken, gotMethod string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		gotToken = r.Header.Get(auth.AdminHeader)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	r := NewHTTPReconciler(server.URL+"/", "tok", time.Second)
	require.NoError(t, r.EnsureConsistentState(context.Background()))

	assert.Equal(t, "/api/battle/reconcile", gotPath)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "tok", gotToken)
}

func TestHTTPReconcilerReportsFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "database unavailable", http.StatusInternalServerError)
	}))
	defer server.Close()

	err := NewHTTPReconciler(server.URL, "", time.Second).EnsureConsistentState(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
	assert.Contains(t, err.Error(), "database unavailable")

	server.Close()
	err = NewHTTPReconciler(server.URL, "", time.Second).EnsureConsistentState(context.Background())
	assert.Error(t, err)
}
