package ergast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSleeper captures requested sleep durations without sleeping.
type recordingSleeper struct {
	slept []time.Duration
}

func (s *recordingSleeper) Sleep(_ context.Context, d time.Duration) error {
	s.slept = append(s.slept, d)
	return nil
}

func newTestClient(t *testing.T, serverURL string) (*Client, *recordingSleeper) {
	t.Helper()

	sleeper := &recordingSleeper{}
	client := newClient(ClientConfig{
		BaseURL: serverURL,
		Limiter: LimiterConfig{
			// Generous pacing so pace.Wait never blocks the test; the
			// recording sleeper handles the backoff waits.
			BaseDelay:  time.Second,
			MaxRetries: 4,
		},
	}, &http.Client{}, sleeper, slog.New(slog.NewTextHandler(testWriter{t}, nil)))
	client.limiter = noJitter(client.limiter)
	client.limiter.pace.SetBurst(1000)
	client.limiter.pace.SetLimit(1e6)

	return client, sleeper
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func resultsBody(total, offset int) string {
	return fmt.Sprintf(`{"MRData":{"series":"f1","limit":"100","offset":"%d","total":"%d",
		"RaceTable":{"season":"2023","Races":[{"season":"2023","round":"5","raceName":"Miami Grand Prix"}]}}}`,
		offset, total)
}

func TestFetchSuccessFirstAttempt(t *testing.T) {
	var requests int

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		_, _ = w.Write([]byte(resultsBody(1, 0)))
	}))
	defer server.Close()

	client, sleeper := newTestClient(t, server.URL)

	payload, err := client.Fetch(context.Background(), "2023/5/results")

	require.NoError(t, err)
	require.NotNil(t, payload.Envelope.MRData.RaceTable)
	assert.Equal(t, "Miami Grand Prix", payload.Envelope.MRData.RaceTable.Races[0].RaceName)
	assert.Equal(t, 1, requests)
	assert.Empty(t, sleeper.slept, "first attempt must not be delayed")
}

func TestFetchRetriesAfterRateLimitThenResets(t *testing.T) {
	var requests int

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}

		_, _ = w.Write([]byte(resultsBody(1, 0)))
	}))
	defer server.Close()

	client, sleeper := newTestClient(t, server.URL)

	payload, err := client.Fetch(context.Background(), "2023/5/results")

	require.NoError(t, err)
	require.NotNil(t, payload)
	assert.Equal(t, 2, requests)

	// The single retry slept the doubled delay, and the success that
	// followed reset the limiter to the crept base.
	require.Len(t, sleeper.slept, 1)
	assert.Equal(t, 2*time.Second, sleeper.slept[0])
	assert.Equal(t, 1250*time.Millisecond, client.Limiter().Delay())
	assert.Zero(t, client.Limiter().Streak())
}

func TestFetchHonorsRetryAfterHeader(t *testing.T) {
	var requests int

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests == 1 {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}

		_, _ = w.Write([]byte(resultsBody(1, 0)))
	}))
	defer server.Close()

	client, sleeper := newTestClient(t, server.URL)

	_, err := client.Fetch(context.Background(), "2023/5/results")

	require.NoError(t, err)
	require.Len(t, sleeper.slept, 1)
	assert.Equal(t, 7*time.Second, sleeper.slept[0], "explicit Retry-After beats the doubled delay")
}

func TestFetchNoDataFor404(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	client, sleeper := newTestClient(t, server.URL)

	payload, err := client.Fetch(context.Background(), "2031/22/results")

	require.ErrorIs(t, err, ErrNoData)
	assert.Nil(t, payload)
	assert.Empty(t, sleeper.slept, "no-data responses are never retried")
}

func TestFetchExhaustsRetriesOnServerErrors(t *testing.T) {
	var requests int

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client, sleeper := newTestClient(t, server.URL)

	payload, err := client.Fetch(context.Background(), "2023/5/results")

	require.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Contains(t, err.Error(), "502")
	assert.Nil(t, payload)
	assert.Equal(t, 4, requests, "MaxRetries bounds the attempt count")
	assert.Len(t, sleeper.slept, 3, "every attempt after the first sleeps")
}

func TestFetchMalformedBodyIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"MRData": not json`))
	}))
	defer server.Close()

	client, _ := newTestClient(t, server.URL)

	_, err := client.Fetch(context.Background(), "2023/5/results")

	require.ErrorIs(t, err, ErrMalformedResponse)
}

func TestFetchPagesFollowsOffsets(t *testing.T) {
	var offsets []string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		offset := r.URL.Query().Get("offset")
		offsets = append(offsets, offset)

		switch offset {
		case "0":
			_, _ = w.Write([]byte(resultsBody(150, 0)))
		default:
			_, _ = w.Write([]byte(resultsBody(150, 100)))
		}
	}))
	defer server.Close()

	client, _ := newTestClient(t, server.URL)

	pages, err := client.FetchPages(context.Background(), "2023/5/results")

	require.NoError(t, err)
	assert.Len(t, pages, 2)
	assert.Equal(t, []string{"0", "100"}, offsets)
}

func TestFetchStopsOnContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client, _ := newTestClient(t, server.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Fetch(ctx, "2023/5/results")

	require.Error(t, err)
	require.True(t, errors.Is(err, context.Canceled) || errors.Is(err, ErrRetriesExhausted))
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 5*time.Second, parseRetryAfter("5"))
	assert.Equal(t, time.Duration(0), parseRetryAfter(""))
	assert.Equal(t, time.Duration(0), parseRetryAfter("garbage"))
	assert.Equal(t, time.Duration(0), parseRetryAfter("-3"))
}
