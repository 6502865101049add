package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	goCartes "github.com/MrEthical07/goCartes"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSetupWithoutEndpointIsNoop(t *testing.T) {
	before := otel.GetTracerProvider()
	shutdown, err := Setup(context.Background(), Config{ServiceName: "gocartes"}, zerolog.Nop())
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
	assert.Equal(t, before, otel.GetTracerProvider())
}

func TestTracedClientExportsRequestSpans(t *testing.T) {
	previous := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	exporter := tracetest.NewInMemoryExporter()
	shutdown, err := Install(context.Background(),
		Config{ServiceName: "gocartes-test", ServiceVersion: "0.0.1"},
		sdktrace.WithSyncer(exporter),
	)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"message":"ok"}`))
	}))
	t.Cleanup(srv.Close)

	cfg := goCartes.DefaultConfig()
	cfg.API.BaseURL = srv.URL
	cfg.Tracing.Enabled = true
	client, err := goCartes.New().WithConfig(cfg).Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.ResetPassword(context.Background(), goCartes.ResetPasswordRequest{Username: "alice"}))
	require.NoError(t, shutdown(context.Background()))

	spans := exporter.GetSpans()
	require.NotEmpty(t, spans)
	res := spans[0].Resource
	require.NotNil(t, res)
	assert.Contains(t, res.String(), "gocartes-test")
}
