package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel"

	"github.com/squadpage/mailroom/pkg/config"
)

func TestInit_Success(t *testing.T) {
	cfg := config.Observability{
		ServiceName: "mailroom-test",
		TracingURL:  "localhost:4318",
	}

	shutdown, err := Init(cfg)
	assert.NoError(t, err)
	assert.NotNil(t, shutdown)

	tp := otel.GetTracerProvider()
	assert.NotNil(t, tp)

	shutdown()
}

func TestInit_NoTracingURLIsNoop(t *testing.T) {
	cfg := config.Observability{
		ServiceName: "mailroom-test",
	}

	shutdown, err := Init(cfg)
	assert.NoError(t, err)
	assert.NotNil(t, shutdown)
	shutdown()
}

func TestInit_EmptyServiceName(t *testing.T) {
	cfg := config.Observability{
		TracingURL: "localhost:4318",
	}

	shutdown, err := Init(cfg)
	assert.Error(t, err)
	assert.Nil(t, shutdown)
}
