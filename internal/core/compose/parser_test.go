package compose

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const singleServiceYAML = `
services:
  web:
    image: nginx:alpine
    ports:
      - "8080:3000"
    environment:
      APP_ENV: production
      LOG_LEVEL: info
`

const multiServiceYAML = `
services:
  web:
    image: nginx:alpine
    ports:
      - "80:80"
  worker:
    image: busybox
    environment:
      QUEUE: jobs
`

func TestExtractServiceShape_SingleService(t *testing.T) {
	shape, err := ExtractServiceShape(singleServiceYAML, "")
	require.NoError(t, err)

	assert.Equal(t, "web", shape.Name)
	// Target (container) port, not the published host port.
	assert.Equal(t, 3000, shape.ContainerPort)
	assert.Equal(t, map[string]string{
		"APP_ENV":   "production",
		"LOG_LEVEL": "info",
	}, shape.Environment)
}

func TestExtractServiceShape_NamedService(t *testing.T) {
	shape, err := ExtractServiceShape(multiServiceYAML, "worker")
	require.NoError(t, err)

	assert.Equal(t, "worker", shape.Name)
	assert.Zero(t, shape.ContainerPort) // no ports declared
	assert.Equal(t, "jobs", shape.Environment["QUEUE"])
}

func TestExtractServiceShape_AmbiguousService(t *testing.T) {
	_, err := ExtractServiceShape(multiServiceYAML, "")
	assert.ErrorIs(t, err, ErrAmbiguousService)
}

func TestExtractServiceShape_ServiceNotFound(t *testing.T) {
	_, err := ExtractServiceShape(multiServiceYAML, "db")
	require.ErrorIs(t, err, ErrServiceNotFound)

	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, "services.db", parseErr.Field)
}

func TestExtractServiceShape_ExposedPortFallback(t *testing.T) {
	yamlContent := `
services:
  api:
    image: example/api
    expose:
      - "9090"
`
	shape, err := ExtractServiceShape(yamlContent, "")
	require.NoError(t, err)
	assert.Equal(t, 9090, shape.ContainerPort)
}

func TestExtractServiceShape_ExposedPortLowestNumeric(t *testing.T) {
	// "10" sorts before "9" as a string; the numeric minimum must win.
	yamlContent := `
services:
  api:
    image: example/api
    expose:
      - "10"
      - "9"
`
	shape, err := ExtractServiceShape(yamlContent, "")
	require.NoError(t, err)
	assert.Equal(t, 9, shape.ContainerPort)
}

func TestExtractServiceShape_EmptyInput(t *testing.T) {
	_, err := ExtractServiceShape("   \n", "")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestExtractServiceShape_InvalidYAML(t *testing.T) {
	_, err := ExtractServiceShape("services: [:bad", "")
	assert.ErrorIs(t, err, ErrInvalidYAML)
}

func TestExtractServiceShape_NoServices(t *testing.T) {
	_, err := ExtractServiceShape("volumes:\n  data: {}\n", "")
	// compose-go may reject a service-less file outright or return an empty
	// project; either way extraction must fail.
	assert.Error(t, err)
}
