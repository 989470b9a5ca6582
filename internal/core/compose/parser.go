package compose

import (
	"context"
	"fmt"
	"strings"

	"github.com/compose-spec/compose-go/v2/loader"
	"github.com/compose-spec/compose-go/v2/types"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Service Shape
// =============================================================================

// ServiceShape is the subset of a Compose service a task definition needs:
// the container port to expose and the environment to inject. Image is
// intentionally absent - images come from the stack's own repository.
type ServiceShape struct {
	Name          string
	ContainerPort int
	Environment   map[string]string
}

// =============================================================================
// Extraction
// =============================================================================

// ExtractServiceShape parses Compose YAML and returns the shape of one
// service. If serviceName is empty the spec must define exactly one service.
// This is a pure function - no I/O, no side effects.
func ExtractServiceShape(yamlContent string, serviceName string) (*ServiceShape, error) {
	if strings.TrimSpace(yamlContent) == "" {
		return nil, ErrEmptyInput
	}

	project, err := loadComposeSpec(yamlContent)
	if err != nil {
		return nil, err
	}
	if len(project.Services) == 0 {
		return nil, ErrNoServices
	}

	svc, err := selectService(project, serviceName)
	if err != nil {
		return nil, err
	}

	shape := &ServiceShape{
		Name:        svc.Name,
		Environment: make(map[string]string),
	}

	for k, v := range svc.Environment {
		if v != nil {
			shape.Environment[k] = *v
		}
	}

	port, err := containerPort(svc)
	if err != nil {
		return nil, err
	}
	shape.ContainerPort = port

	return shape, nil
}

// loadComposeSpec loads a compose spec using compose-go.
func loadComposeSpec(yamlContent string) (*types.Project, error) {
	// Parse YAML into a map first so the loader gets a config it can type.
	var dict map[string]interface{}
	if err := yaml.Unmarshal([]byte(yamlContent), &dict); err != nil {
		return nil, NewParseError("", "invalid YAML syntax", ErrInvalidYAML)
	}
	if dict == nil {
		return nil, NewParseError("", "invalid YAML syntax", ErrInvalidYAML)
	}

	project, err := loader.LoadWithContext(context.Background(), types.ConfigDetails{
		ConfigFiles: []types.ConfigFile{
			{
				Content: []byte(yamlContent),
				Config:  dict,
			},
		},
	}, func(opts *loader.Options) {
		opts.SetProjectName("slipway-temp", false)
		opts.SkipValidation = false
		opts.SkipInterpolation = false
		// In-memory content: no paths to resolve, no external files to extend.
		opts.SkipNormalization = true
		opts.SkipExtends = true
	})
	if err != nil {
		return nil, NewParseError("", err.Error(), ErrInvalidYAML)
	}

	return project, nil
}

// selectService picks the named service, or the only one if unnamed.
func selectService(project *types.Project, serviceName string) (types.ServiceConfig, error) {
	if serviceName == "" {
		if len(project.Services) > 1 {
			return types.ServiceConfig{}, NewParseError("services",
				fmt.Sprintf("spec defines %d services", len(project.Services)), ErrAmbiguousService)
		}
		for _, svc := range project.Services {
			return svc, nil
		}
	}
	if svc, ok := project.Services[serviceName]; ok {
		return svc, nil
	}
	return types.ServiceConfig{}, NewParseError("services."+serviceName, "service not found", ErrServiceNotFound)
}

// containerPort derives the service's container port: the first published
// port's target, falling back to the lowest exposed port, then zero (caller
// falls back to the spec default).
func containerPort(svc types.ServiceConfig) (int, error) {
	for i, p := range svc.Ports {
		if p.Target == 0 || p.Target > 65535 {
			return 0, NewParseError(
				fmt.Sprintf("services.%s.ports[%d]", svc.Name, i),
				"target port must be between 1 and 65535",
				ErrInvalidPort,
			)
		}
	}
	if len(svc.Ports) > 0 {
		return int(svc.Ports[0].Target), nil
	}

	if len(svc.Expose) > 0 {
		lowest := 0
		for _, e := range svc.Expose {
			var port int
			if _, err := fmt.Sscanf(e, "%d", &port); err != nil || port < 1 || port > 65535 {
				return 0, NewParseError(
					"services."+svc.Name+".expose",
					"exposed port must be between 1 and 65535",
					ErrInvalidPort,
				)
			}
			if lowest == 0 || port < lowest {
				lowest = port
			}
		}
		return lowest, nil
	}

	return 0, nil
}
