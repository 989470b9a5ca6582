package stack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

func validSpec() Spec {
	return Spec{
		Name:          "demo",
		Region:        "us-east-1",
		ConnectionARN: "arn:aws:codestar-connections:us-east-1:123456789012:connection/abc-def",
		RepoOwner:     "acme",
		RepoName:      "widgets",
		Branch:        "main",
	}
}

// =============================================================================
// Defaults Tests
// =============================================================================

func TestSpec_ApplyDefaults(t *testing.T) {
	spec := validSpec()
	spec.ApplyDefaults()

	assert.Equal(t, DefaultContainerPort, spec.ContainerPort)
	assert.Equal(t, DefaultDesiredCount, spec.DesiredCount)
	assert.Equal(t, DefaultCPU, spec.CPU)
	assert.Equal(t, DefaultMemory, spec.Memory)
	assert.Equal(t, DefaultHealthCheckPath, spec.HealthCheckPath)
}

func TestSpec_ApplyDefaults_KeepsExplicitValues(t *testing.T) {
	spec := validSpec()
	spec.ContainerPort = 8080
	spec.DesiredCount = 3
	spec.CPU = 512
	spec.Memory = 1024
	spec.HealthCheckPath = "/healthz"
	spec.ApplyDefaults()

	assert.Equal(t, 8080, spec.ContainerPort)
	assert.Equal(t, 3, spec.DesiredCount)
	assert.Equal(t, 512, spec.CPU)
	assert.Equal(t, 1024, spec.Memory)
	assert.Equal(t, "/healthz", spec.HealthCheckPath)
}

// =============================================================================
// Validation Tests
// =============================================================================

func TestSpec_Validate_Success(t *testing.T) {
	spec := validSpec()
	spec.ApplyDefaults()
	require.NoError(t, spec.Validate())
}

func TestSpec_Validate_CodeConnectionsARN(t *testing.T) {
	spec := validSpec()
	spec.ConnectionARN = "arn:aws:codeconnections:eu-west-1:123456789012:connection/xyz"
	spec.ApplyDefaults()
	assert.NoError(t, spec.Validate())
}

func TestSpec_Validate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Spec)
		wantErr error
	}{
		{"missing name", func(s *Spec) { s.Name = "" }, ErrNameRequired},
		{"uppercase name", func(s *Spec) { s.Name = "Demo" }, ErrNameInvalid},
		{"leading digit", func(s *Spec) { s.Name = "1demo" }, ErrNameInvalid},
		{"trailing hyphen", func(s *Spec) { s.Name = "demo-" }, ErrNameInvalid},
		{"underscore", func(s *Spec) { s.Name = "de_mo" }, ErrNameInvalid},
		{"too long", func(s *Spec) { s.Name = "averyveryverylongstackname" }, ErrNameTooLong},
		{"missing connection", func(s *Spec) { s.ConnectionARN = "" }, ErrConnectionRequired},
		{"wrong arn service", func(s *Spec) { s.ConnectionARN = "arn:aws:iam::1:role/x" }, ErrConnectionInvalid},
		{"missing owner", func(s *Spec) { s.RepoOwner = "" }, ErrRepoOwnerRequired},
		{"missing repo", func(s *Spec) { s.RepoName = "" }, ErrRepoNameRequired},
		{"missing branch", func(s *Spec) { s.Branch = "" }, ErrBranchRequired},
		{"port zero", func(s *Spec) { s.ContainerPort = -1 }, ErrInvalidPort},
		{"port too high", func(s *Spec) { s.ContainerPort = 70000 }, ErrInvalidPort},
		{"desired zero", func(s *Spec) { s.DesiredCount = -2 }, ErrInvalidDesired},
		{"bad cpu", func(s *Spec) { s.CPU = 300 }, ErrInvalidTaskSize},
		{"bad memory for cpu", func(s *Spec) { s.CPU = 256; s.Memory = 4096 }, ErrInvalidTaskSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := validSpec()
			spec.ApplyDefaults()
			tt.mutate(&spec)
			assert.ErrorIs(t, spec.Validate(), tt.wantErr)
		})
	}
}

func TestSpec_SourceRepository(t *testing.T) {
	spec := validSpec()
	assert.Equal(t, "acme/widgets", spec.SourceRepository())
}

// =============================================================================
// Fargate Size Tests
// =============================================================================

func TestValidTaskSize(t *testing.T) {
	valid := [][2]int{
		{256, 512}, {256, 1024}, {256, 2048},
		{512, 1024}, {512, 4096},
		{1024, 2048}, {1024, 8192},
		{2048, 4096}, {2048, 16384},
		{4096, 8192}, {4096, 30720},
	}
	for _, c := range valid {
		assert.True(t, ValidTaskSize(c[0], c[1]), "cpu=%d memory=%d", c[0], c[1])
	}

	invalid := [][2]int{
		{256, 256},   // below range
		{256, 4096},  // above range
		{512, 1536},  // off-step
		{128, 512},   // unknown cpu
		{1024, 1024}, // below range
		{4096, 0},
	}
	for _, c := range invalid {
		assert.False(t, ValidTaskSize(c[0], c[1]), "cpu=%d memory=%d", c[0], c[1])
	}
}
