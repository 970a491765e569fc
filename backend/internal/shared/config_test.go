package shared

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvironment(t *testing.T) {
	t.Run("Production", func(t *testing.T) {
		cfg := &ServiceConfig{Environment: "production"}
		assert.True(t, IsProduction(cfg))
		assert.False(t, IsDevelopment(cfg))
	})

	t.Run("Development", func(t *testing.T) {
		cfg := &ServiceConfig{Environment: "development"}
		assert.False(t, IsProduction(cfg))
		assert.True(t, IsDevelopment(cfg))
	})
}

func TestValidateServiceConfig(t *testing.T) {
	valid := func() *ServiceConfig {
		return &ServiceConfig{
			ServiceName: "student-records",
			HTTPPort:    DefaultHTTPPort,
			MongoDB:     MongoConfig{URI: "mongodb://localhost:27017", Database: "StudentRecords"},
			Security:    SecurityConfig{JWTSecret: "secret"},
			Upload:      UploadConfig{BatchSize: DefaultBatchSize},
		}
	}

	assert.NoError(t, ValidateServiceConfig(valid()))

	cfg := valid()
	cfg.Security.JWTSecret = ""
	assert.Error(t, ValidateServiceConfig(cfg))

	cfg = valid()
	cfg.Upload.BatchSize = 0
	assert.Error(t, ValidateServiceConfig(cfg))
}
