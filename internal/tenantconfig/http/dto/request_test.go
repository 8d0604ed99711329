package dto

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/tenantconfig/internal/tenantconfig/domain"
)

func TestConfigValueRequest(t *testing.T) {
	t.Run("Success_DecodesByKey", func(t *testing.T) {
		req := ConfigValueRequest{Value: json.RawMessage(`{"api_key":"maps-key"}`)}
		require.NoError(t, req.Validate())

		value, err := req.ToValue(domain.KeyMapsGoogle)
		require.NoError(t, err)
		assert.Equal(t, &domain.GoogleMapsConfig{APIKey: "maps-key"}, value)
	})

	t.Run("Error_Null", func(t *testing.T) {
		req := ConfigValueRequest{Value: json.RawMessage(`null`)}
		assert.Error(t, req.Validate())
	})

	t.Run("Error_Empty", func(t *testing.T) {
		req := ConfigValueRequest{}
		assert.Error(t, req.Validate())
	})

	t.Run("Error_WrongShape", func(t *testing.T) {
		req := ConfigValueRequest{Value: json.RawMessage(`["a"]`)}
		_, err := req.ToValue(domain.KeyTaxRules)
		assert.ErrorIs(t, err, domain.ErrInvalidConfigValue)
	})
}

func TestParseBatchQuery(t *testing.T) {
	q, err := ParseBatchQuery(" mail.smtp, ,tax.rules", "", "")
	require.NoError(t, err)
	assert.Equal(t, []domain.Key{domain.KeyMailSMTP, domain.KeyTaxRules}, q.Keys)
	assert.False(t, q.DecryptSecrets)
	assert.True(t, q.UseEnvDefaults)

	q, err = ParseBatchQuery("mail.smtp", "true", "false")
	require.NoError(t, err)
	assert.True(t, q.DecryptSecrets)
	assert.False(t, q.UseEnvDefaults)

	_, err = ParseBatchQuery("", "", "")
	assert.Error(t, err)

	_, err = ParseBatchQuery("mail.smtp,unknown", "", "")
	assert.ErrorIs(t, err, domain.ErrUnknownConfigKey)

	_, err = ParseBatchQuery("mail.smtp", "maybe", "")
	assert.Error(t, err)
}
