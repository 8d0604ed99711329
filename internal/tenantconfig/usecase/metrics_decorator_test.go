package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/allisson/tenantconfig/internal/metrics"
	"github.com/allisson/tenantconfig/internal/tenantconfig/domain"
)

// mockBusinessMetrics is a mock implementation of metrics.BusinessMetrics for testing.
type mockBusinessMetrics struct {
	mock.Mock
}

func (m *mockBusinessMetrics) RecordOperation(ctx context.Context, domain, operation, status string) {
	m.Called(ctx, domain, operation, status)
}

func (m *mockBusinessMetrics) RecordDuration(
	ctx context.Context,
	domain, operation string,
	duration time.Duration,
	status string,
) {
	m.Called(ctx, domain, operation, duration, status)
}

var _ metrics.BusinessMetrics = (*mockBusinessMetrics)(nil)

func expectOperation(ctx context.Context, m *mockBusinessMetrics, operation, status string) {
	m.On("RecordOperation", ctx, "tenant_config", operation, status).Return().Once()
	m.On("RecordDuration", ctx, "tenant_config", operation, mock.AnythingOfType("time.Duration"), status).
		Return().
		Once()
}

func TestNewConfigUseCaseWithMetrics(t *testing.T) {
	f := newFixture(t)
	decorator := NewConfigUseCaseWithMetrics(f.uc, &mockBusinessMetrics{})

	assert.NotNil(t, decorator)
	assert.Implements(t, (*ConfigUseCase)(nil), decorator)
}

func TestConfigMetricsDecorator(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.Must(uuid.NewV7())

	t.Run("Success_RecordsSuccessMetrics", func(t *testing.T) {
		f := newFixture(t)
		mockMetrics := &mockBusinessMetrics{}
		decorator := NewConfigUseCaseWithMetrics(f.uc, mockMetrics)

		expectOperation(ctx, mockMetrics, "config_create", "success")
		expectOperation(ctx, mockMetrics, "config_get", "success")
		expectOperation(ctx, mockMetrics, "config_list", "success")
		expectOperation(ctx, mockMetrics, "config_delete", "success")

		_, err := decorator.CreateConfig(ctx, tenantID, domain.KeyMailSMTP, smtpConfig())
		require.NoError(t, err)
		_, err = decorator.GetConfig(ctx, tenantID, domain.KeyMailSMTP, true)
		require.NoError(t, err)
		_, err = decorator.ListConfigs(ctx, tenantID)
		require.NoError(t, err)
		_, err = decorator.DeleteConfig(ctx, tenantID, domain.KeyMailSMTP)
		require.NoError(t, err)

		mockMetrics.AssertExpectations(t)
	})

	t.Run("Error_RecordsErrorMetrics", func(t *testing.T) {
		f := newFixture(t)
		mockMetrics := &mockBusinessMetrics{}
		decorator := NewConfigUseCaseWithMetrics(f.uc, mockMetrics)

		expectOperation(ctx, mockMetrics, "branding_get", "error")
		expectOperation(ctx, mockMetrics, "integration_get", "error")
		expectOperation(ctx, mockMetrics, "config_update", "error")

		_, err := decorator.GetBrandingConfig(ctx, tenantID)
		assert.ErrorIs(t, err, domain.ErrBrandingConfigMissing)
		_, err = decorator.GetIntegrationConfig(ctx, tenantID, domain.KeyPaymentPayPal)
		assert.ErrorIs(t, err, domain.ErrIntegrationConfigMissing)
		_, err = decorator.UpdateConfig(ctx, tenantID, domain.KeyPaymentPayPal, &domain.PayPalConfig{Mode: "test"})
		assert.Error(t, err)

		mockMetrics.AssertExpectations(t)
	})

	t.Run("PlatformBranding_NotRecorded", func(t *testing.T) {
		f := newFixture(t)
		mockMetrics := &mockBusinessMetrics{}
		decorator := NewConfigUseCaseWithMetrics(f.uc, mockMetrics)

		branding := decorator.PlatformBranding()
		assert.Equal(t, "Back Office", branding.Identity.CompanyName)
		mockMetrics.AssertNotCalled(t, "RecordOperation", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}
