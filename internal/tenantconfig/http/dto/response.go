package dto

import (
	"time"

	"github.com/allisson/tenantconfig/internal/tenantconfig/domain"
)

// ConfigMetadataResponse describes a stored config without its value.
type ConfigMetadataResponse struct {
	Key         string    `json:"key"`
	HasValue    bool      `json:"has_value"`
	IsEncrypted bool      `json:"is_encrypted"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ConfigResponse carries a decoded config value.
// SECURITY: for encrypted keys Value holds plaintext credentials.
type ConfigResponse struct {
	Key         string       `json:"key"`
	IsEncrypted bool         `json:"is_encrypted"`
	Value       domain.Value `json:"value"`
}

// ListConfigsResponse lists config metadata of a tenant.
type ListConfigsResponse struct {
	Data []ConfigMetadataResponse `json:"data"`
}

// BatchResponse is the result of a multi-key read. Unset or unreadable keys map to null.
type BatchResponse struct {
	Values       map[string]domain.Value `json:"values"`
	DefaultsUsed []string                `json:"defaults_used"`
}

// MapMetadataToResponse converts config metadata to an API response.
func MapMetadataToResponse(m *domain.ConfigMetadata) ConfigMetadataResponse {
	return ConfigMetadataResponse{
		Key:         string(m.Key),
		HasValue:    m.HasValue,
		IsEncrypted: m.IsEncrypted,
		UpdatedAt:   m.UpdatedAt,
	}
}

// MapMetadataListToResponse converts a metadata slice to a list response.
func MapMetadataListToResponse(list []domain.ConfigMetadata) ListConfigsResponse {
	data := make([]ConfigMetadataResponse, 0, len(list))
	for i := range list {
		data = append(data, MapMetadataToResponse(&list[i]))
	}
	return ListConfigsResponse{Data: data}
}

// MapValueToResponse converts a decoded value to an API response.
func MapValueToResponse(key domain.Key, value domain.Value) ConfigResponse {
	return ConfigResponse{
		Key:         string(key),
		IsEncrypted: key.Encrypted(),
		Value:       value,
	}
}

// MapBatchToResponse converts a batch result to an API response.
func MapBatchToResponse(result *domain.BatchResult) BatchResponse {
	values := make(map[string]domain.Value, len(result.Values))
	for k, v := range result.Values {
		values[string(k)] = v
	}
	used := make([]string, 0, len(result.DefaultsUsed))
	for _, k := range result.DefaultsUsed {
		used = append(used, string(k))
	}
	return BatchResponse{Values: values, DefaultsUsed: used}
}
