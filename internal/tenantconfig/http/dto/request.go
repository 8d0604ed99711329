// Package dto provides data transfer objects for tenant config HTTP requests and responses.
package dto

import (
	"encoding/json"
	"strconv"
	"strings"

	validation "github.com/jellydator/validation"

	"github.com/allisson/tenantconfig/internal/tenantconfig/domain"
)

// ConfigValueRequest carries the JSON value for a config key. The key comes from
// the URL and selects the value's shape.
type ConfigValueRequest struct {
	Value json.RawMessage `json:"value" binding:"required"`
}

// Validate checks that a value is present.
func (r *ConfigValueRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Value,
			validation.Required,
			validation.By(func(any) error {
				if strings.TrimSpace(string(r.Value)) == "null" {
					return validation.NewError("validation_value_null", "value must not be null")
				}
				return nil
			}),
		),
	)
}

// ToValue decodes the request value into the type registered for key.
func (r *ConfigValueRequest) ToValue(key domain.Key) (domain.Value, error) {
	return domain.DecodeValue(key, r.Value)
}

// BatchQuery is the parsed query string of a batch read.
type BatchQuery struct {
	Keys           []domain.Key
	DecryptSecrets bool
	UseEnvDefaults bool
}

// ParseBatchQuery parses keys (comma separated, required), decrypt (default false)
// and defaults (default true).
func ParseBatchQuery(keys, decrypt, defaults string) (BatchQuery, error) {
	var q BatchQuery
	for _, part := range strings.Split(keys, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, err := domain.ParseKey(part)
		if err != nil {
			return BatchQuery{}, err
		}
		q.Keys = append(q.Keys, k)
	}
	if len(q.Keys) == 0 {
		return BatchQuery{}, validation.Errors{"keys": validation.ErrRequired}
	}

	var err error
	if q.DecryptSecrets, err = parseBool(decrypt, false); err != nil {
		return BatchQuery{}, validation.Errors{"decrypt": err}
	}
	if q.UseEnvDefaults, err = parseBool(defaults, true); err != nil {
		return BatchQuery{}, validation.Errors{"defaults": err}
	}
	return q, nil
}

func parseBool(s string, fallback bool) (bool, error) {
	if s == "" {
		return fallback, nil
	}
	return strconv.ParseBool(s)
}
