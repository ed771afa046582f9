package service

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/noah-isme/moracollect-api/internal/models"
)

var recognisedClientMetadataKeys = map[string]int{
	"app_version": 64,
	"platform":    64,
	"user_agent":  512,
	"recorder":    64,
	"locale":      35,
}

// normaliseClientMetadata trims and bounds recognised keys, keeps unknown keys
// verbatim and rejects bags whose encoding exceeds maxBytes.
func normaliseClientMetadata(in models.ClientMetadata, maxBytes int) (models.ClientMetadata, error) {
	out := make(models.ClientMetadata, len(in))
	for key, value := range in {
		limit, recognised := recognisedClientMetadataKeys[key]
		if !recognised {
			out[key] = value
			continue
		}
		text, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("client_metadata.%s must be a string", key)
		}
		text = strings.TrimSpace(text)
		if len(text) > limit {
			return nil, fmt.Errorf("client_metadata.%s exceeds %d bytes", key, limit)
		}
		if text != "" {
			out[key] = text
		}
	}
	if maxBytes > 0 {
		encoded, err := json.Marshal(out)
		if err != nil {
			return nil, fmt.Errorf("client_metadata is not encodable: %w", err)
		}
		if len(encoded) > maxBytes {
			return nil, fmt.Errorf("client_metadata exceeds %d bytes", maxBytes)
		}
	}
	return out, nil
}
