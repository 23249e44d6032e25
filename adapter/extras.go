package adapter

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jherleth/salvo-ai/model"
)

// MaxExtrasKeys caps the number of top-level keys a Scenario's provider
// extras map may declare.
const MaxExtrasKeys = 10

// MaxExtrasBytes caps the serialized size of a Scenario's provider extras
// map.
const MaxExtrasBytes = 4096

// secretKeyBlocklist lists substrings that, when found case-insensitively in
// an extras key, mark the key as secret-like and therefore rejected. This
// keeps scenario files (which are often checked into source control) from
// smuggling credentials through the adapter-extras escape hatch.
var secretKeyBlocklist = []string{
	"api_key", "apikey", "secret", "token", "password", "authorization", "bearer", "credential",
}

// ErrExtrasRejected is returned by ValidateExtras when the extras map
// violates the secret-key blocklist or the size/key-count caps. Per §7 this
// aborts the entire suite before any trial starts.
type ErrExtrasRejected struct {
	Reason string
}

func (e *ErrExtrasRejected) Error() string {
	return fmt.Sprintf("adapter: extras rejected: %s", e.Reason)
}

// ValidateExtras rejects any key case-insensitively matching the secret-like
// blocklist, more than MaxExtrasKeys keys, or a serialized size over
// MaxExtrasBytes.
func ValidateExtras(extras model.Extras) error {
	if len(extras) == 0 {
		return nil
	}
	if len(extras) > MaxExtrasKeys {
		return &ErrExtrasRejected{Reason: fmt.Sprintf("extras declares %d keys, exceeding the cap of %d", len(extras), MaxExtrasKeys)}
	}
	for key := range extras {
		lower := strings.ToLower(key)
		for _, blocked := range secretKeyBlocklist {
			if strings.Contains(lower, blocked) {
				return &ErrExtrasRejected{Reason: fmt.Sprintf("key %q looks like a secret (matches %q)", key, blocked)}
			}
		}
	}
	encoded, err := json.Marshal(extras)
	if err != nil {
		return &ErrExtrasRejected{Reason: fmt.Sprintf("extras are not serializable: %v", err)}
	}
	if len(encoded) > MaxExtrasBytes {
		return &ErrExtrasRejected{Reason: fmt.Sprintf("extras serialize to %d bytes, exceeding the cap of %d", len(encoded), MaxExtrasBytes)}
	}
	return nil
}
