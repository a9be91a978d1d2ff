package smoketest

import (
	"github.com/google/uuid"

	"github.com/skybrain/formrelay/internal/domain/model"
)

// bodies is one valid and one invalid payload for a form.
type bodies struct {
	valid   map[string]interface{}
	invalid map[string]interface{}
}

// caseFor builds the payloads for ft. Valid addresses carry a fresh suffix so
// sheet rows from separate runs can be told apart.
func caseFor(ft model.FormType) bodies {
	tag := uuid.NewString()[:8]
	email := "smoke+" + tag + "@example.com"

	switch ft {
	case model.FormContact:
		return bodies{
			valid: map[string]interface{}{
				"firstName":    "Smoke",
				"lastName":     "Test",
				"email":        email,
				"interestArea": "operations",
				"message":      "Automated smoke test " + tag,
			},
			invalid: map[string]interface{}{
				"firstName": "S",
				"email":     "not-an-email",
				"message":   "short",
			},
		}
	case model.FormBetaSignup:
		return bodies{
			valid: map[string]interface{}{
				"firstName": "Smoke",
				"lastName":  "Test",
				"email":     email,
				"country":   "India",
				"interests": []string{"agriculture"},
			},
			invalid: map[string]interface{}{
				"firstName": "Smoke",
				"email":     email,
			},
		}
	case model.FormDemoRequest:
		return bodies{
			valid: map[string]interface{}{
				"name":     "Smoke Test",
				"email":    email,
				"interest": "mapping",
				"message":  "Automated smoke test " + tag,
			},
			invalid: map[string]interface{}{
				"name":  "Smoke Test",
				"email": email,
			},
		}
	default:
		return bodies{
			valid:   map[string]interface{}{"email": email},
			invalid: map[string]interface{}{"email": "missing-at-sign"},
		}
	}
}
