package httpapi

import (
	"encoding/json"
	"net/http"
	"regexp"
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

var (
	allowedRoles      = map[string]bool{"buyer": true, "seller": true, "both": true}
	allowedCategories = map[string]bool{
		"informatique": true, "logistique": true, "btp": true,
		"industrie": true, "mobilier": true, "autre": true,
	}
	allowedConditions = map[string]bool{"excellent": true, "good": true, "fair": true}
	allowedStatuses   = map[string]bool{
		"pending": true, "paid": true, "shipped": true,
		"delivered": true, "canceled": true,
	}
)

func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return badRequest("malformed request body")
	}
	return nil
}

func validEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// normalizeRole maps unknown roles to "buyer" rather than rejecting them
func normalizeRole(role string) string {
	if allowedRoles[role] {
		return role
	}
	return "buyer"
}

// coercePrice accepts the price as either a JSON number or a numeric
// string. Clients submit form values as strings; both must land in the
// store as the same float64.
func coercePrice(v interface{}) (float64, bool) {
	switch p := v.(type) {
	case float64:
		return p, true
	case string:
		var f float64
		if err := json.Unmarshal([]byte(p), &f); err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
