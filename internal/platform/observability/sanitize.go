package observability

import "unicode"

// sanitizeString drops control characters and caps the rune count so request values cannot forge log lines.
func sanitizeString(value string, limit int) string {
	cleaned := make([]rune, 0, len(value))
	for _, r := range value {
		if len(cleaned) == limit {
			break
		}
		if unicode.IsControl(r) {
			continue
		}
		cleaned = append(cleaned, r)
	}
	return string(cleaned)
}

// SanitizeRoute cleans a chi route pattern for logging.
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return sanitizeString(route, 180)
}

// SanitizeMethod cleans an HTTP method for logging.
func SanitizeMethod(method string) string {
	return sanitizeString(method, 10)
}

// SanitizeID limits user and shopper identifiers written to logs.
func SanitizeID(id string) string {
	return sanitizeString(id, 64)
}
