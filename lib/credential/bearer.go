package credential

import "strings"

const bearerScheme = "bearer"

// ExtractBearerToken pulls the token out of an Authorization header value.
// The scheme is matched case-insensitively and may be followed by any number
// of spaces. Other schemes and a bare "Bearer" yield false.
func ExtractBearerToken(header string) (string, bool) {
	if len(header) <= len(bearerScheme) || !strings.EqualFold(header[:len(bearerScheme)], bearerScheme) {
		return "", false
	}

	rest := header[len(bearerScheme):]
	if rest[0] != ' ' {
		return "", false
	}

	token := strings.TrimSpace(strings.TrimLeft(rest, " "))
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", false
	}

	return token, true
}
