package service

import (
	"fmt"
	"strings"

	"signin-relay/internal/config"
	"signin-relay/internal/model"
)

// ResolveSigninPayload builds the sign-in payload. A non-blank override
// replaces the configured identity; the password and lob always come from
// configuration.
func ResolveSigninPayload(creds config.SigninConfig, override string) (model.SigninPayload, error) {
	loginID := strings.TrimSpace(override)
	if loginID == "" {
		loginID = creds.LoginID
	}
	if loginID == "" {
		return model.SigninPayload{}, &ConfigError{Reason: fmt.Sprintf(
			"Missing signin loginId. Provide outletCode/loginId in request or set %s (or %s).",
			config.LoginIDEnv[0], config.LoginIDEnv[1])}
	}
	if creds.Password == "" {
		return model.SigninPayload{}, &ConfigError{Reason: fmt.Sprintf(
			"Missing signin password. Set %s (or %s).",
			config.PasswordEnv[0], config.PasswordEnv[1])}
	}

	lob := creds.LOB
	if lob == "" {
		lob = config.DefaultLOB
	}

	return model.SigninPayload{
		LoginID:         loginID,
		Password:        creds.Password,
		UnlimitedExpiry: false,
		LOB:             lob,
	}, nil
}
