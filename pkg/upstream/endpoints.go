package upstream

import (
	"fmt"
	"net/url"
)

// URL templates for the upstream service family. The API host is the
// universal per-region endpoint; region-qualified hosts do not exist
// outside us-east-1.
const (
	apiHostTemplate    = "https://q.%s.amazonaws.com"
	refreshURLTemplate = "https://prod.%s.auth.desktop.kiro.dev/refreshToken"
	oidcHostTemplate   = "https://oidc.%s.amazonaws.com"
)

// APIHost returns the assistant-response API host for a region.
func APIHost(region string) string {
	return fmt.Sprintf(apiHostTemplate, region)
}

// AssistantResponseURL returns the chat endpoint for a region.
func AssistantResponseURL(region string) string {
	return APIHost(region) + "/generateAssistantResponse"
}

// ListModelsURL returns the model-list endpoint for a region. The
// profile ARN is attached only for the credential family that has one.
func ListModelsURL(region, profileArn string) string {
	u := APIHost(region) + "/ListAvailableModels?origin=AI_EDITOR"
	if profileArn != "" {
		u += "&profileArn=" + url.QueryEscape(profileArn)
	}
	return u
}

// RefreshURL returns the simple-refresh token endpoint for a region.
func RefreshURL(region string) string {
	return fmt.Sprintf(refreshURLTemplate, region)
}

// OIDCTokenURL returns the OIDC token endpoint for a region.
func OIDCTokenURL(region string) string {
	return fmt.Sprintf(oidcHostTemplate, region) + "/token"
}

// OIDCRegisterURL returns the OIDC dynamic client registration endpoint.
func OIDCRegisterURL(region string) string {
	return fmt.Sprintf(oidcHostTemplate, region) + "/client/register"
}

// OIDCAuthorizeURL returns the OIDC authorization endpoint.
func OIDCAuthorizeURL(region string) string {
	return fmt.Sprintf(oidcHostTemplate, region) + "/authorize"
}
