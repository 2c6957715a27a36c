package server

// Headers forwarded to the upstream host describing the resolved environment.
// Client-supplied values with the same prefix are removed before forwarding.
const (
	headerSitePrefix = "X-Site-"

	HeaderXSiteBaseURL          = "X-Site-Base-Url"
	HeaderXSiteTenantID         = "X-Site-Tenant-Id"
	HeaderXSiteServer           = "X-Site-Server"
	HeaderXSiteMultisite        = "X-Site-Multisite"
	HeaderXSiteSubdomainInstall = "X-Site-Subdomain-Install"
	HeaderXSiteDomain           = "X-Site-Domain"
	HeaderXSitePath             = "X-Site-Path"
	HeaderXSiteID               = "X-Site-Id"
)

// HeaderXTenantID is the default header carrying the host's current tenant ID.
const HeaderXTenantID = "X-Tenant-ID"
