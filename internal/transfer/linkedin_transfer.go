package transfer

type LinkedInTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

type LinkedInOrganizationAcls struct {
	Elements []struct {
		OrganizationalTarget string `json:"organizationalTarget"`
		Role                 string `json:"role"`
		State                string `json:"state"`
	} `json:"elements"`
}

type LinkedInOrganizationInfo struct {
	LocalizedName string `json:"localizedName"`
}

type LinkedInRegisterUploadResponse struct {
	Value struct {
		Asset              string `json:"asset"`
		UploadMechanism    struct {
			MediaUploadHTTPRequest struct {
				UploadURL string            `json:"uploadUrl"`
				Headers   map[string]string `json:"headers"`
			} `json:"com.linkedin.digitalmedia.uploading.MediaUploadHttpRequest"`
		} `json:"uploadMechanism"`
	} `json:"value"`
}

type LinkedInShareResponse struct {
	ID string `json:"id"`
}
