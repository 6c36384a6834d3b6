package uploads

type PresignUploadRequest struct {
	Filename    string `json:"filename,omitempty"`
	ContentType string `json:"contentType"`
}

type PresignUploadResponse struct {
	FileID    string `json:"fileId"`
	UploadURL string `json:"uploadUrl"`
	ExpiresIn int    `json:"expiresIn"`
}

type PresignDownloadRequest struct {
	FileID string `json:"fileId"`
}

type PresignDownloadResponse struct {
	URL       string `json:"url"`
	ExpiresIn int    `json:"expiresIn"`
}
