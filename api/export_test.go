package api

var (
	Bearer       = bearer
	UploadStatus = uploadStatus
)
