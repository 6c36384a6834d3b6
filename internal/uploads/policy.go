package uploads

var allowedContentTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
	"image/heic": ".heic",

	"application/pdf":    ".pdf",
	"application/msword": ".doc",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": ".docx",
	"application/vnd.ms-excel": ".xls",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": ".xlsx",
	"application/zip":  ".zip",
	"text/plain":       ".txt",

	"audio/mpeg": ".mp3",
	"audio/ogg":  ".ogg",
	"audio/wav":  ".wav",

	"video/mp4":  ".mp4",
	"video/webm": ".webm",
}

func ExtForContentType(ct string) (string, bool) {
	ext, ok := allowedContentTypes[ct]
	return ext, ok
}

func IsValidContentType(ct string) bool {
	_, ok := allowedContentTypes[ct]
	return ok
}

// ContentTypeForExt is the reverse lookup the client uses to label a local
// file before asking for an upload URL.
func ContentTypeForExt(ext string) (string, bool) {
	for ct, e := range allowedContentTypes {
		if e == ext {
			return ct, true
		}
	}
	return "", false
}
