package constants

// MimeTypes maps file extensions to their corresponding MIME types
var MimeTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",

	".mp4":  "video/mp4",
	".m4v":  "video/x-m4v",
	".mov":  "video/quicktime",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".avi":  "video/x-msvideo",

	".pdf": "application/pdf",
	".txt": "text/plain",
	".zip": "application/zip",

	".ogg": "audio/ogg",
	".mp3": "audio/mpeg",
	".m4a": "audio/mp4",
	".wav": "audio/wav",
}

// DefaultMimeType is the fallback MIME type for unknown file extensions
const DefaultMimeType = "application/octet-stream"

// DefaultFilenames is the name used per attachment kind when the source
// carries no filename.
var DefaultFilenames = map[string]string{
	"photo":     "image.jpg",
	"video":     "video.mp4",
	"document":  "document.bin",
	"animation": "animation.mp4",
	"audio":     "audio.mp3",
	"voice":     "voice.ogg",
	"sticker":   "sticker.webp",
}

// GenericExtension marks a filename whose type is still unknown.
const GenericExtension = ".bin"

// VideoExtensions are document extensions treated as video.
var VideoExtensions = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".mkv":  true,
	".webm": true,
	".avi":  true,
	".m4v":  true,
}
