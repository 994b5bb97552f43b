package media

import (
	"mime"
	"path/filepath"
	"strings"

	"tgcord/internal/constants"
	"tgcord/internal/models"
	"tgcord/internal/security"
)

// ResolveFilename picks the upload name for an attachment. The declared name
// wins; otherwise the extension comes from the declared MIME type, then from
// content detection. Video-like files with no usable extension get ".mp4".
func ResolveFilename(att *models.Attachment, detectedExt string) string {
	fallback := constants.DefaultFilenames[string(att.Kind)]
	if fallback == "" {
		fallback = "file" + constants.GenericExtension
	}

	name := security.SanitizeFilename(att.FilenameHint, "")
	if name != "" && filepath.Ext(name) != "" {
		return name
	}

	base := name
	if base == "" {
		base = strings.TrimSuffix(fallback, filepath.Ext(fallback))
	}

	ext := extensionForMIME(att.MIMEType)
	if ext == "" && detectedExt != "" && detectedExt != constants.GenericExtension {
		ext = detectedExt
	}
	if ext == "" {
		if att.IsVideoLike {
			ext = ".mp4"
		} else if name == "" {
			return fallback
		} else {
			ext = constants.GenericExtension
		}
	}
	return base + ext
}

func extensionForMIME(mimeType string) string {
	if mimeType == "" {
		return ""
	}
	mimeType = strings.ToLower(strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0]))

	// prefer the common extension over whatever the system table lists first
	best := ""
	for ext, mt := range constants.MimeTypes {
		if mt == mimeType && (best == "" || len(ext) < len(best) || (len(ext) == len(best) && ext < best)) {
			best = ext
		}
	}
	if best != "" {
		return best
	}

	if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ""
}

// DetectedMIME returns the MIME type to use for a downloaded file, preferring
// the declared one.
func DetectedMIME(declared, detected string) string {
	if declared != "" && declared != constants.DefaultMimeType {
		return declared
	}
	if detected != "" {
		return detected
	}
	return constants.DefaultMimeType
}
