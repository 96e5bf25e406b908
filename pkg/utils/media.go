package utils

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/snapdoc/snapdoc/pkg/logger"
)

// IsImageFile checks if a file path has an image extension.
func IsImageFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp":
		return true
	}
	return false
}

// DetectImageMimeType returns the MIME type for an image file based on extension.
func DetectImageMimeType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	}
	return ""
}

// ExtForContentType maps a canonical image MIME type to its storage
// extension. Empty for anything that is not a supported image type.
func ExtForContentType(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	}
	return ""
}

// NormalizeImageContentType reduces a transport-declared content type to a
// canonical supported image type. When the declaration is missing or
// generic, the payload itself is sniffed. ok is false for non-images.
func NormalizeImageContentType(declared string, data []byte) (string, bool) {
	ct := strings.ToLower(strings.TrimSpace(declared))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if ct == "" || ct == "application/octet-stream" {
		ct = strings.ToLower(http.DetectContentType(data))
		if i := strings.IndexByte(ct, ';'); i >= 0 {
			ct = strings.TrimSpace(ct[:i])
		}
	}
	switch ct {
	case "image/jpeg", "image/jpg", "image/pjpeg":
		return "image/jpeg", true
	case "image/png":
		return "image/png", true
	case "image/gif":
		return "image/gif", true
	case "image/webp":
		return "image/webp", true
	}
	return ct, false
}

// SanitizeFilename removes potentially dangerous characters from a filename
// and returns a safe version for local filesystem storage.
func SanitizeFilename(filename string) string {
	base := filepath.Base(filename)
	base = strings.ReplaceAll(base, "..", "")
	base = strings.ReplaceAll(base, "/", "_")
	base = strings.ReplaceAll(base, "\\", "_")
	return base
}

// SanitizeUserKey maps a session key like "telegram:12345" to a name safe
// to use as a directory component. Distinct keys stay distinct for the
// character sets real transports produce.
func SanitizeUserKey(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	s := b.String()
	if s == "" {
		s = "anonymous"
	}
	if len(s) > 128 {
		s = s[:128]
	}
	return s
}

// SpoolBytes lands raw bytes in the spool directory under a unique name,
// for transports that deliver media inline instead of by URL.
// Returns the local file path or empty string on error.
func SpoolBytes(data []byte, filename, loggerPrefix string) string {
	if loggerPrefix == "" {
		loggerPrefix = "utils"
	}
	spoolDir := filepath.Join(os.TempDir(), "snapdoc_spool")
	if err := os.MkdirAll(spoolDir, 0700); err != nil {
		logger.ErrorCF(loggerPrefix, "Failed to create spool directory", map[string]interface{}{
			"error": err.Error(),
		})
		return ""
	}
	localPath := filepath.Join(spoolDir, uuid.New().String()[:8]+"_"+SanitizeFilename(filename))
	if err := os.WriteFile(localPath, data, 0644); err != nil {
		logger.ErrorCF(loggerPrefix, "Failed to write spool file", map[string]interface{}{
			"error": err.Error(),
		})
		return ""
	}
	return localPath
}

// DownloadOptions holds optional parameters for downloading files.
type DownloadOptions struct {
	Timeout      time.Duration
	ExtraHeaders map[string]string
	LoggerPrefix string
}

// DownloadFile downloads a file from URL into the local spool directory.
// Returns the local file path or empty string on error.
func DownloadFile(url, filename string, opts DownloadOptions) string {
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.LoggerPrefix == "" {
		opts.LoggerPrefix = "utils"
	}

	spoolDir := filepath.Join(os.TempDir(), "snapdoc_spool")
	if err := os.MkdirAll(spoolDir, 0700); err != nil {
		logger.ErrorCF(opts.LoggerPrefix, "Failed to create spool directory", map[string]interface{}{
			"error": err.Error(),
		})
		return ""
	}

	// UUID prefix keeps concurrent downloads of same-named files apart.
	safeName := SanitizeFilename(filename)
	localPath := filepath.Join(spoolDir, uuid.New().String()[:8]+"_"+safeName)

	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		logger.ErrorCF(opts.LoggerPrefix, "Failed to create download request", map[string]interface{}{
			"error": err.Error(),
		})
		return ""
	}
	for key, value := range opts.ExtraHeaders {
		req.Header.Set(key, value)
	}

	client := &http.Client{Timeout: opts.Timeout}
	resp, err := client.Do(req)
	if err != nil {
		logger.ErrorCF(opts.LoggerPrefix, "Failed to download file", map[string]interface{}{
			"error": err.Error(),
			"url":   url,
		})
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.ErrorCF(opts.LoggerPrefix, "File download returned non-200 status", map[string]interface{}{
			"status": resp.StatusCode,
			"url":    url,
		})
		return ""
	}

	out, err := os.Create(localPath)
	if err != nil {
		logger.ErrorCF(opts.LoggerPrefix, "Failed to create local file", map[string]interface{}{
			"error": err.Error(),
		})
		return ""
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(localPath)
		logger.ErrorCF(opts.LoggerPrefix, "Failed to write file", map[string]interface{}{
			"error": err.Error(),
		})
		return ""
	}

	logger.DebugCF(opts.LoggerPrefix, "File downloaded", map[string]interface{}{
		"path": localPath,
	})
	return localPath
}
