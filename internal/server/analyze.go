package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/slipvault/slipvault/internal/extraction"
	"github.com/slipvault/slipvault/internal/vision"
	"go.uber.org/zap"
)

const maxPhotoBytes = 10 << 20

// AnalyzeReceipt extracts slip fields from an uploaded photo, falling back
// to the text heuristics when the caller supplies OCR text and the vision
// provider cannot help.
func (s *Server) AnalyzeReceipt(c *gin.Context) {
	if _, ok := currentActor(c); !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	ctx := c.Request.Context()

	rawText := strings.TrimSpace(c.PostForm("text"))

	file, header, err := c.Request.FormFile("photo")
	if err != nil {
		if rawText == "" {
			AbortWithError(c, newValidationError("photo", "photo_required", "a photo file or raw text is required"))
			return
		}
		fields := extraction.Extract(rawText, s.categories.Get())
		c.JSON(http.StatusOK, gin.H{"data": fields, "source": "heuristic"})
		return
	}
	defer file.Close()

	image, err := io.ReadAll(io.LimitReader(file, maxPhotoBytes+1))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if len(image) > maxPhotoBytes {
		AbortWithError(c, newValidationError("photo", "photo_too_large", "photo exceeds the size limit"))
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = http.DetectContentType(image)
	}

	fields, err := s.analyzer.Analyze(ctx, image, mimeType)
	if err != nil {
		s.metrics.ExtractionFailed(ctx, extractionReason(err))
		s.log.Warn("vision extraction failed", zap.Error(err))
		if rawText != "" {
			fields = extraction.Extract(rawText, s.categories.Get())
			c.JSON(http.StatusOK, gin.H{"data": fields, "source": "heuristic"})
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": fields, "source": "vision"})
}

func extractionReason(err error) string {
	var extractionErr *vision.ExtractionError
	if errors.As(err, &extractionErr) {
		return extractionErr.Reason
	}
	return "unknown"
}
