package routes

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"frame-extractor/archive"
	"frame-extractor/extractor"
	"frame-extractor/pipeline"
	"frame-extractor/preview"
	"frame-extractor/session"
)

type frameLink struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type extractionResponse struct {
	ID           string      `json:"id"`
	Status       string      `json:"status"`
	Message      string      `json:"message,omitempty"`
	Error        string      `json:"error,omitempty"`
	Progress     float64     `json:"progress"`
	FrameCount   int         `json:"frameCount"`
	SourceFrames int         `json:"sourceFrames,omitempty"`
	Width        int         `json:"width,omitempty"`
	Height       int         `json:"height,omitempty"`
	ElapsedMs    int64       `json:"elapsedMs,omitempty"`
	Frames       []frameLink `json:"frames,omitempty"`
	Preview      []string    `json:"preview,omitempty"`
	Archive      string      `json:"archive,omitempty"`
}

// progressEvent is one line of a streamed extraction.
type progressEvent struct {
	Type     string              `json:"type"` // progress, result, error
	Progress float64             `json:"progress,omitempty"`
	Result   *extractionResponse `json:"result,omitempty"`
	Error    string              `json:"error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func newExtractionResponse(snapshot session.Snapshot) *extractionResponse {
	base := "/extractions/" + snapshot.ID
	resp := &extractionResponse{
		ID:       snapshot.ID,
		Status:   string(snapshot.Status),
		Error:    snapshot.Error,
		Progress: snapshot.Progress,
	}

	result := snapshot.Result
	if result == nil {
		return resp
	}

	resp.Message = fmt.Sprintf("Done! %d frames saved.", len(result.Frames))
	resp.FrameCount = len(result.Frames)
	resp.SourceFrames = result.SourceFrames
	resp.Width = result.Width
	resp.Height = result.Height
	resp.ElapsedMs = result.Elapsed.Milliseconds()

	resp.Frames = make([]frameLink, 0, len(result.Frames))
	for _, name := range result.Frames {
		resp.Frames = append(resp.Frames, frameLink{Name: name, URL: base + "/frames/" + name})
	}

	for i := range preview.Select(result.Frames) {
		resp.Preview = append(resp.Preview, fmt.Sprintf("%s/preview/%d", base, i))
	}

	if result.Archive {
		resp.Archive = base + "/archive"
	}

	return resp
}

// errorStatus maps pipeline errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, extractor.ErrOpenSource),
		errors.Is(err, pipeline.ErrNoFrames),
		errors.Is(err, archive.ErrEmptyDirectory):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, session.ErrStoreFull):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, session.ErrNotFound):
		return fiber.StatusNotFound
	default:
		return fiber.StatusInternalServerError
	}
}

// errorMessage keeps internal paths out of client responses.
func errorMessage(err error) string {
	switch {
	case errors.Is(err, extractor.ErrOpenSource):
		return extractor.ErrOpenSource.Error()
	case errors.Is(err, pipeline.ErrNoFrames):
		return pipeline.ErrNoFrames.Error()
	case errors.Is(err, archive.ErrEmptyDirectory):
		return archive.ErrEmptyDirectory.Error()
	case errors.Is(err, session.ErrStoreFull), errors.Is(err, session.ErrNotFound):
		return err.Error()
	default:
		return "extraction failed"
	}
}

func sendError(c *fiber.Ctx, status int, err error) error {
	return c.Status(status).JSON(errorResponse{Error: err.Error()})
}
