// Package httpapi exposes the persistence endpoints the browser client syncs
// against: ticker messages, best-record documents and custom-set audio blobs.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"soundpairs/internal/blob"
	"soundpairs/internal/protocol"
	"soundpairs/internal/store"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Audio blobs are content-addressed per upload, so clients may cache them
// indefinitely.
const audioCacheControl = "public, max-age=31536000, immutable"

// Server is the Echo application.
type Server struct {
	echo  *echo.Echo
	meta  *store.Store
	blobs *blob.Store
}

// New constructs the Echo app with all sync routes registered.
func New(meta *store.Store, blobs *blob.Store) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	s := &Server{echo: e, meta: meta, blobs: blobs}
	s.registerRoutes()
	return s
}

// Echo exposes the underlying Echo instance for tests and HTTP/3 serving.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)

	s.echo.GET("/api/messages", s.handleMessagesGet)
	s.echo.PUT("/api/messages", s.handleMessagesPut)

	s.echo.GET("/api/records", s.handleRecordsGet)
	s.echo.PUT("/api/records", s.handleRecordsPut)

	s.echo.GET("/api/audio", s.handleAudioList)
	s.echo.GET("/api/audio/:name", s.handleAudioGet)
	s.echo.POST("/api/audio/:name", s.handleAudioPut)
	s.echo.DELETE("/api/audio/:name", s.handleAudioDelete)
}

// Run starts Echo and blocks until ctx cancellation or startup failure.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		err := s.echo.Start(addr)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.echo.Shutdown(shutCtx)
		return nil
	}
}

type healthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{Status: "ok"})
}

func (s *Server) handleMessagesGet(c echo.Context) error {
	msgs, err := s.meta.Messages(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("load messages: %v", err))
	}
	if msgs == nil {
		msgs = []string{}
	}
	return c.JSON(http.StatusOK, protocol.MessagesDoc{Messages: msgs})
}

type messagesPutResponse struct {
	OK    bool `json:"ok"`
	Count int  `json:"count"`
}

func (s *Server) handleMessagesPut(c echo.Context) error {
	var doc protocol.MessagesDoc
	if err := c.Bind(&doc); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "messages document must be JSON")
	}

	msgs := protocol.SanitizeMessages(doc.Messages)
	if err := s.meta.ReplaceMessages(c.Request().Context(), msgs); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("save messages: %v", err))
	}
	return c.JSON(http.StatusOK, messagesPutResponse{OK: true, Count: len(msgs)})
}

func (s *Server) handleRecordsGet(c echo.Context) error {
	ctx := c.Request().Context()
	doc := protocol.DefaultRecordsDoc()

	best, err := s.meta.BestRecords(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("load records: %v", err))
	}
	for set, b := range best {
		doc.Best[strconv.Itoa(set)] = b
	}

	names, err := s.meta.Names(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("load set names: %v", err))
	}
	doc.Names = names

	// Key lists are derived from the stored audio, never trusted from
	// a PUT, so the document can't drift from the blobs actually present.
	audioNames, err := s.meta.ListAudioNames(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("list audio: %v", err))
	}
	for slot := 1; slot <= 2; slot++ {
		prefix := protocol.SlotKeyPrefix(slot)
		keys := []string{}
		for _, name := range audioNames {
			if strings.HasPrefix(name, prefix) {
				keys = append(keys, name)
			}
		}
		doc.Keys[slot-1] = keys
	}

	return c.JSON(http.StatusOK, doc)
}

type recordsPutResponse struct {
	OK bool `json:"ok"`
}

func (s *Server) handleRecordsPut(c echo.Context) error {
	var doc protocol.RecordsDoc
	if err := c.Bind(&doc); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "records document must be JSON")
	}

	ctx := c.Request().Context()
	for key, b := range doc.Best {
		set, err := strconv.Atoi(key)
		if err != nil || set < 0 || set > 2 {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid set id %q", key))
		}
		if err := s.meta.SaveBest(ctx, set, b); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("save record: %v", err))
		}
	}
	for slot := 1; slot <= 2; slot++ {
		// A blank name means the document didn't carry one; keep the
		// stored name rather than resetting the slot.
		name := strings.TrimSpace(doc.Names[slot-1])
		if name == "" {
			continue
		}
		if err := s.meta.SetName(ctx, slot, name); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("save set name: %v", err))
		}
	}
	return c.JSON(http.StatusOK, recordsPutResponse{OK: true})
}

type audioListResponse struct {
	Keys []string `json:"keys"`
}

func (s *Server) handleAudioList(c echo.Context) error {
	if c.QueryParam("list") != "1" {
		return echo.NewHTTPError(http.StatusBadRequest, "list=1 query parameter is required")
	}
	names, err := s.meta.ListAudioNames(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("list audio: %v", err))
	}
	if names == nil {
		names = []string{}
	}
	return c.JSON(http.StatusOK, audioListResponse{Keys: names})
}

func (s *Server) handleAudioGet(c echo.Context) error {
	name := strings.TrimSpace(c.Param("name"))
	if name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "audio name is required")
	}

	result, err := s.blobs.Open(c.Request().Context(), name)
	if err != nil {
		if errors.Is(err, store.ErrAudioNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "audio not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("open audio: %v", err))
	}
	defer result.File.Close()

	c.Response().Header().Set(echo.HeaderContentType, result.Metadata.ContentType)
	c.Response().Header().Set(echo.HeaderContentLength, strconv.FormatInt(result.Metadata.SizeBytes, 10))
	c.Response().Header().Set("Cache-Control", audioCacheControl)
	c.Response().WriteHeader(http.StatusOK)
	_, copyErr := io.Copy(c.Response().Writer, result.File)
	return copyErr
}

type audioPutResponse struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
	CreatedAt   string `json:"created_at"`
}

func (s *Server) handleAudioPut(c echo.Context) error {
	name := strings.TrimSpace(c.Param("name"))
	if name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "audio name is required")
	}

	contentType := strings.TrimSpace(c.Request().Header.Get(echo.HeaderContentType))
	meta, err := s.blobs.Put(c.Request().Context(), name, contentType, c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("persist audio: %v", err))
	}

	return c.JSON(http.StatusCreated, audioPutResponse{
		Name:        meta.Name,
		ContentType: meta.ContentType,
		SizeBytes:   meta.SizeBytes,
		CreatedAt:   meta.CreatedAt.Format(time.RFC3339Nano),
	})
}

func (s *Server) handleAudioDelete(c echo.Context) error {
	name := strings.TrimSpace(c.Param("name"))
	if name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "audio name is required")
	}

	if err := s.blobs.Delete(c.Request().Context(), name); err != nil {
		if errors.Is(err, store.ErrAudioNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "audio not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("delete audio: %v", err))
	}
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}
