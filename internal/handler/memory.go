package handler

import (
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"grandbridge/internal/middleware"
	"grandbridge/internal/model"
)

var (
	memoryExtensions = []string{"png", "jpg", "jpeg", "gif", "mp4", "mov", "mp3", "wav"}
	unsafeNameRe     = regexp.MustCompile(`[^A-Za-z0-9_.-]`)
)

// cleanFilename reduces a client file name to a plain ASCII base name.
func cleanFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	var b strings.Builder
	for _, r := range norm.NFKD.String(name) {
		if r < unicode.MaxASCII && !unicode.IsControl(r) {
			b.WriteRune(r)
		}
	}
	name = strings.Join(strings.Fields(b.String()), "_")
	return strings.Trim(unsafeNameRe.ReplaceAllString(name, ""), "._")
}

func memoryExtension(name string) (string, bool) {
	i := strings.LastIndex(name, ".")
	if i < 0 {
		return "", false
	}
	ext := strings.ToLower(name[i+1:])
	return ext, slices.Contains(memoryExtensions, ext)
}

func (h *Handler) Memories(c echo.Context) error {
	ms, err := h.store.Memories(c.Request().Context(), user(c).ID)
	if err != nil {
		return h.fail(c, "list memories", err)
	}
	return h.render(c, "memory.html", M{"Memories": ms})
}

func (h *Handler) UploadMemory(c echo.Context) error {
	if c.Request().Method == http.MethodGet {
		return h.render(c, "upload.html", M{"Extensions": memoryExtensions})
	}
	form, err := c.MultipartForm()
	if err != nil {
		return h.flashRedirect(c, middleware.FlashDanger, "Please choose at least one file.", "/memories_wall/upload")
	}
	u := user(c)
	text := strings.TrimSpace(c.FormValue("text"))

	var (
		saved   []model.Memory
		skipped []string
	)
	cleanup := func() {
		for _, m := range saved {
			os.Remove(filepath.Join(h.cfg.UploadDir, m.StoredName))
		}
	}
	for _, fh := range form.File["file[]"] {
		name := cleanFilename(fh.Filename)
		ext, ok := memoryExtension(name)
		if !ok {
			skipped = append(skipped, fh.Filename)
			continue
		}
		stored := uuid.NewString() + "." + ext
		if err := h.saveUpload(fh, stored); err != nil {
			cleanup()
			return h.fail(c, "save upload", err)
		}
		saved = append(saved, model.Memory{
			UserID:     u.ID,
			Filename:   name,
			StoredName: stored,
			Filetype:   fh.Header.Get("Content-Type"),
			Text:       text,
		})
	}
	if len(saved) > 0 {
		if err := h.store.CreateMemories(c.Request().Context(), saved); err != nil {
			cleanup()
			return h.fail(c, "create memories", err)
		}
		h.log.Info("memories uploaded", zap.Int64("user_id", u.ID), zap.Int("files", len(saved)))
	}
	if len(skipped) > 0 {
		middleware.SetFlash(c, middleware.FlashWarning,
			fmt.Sprintf("Skipped unsupported files: %s", strings.Join(skipped, ", ")))
	}
	return h.redirect(c, "/memory")
}

func (h *Handler) saveUpload(fh *multipart.FileHeader, stored string) error {
	if err := os.MkdirAll(h.cfg.UploadDir, 0o755); err != nil {
		return err
	}
	src, err := fh.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	return writeUpload(filepath.Join(h.cfg.UploadDir, stored), src)
}

// writeUpload creates path and copies src into it. A failed copy leaves no file behind.
func writeUpload(path string, src io.Reader) error {
	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return err
	}
	if err := dst.Close(); err != nil {
		os.Remove(path)
		return err
	}
	return nil
}

// uploadType is the Content-Type served for a stored file, taken from its extension.
func uploadType(stored string) string {
	if t := mime.TypeByExtension(filepath.Ext(stored)); t != "" {
		return t
	}
	return echo.MIMEOctetStream
}

func (h *Handler) ServeUpload(c echo.Context) error {
	name := c.Param("name")
	if name == "" || name != filepath.Base(name) {
		return notFound()
	}
	m, err := h.store.MemoryByStoredName(c.Request().Context(), name)
	if isNotFound(err) {
		return notFound()
	}
	if err != nil {
		return h.fail(c, "get memory", err)
	}
	if m.UserID != user(c).ID {
		return forbidden()
	}
	c.Response().Header().Set(echo.HeaderContentType, uploadType(m.StoredName))
	c.Response().Header().Set("X-Content-Type-Options", "nosniff")
	return c.File(filepath.Join(h.cfg.UploadDir, m.StoredName))
}
