package restkit

import (
	"errors"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/restkit-dev/restkit/pkg/binder"
	"github.com/restkit-dev/restkit/pkg/envelope"
	"github.com/restkit-dev/restkit/pkg/pathpolicy"
	"github.com/restkit-dev/restkit/pkg/upload"
)

// fileAttachment streams a file as a download. Implements
// ResponseWriterTo so the download endpoint bypasses the envelope.
type fileAttachment struct {
	path string
	name string
}

func (f fileAttachment) WriteResponse(w http.ResponseWriter, r *http.Request) error {
	file, err := os.Open(f.path)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	w.Header().Set("Content-Disposition", `attachment; filename="`+f.name+`"`)
	http.ServeContent(w, r, f.name, info.ModTime(), file)
	return nil
}

// plainText streams a file as text/plain. Used by the log viewer.
type plainText struct {
	path string
}

func (p plainText) WriteResponse(w http.ResponseWriter, r *http.Request) error {
	file, err := os.Open(p.path)
	if err != nil {
		return err
	}
	defer file.Close()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, err = io.Copy(w, file)
	return err
}

// downloadEndpoint serves a file from the local filesystem. The path
// arrives as the "path" argument, via query parameter or JSON body.
// Symlinks are resolved before the allow and block lists are consulted,
// so a link cannot smuggle a file out of a permitted directory.
func (a *App) downloadEndpoint(ctx *Ctx, args binder.Args) (any, error) {
	p, _ := args["path"].(string)
	if p == "" {
		return nil, BadRequest("No file path provided")
	}

	resolved, err := pathpolicy.Resolve(p)
	if err != nil {
		return nil, NotFound("File not found")
	}
	if err := a.downloadPolicy.Check(resolved); err != nil {
		switch {
		case errors.Is(err, pathpolicy.ErrNotAllowed):
			return nil, Forbidden("File path is not allowed")
		case errors.Is(err, pathpolicy.ErrBlocked):
			return nil, Forbidden("File path is blocked")
		default:
			return nil, Forbidden("File path is not allowed")
		}
	}

	info, err := os.Stat(resolved)
	if err != nil || !info.Mode().IsRegular() {
		return nil, NotFound("File not found")
	}

	return fileAttachment{path: resolved, name: filepath.Base(resolved)}, nil
}

// sanitizeFilename reduces a client-supplied filename to a bare name.
// Directory components are stripped rather than rejected; names that
// reduce to nothing are reported as absent.
func sanitizeFilename(name string) (string, bool) {
	name = strings.ReplaceAll(name, `\`, "/")
	name = path.Base(name)
	if name == "" || name == "." || name == ".." || name == "/" {
		return "", false
	}
	return name, true
}

// uploadEndpoint accepts a multipart upload in the "file" field and
// hands it to the configured store. An optional "filename" form field
// overrides the client-sent name. Responds 201 with the stored name,
// size and path.
func (a *App) uploadEndpoint(ctx *Ctx, args binder.Args) (any, error) {
	r := ctx.req
	if a.cfg.Upload.MaxBytes > 0 {
		r.Body = http.MaxBytesReader(ctx.w, r.Body, a.cfg.Upload.MaxBytes)
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, NewError(http.StatusRequestEntityTooLarge, "File too large")
		}
		return nil, BadRequest("No file provided")
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, BadRequest("No file provided")
	}
	defer file.Close()

	filename := r.FormValue("filename")
	if filename == "" {
		filename = header.Filename
	}
	if filename == "" {
		return nil, BadRequest("No file selected")
	}
	name, ok := sanitizeFilename(filename)
	if !ok {
		return nil, BadRequest("No file selected")
	}

	for _, re := range a.blockedPatterns {
		if re.MatchString(name) {
			return nil, Forbidden("Filename matches a blocked pattern")
		}
	}

	saved, err := a.uploadStore.Save(ctx.Context(), name, file)
	if err != nil {
		if errors.Is(err, upload.ErrTooLarge) {
			return nil, NewError(http.StatusRequestEntityTooLarge, "File too large")
		}
		return nil, Internal("Failed to store file", err)
	}

	return envelope.Result{
		Data: map[string]any{
			"filename": saved.Filename,
			"size":     saved.Size,
			"path":     saved.Path,
		},
		Code: http.StatusCreated,
	}, nil
}

// listLogsEndpoint lists the .log files in the logging directory.
func (a *App) listLogsEndpoint(ctx *Ctx) (any, error) {
	entries, err := os.ReadDir(a.logger.Dir())
	if err != nil {
		return nil, Internal("Failed to read logging directory", err)
	}

	logs := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasSuffix(strings.ToLower(entry.Name()), ".log") {
			logs = append(logs, entry.Name())
		}
	}
	return logs, nil
}

// logsEndpoint returns a log file as plain text. With no "log_file"
// argument it serves the file currently being written. Filenames match
// case-insensitively because dispatched URLs are lowercased, and only
// files inside the logging directory are ever served.
func (a *App) logsEndpoint(ctx *Ctx, args binder.Args) (any, error) {
	name, _ := args["log_file"].(string)
	dir := a.logger.Dir()

	if name == "" {
		return plainText{path: a.logger.CurrentFile()}, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, Internal("Failed to read logging directory", err)
	}

	var match string
	for _, entry := range entries {
		if !entry.IsDir() && strings.EqualFold(entry.Name(), name) {
			match = entry.Name()
			break
		}
	}
	if match == "" {
		return nil, NotFound("Log file not found")
	}

	full := filepath.Join(dir, match)
	if !pathpolicy.Within(dir, full) {
		return nil, NotFound("Log file not found")
	}
	return plainText{path: full}, nil
}

// handleLogFile serves /logs/{filename} by invoking the logs endpoint
// with the path parameter as the log_file argument.
func (a *App) handleLogFile(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	a.invokeEndpoint(w, r, "logs", map[string]any{"log_file": filename})
}

var logTailUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// handleLogTail streams appended log lines over a WebSocket. The client
// receives everything written to the current log file after the
// connection is established.
func (a *App) handleLogTail(w http.ResponseWriter, r *http.Request) {
	conn, err := logTailUpgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		a.logger.Error("log tail upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	file, err := os.Open(a.logger.CurrentFile())
	if err != nil {
		a.logger.Error("log tail open failed", "error", err)
		return
	}
	defer file.Close()
	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		return
	}

	// Read side only notices the client going away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	buf := make([]byte, 32*1024)

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
			for {
				n, err := file.Read(buf)
				if n > 0 {
					if werr := conn.WriteMessage(websocket.TextMessage, buf[:n]); werr != nil {
						return
					}
				}
				if err != nil {
					if err != io.EOF {
						return
					}
					break
				}
			}
		}
	}
}
