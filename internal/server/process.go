package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"time"

	"callsight/internal/fileutil"
	"callsight/internal/history"
	"callsight/internal/logging"
	"callsight/internal/pipeline"
	"callsight/internal/services"
	"callsight/internal/sink"
	"callsight/internal/textutil"
)

// maxTasksBytes bounds the "tasks" form part.
const maxTasksBytes = 64 << 10

// upload is a parsed process_call request.
type upload struct {
	tasks    []string
	hasTasks bool
	original string
	saved    fileutil.Saved
	dir      string
}

// requestError carries the HTTP status for a rejected upload.
type requestError struct {
	status  int
	message string
}

func (e *requestError) Error() string { return e.message }

func badRequest(format string, args ...any) error {
	return &requestError{status: http.StatusBadRequest, message: fmt.Sprintf(format, args...)}
}

func (s *Server) handleProcessCall(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	ctx := r.Context()
	logger := logging.WithContext(ctx, s.logger)

	rc := http.NewResponseController(w)
	// Large uploads must not be cut by the server's ReadTimeout.
	if err := rc.SetReadDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		logger.Debug("could not clear read deadline", logging.Error(err))
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes())

	up, err := s.readUpload(r)
	if up != nil && up.dir != "" {
		defer os.RemoveAll(up.dir)
	}
	if err != nil {
		s.rejectUpload(w, logger, err)
		return
	}

	if s.prober != nil {
		probe, err := s.prober.Check(ctx, up.saved.Path)
		switch {
		case errors.Is(err, services.ErrValidation):
			s.rejectUpload(w, logger, badRequest("%s", services.Details(err)))
			return
		case err != nil:
			logging.WarnWithContext(logger, "upload probe failed; continuing without pre-check", "upload_probe_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the ffprobe installation"),
				logging.String(logging.FieldImpact, "undecodable uploads fail during transcription instead"),
			)
		default:
			logger.Debug("upload probed",
				logging.Int("audio_streams", probe.AudioStreamCount()),
				logging.Float64("duration_seconds", probe.DurationSeconds()),
			)
		}
	}

	requested := pipeline.ParseStages(up.tasks, logger)
	session := pipeline.NewSession(up.saved.Path, requested)
	logger = logger.With(logging.String(logging.FieldSessionID, session.ID))
	logger.Info("call upload accepted",
		logging.String(logging.FieldEventType, "upload_accepted"),
		logging.String("file_name", up.original),
		logging.Int64("size_bytes", up.saved.Size),
	)

	runCtx, cancel := s.sessionContext(ctx)
	defer cancel()

	stream := sink.NewSSE(w)
	recorder := &sink.Recorder{}
	stopKeepAlive := s.startKeepAlive(runCtx, stream)
	started := time.Now()
	runErr := s.engine.Run(runCtx, session, sink.Tee{stream, recorder})
	stopKeepAlive()
	if errors.Is(runErr, context.DeadlineExceeded) {
		s.reportTimeout(ctx, logger, stream, recorder)
	}
	finished := time.Now()

	if s.history != nil {
		entry := history.NewEntry(session, runErr, started, finished, recorder.Events())
		entry.AudioName = up.original
		entry.AudioSHA256 = up.saved.SHA256
		s.history.SaveLogged(ctx, entry, logger)
	}

	if runErr != nil && !stream.Started() {
		writeError(w, http.StatusInternalServerError, services.Details(runErr))
	}
}

// readUpload streams the multipart body. The returned upload is non-nil
// whenever a temporary directory was created, even on error.
func (s *Server) readUpload(r *http.Request) (*upload, error) {
	reader, err := r.MultipartReader()
	if err != nil {
		return nil, badRequest("expected multipart/form-data body")
	}
	up := &upload{}
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return up, uploadReadError(err)
		}
		switch part.FormName() {
		case "tasks":
			if err := readTasks(part, up); err != nil {
				return up, err
			}
		case "file":
			if up.dir != "" {
				return up, badRequest("only one file may be uploaded")
			}
			if err := s.saveFile(part, up); err != nil {
				return up, err
			}
		default:
			_, _ = io.Copy(io.Discard, part)
		}
	}
	if up.dir == "" {
		return up, badRequest("file field is required")
	}
	if !up.hasTasks {
		return up, badRequest("tasks field is required")
	}
	return up, nil
}

func readTasks(part *multipart.Part, up *upload) error {
	data, err := io.ReadAll(io.LimitReader(part, maxTasksBytes+1))
	if err != nil {
		return uploadReadError(err)
	}
	if len(data) > maxTasksBytes {
		return badRequest("tasks field is too large")
	}
	var tasks []string
	if err := json.Unmarshal(data, &tasks); err != nil {
		return badRequest("tasks must be a JSON array of stage names")
	}
	up.tasks = tasks
	up.hasTasks = true
	return nil
}

func (s *Server) saveFile(part *multipart.Part, up *upload) error {
	dir, err := os.MkdirTemp(s.cfg.Paths.WorkDir, "upload-")
	if err != nil {
		return fmt.Errorf("create upload dir: %w", err)
	}
	up.dir = dir
	up.original = part.FileName()
	saved, err := fileutil.SaveStream(part, dir, textutil.UploadFileName(up.original), s.cfg.MaxUploadBytes())
	if err != nil {
		return uploadReadError(err)
	}
	if saved.Size == 0 {
		return badRequest("uploaded file is empty")
	}
	up.saved = saved
	if up.original == "" {
		up.original = textutil.UploadFileName("")
	}
	return nil
}

func uploadReadError(err error) error {
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) || errors.Is(err, fileutil.ErrTooLarge) {
		return &requestError{status: http.StatusRequestEntityTooLarge, message: "upload exceeds size limit"}
	}
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		return err
	}
	return badRequest("malformed upload: %v", err)
}

func (s *Server) rejectUpload(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := http.StatusInternalServerError
	message := "upload failed"
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		status, message = reqErr.status, reqErr.message
	}
	logger.Warn("call upload rejected",
		logging.String(logging.FieldEventType, "upload_rejected"),
		logging.Int("status", status),
		logging.Error(err),
	)
	writeError(w, status, message)
}

func (s *Server) sessionContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if seconds := s.cfg.Server.SessionTimeoutSeconds; seconds > 0 {
		return context.WithTimeout(ctx, time.Duration(seconds)*time.Second)
	}
	return context.WithCancel(ctx)
}

// reportTimeout sends a final error frame when the session deadline expired
// while the client was still connected.
func (s *Server) reportTimeout(ctx context.Context, logger *slog.Logger, stream *sink.SSE, recorder *sink.Recorder) {
	seconds := s.cfg.Server.SessionTimeoutSeconds
	logging.WarnWithContext(logger, "call session timed out", "session_timeout",
		logging.Int("session_timeout_seconds", seconds),
		logging.String(logging.FieldErrorHint, "raise server.session_timeout_seconds for long calls"),
		logging.String(logging.FieldImpact, "remaining stages were not run"),
	)
	final := pipeline.NewEvent(pipeline.ErrorResult(fmt.Sprintf("Session timed out after %d seconds", seconds)))
	if err := stream.Emit(ctx, final); err != nil {
		logger.Debug("could not deliver timeout frame", logging.Error(err))
		return
	}
	_ = recorder.Emit(ctx, final)
}

// startKeepAlive writes SSE comments until the returned stop function runs.
func (s *Server) startKeepAlive(ctx context.Context, stream *sink.SSE) func() {
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(s.keepAlive)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := stream.KeepAlive(); err != nil {
					return
				}
			}
		}
	}()
	return func() {
		close(done)
		<-stopped
	}
}
