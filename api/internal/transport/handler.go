package transport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/you-humble/ubattery/api/internal/domain"
	"github.com/you-humble/ubattery/core/mining"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const maxBodyBytes = 1 << 20

type Usecase interface {
	Submit(ctx context.Context, kind string, req domain.SubmitRequest) (domain.TaskSummary, error)
	Tasks(ctx context.Context) ([]domain.TaskSummary, error)
	Result(ctx context.Context, id string) ([]byte, error)
	Cancel(ctx context.Context, id string) error
	Export(ctx context.Context, id string) (domain.Export, error)
	Sources(ctx context.Context) []domain.SourceInfo
	Data(ctx context.Context, q domain.DataQuery) ([]map[string]any, error)
}

type handler struct {
	usecase Usecase
}

func NewHandler(uc Usecase) *handler {
	return &handler{usecase: uc}
}

func (h *handler) submit(w http.ResponseWriter, r *http.Request) {
	kind := r.PathValue("kind")
	logger := requestLogger(r, "submit").With(slog.String("kind", kind))

	defer r.Body.Close()
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req domain.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("decode body", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	task, err := h.usecase.Submit(r.Context(), kind, req)
	if err != nil {
		if isValidation(err) {
			logger.Info("rejected task", slog.String("error", err.Error()))
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		logger.Error("Submit usecase", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "cannot create mining task")
		return
	}

	logger.Info("task submitted", slog.String("task_id", task.TaskID))
	writeData(w, http.StatusOK, task)
}

func (h *handler) tasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.usecase.Tasks(r.Context())
	if err != nil {
		requestLogger(r, "tasks").Error("Tasks usecase", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "")
		return
	}

	writeData(w, http.StatusOK, tasks)
}

func (h *handler) task(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	payload, err := h.usecase.Result(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNoResult) {
			writeError(w, http.StatusNotFound, domain.ErrNoResult.Error())
			return
		}
		requestLogger(r, "task").Error("Result usecase",
			slog.String("task_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "")
		return
	}

	writeData(w, http.StatusOK, jsoniter.RawMessage(payload))
}

func (h *handler) cancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := h.usecase.Cancel(r.Context(), id); err != nil {
		requestLogger(r, "cancel").Error("Cancel usecase",
			slog.String("task_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "cannot cancel mining task")
		return
	}

	writeData(w, http.StatusOK, nil)
}

func (h *handler) export(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	logger := requestLogger(r, "export").With(slog.String("task_id", id))

	res, err := h.usecase.Export(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNoResult) {
			writeError(w, http.StatusNotFound, domain.ErrNoResult.Error())
			return
		}
		logger.Error("Export usecase", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "cannot export result")
		return
	}
	defer res.Content.Close()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="`+res.FileName+`"`)
	if res.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(res.Size, 10))
	}

	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, res.Content); err != nil {
		logger.Error("export: send file", slog.String("error", err.Error()))
	}
}

func (h *handler) sources(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, h.usecase.Sources(r.Context()))
}

func (h *handler) data(w http.ResponseWriter, r *http.Request) {
	args := r.URL.Query()
	logger := requestLogger(r, "data").With(slog.String("data_come_from", args.Get("dataComeFrom")))

	limit, err := strconv.Atoi(args.Get("dataLimit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid dataLimit")
		return
	}

	var params []string
	if p := strings.TrimSpace(args.Get("needParams")); p != "" {
		params = strings.Split(p, ",")
	}

	rows, err := h.usecase.Data(r.Context(), domain.DataQuery{
		DataComeFrom: args.Get("dataComeFrom"),
		StartDate:    args.Get("startDate"),
		DataLimit:    limit,
		NeedParams:   params,
	})
	if err != nil {
		switch {
		case isValidation(err):
			logger.Info("rejected query", slog.String("error", err.Error()))
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrNoData):
			writeError(w, http.StatusNotFound, domain.ErrNoData.Error())
		case errors.Is(err, domain.ErrDataDisabled):
			writeError(w, http.StatusServiceUnavailable, domain.ErrDataDisabled.Error())
		default:
			logger.Error("Data usecase", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "cannot query data")
		}
		return
	}

	writeData(w, http.StatusOK, rows)
}

func isValidation(err error) bool {
	return errors.Is(err, mining.ErrUnknownKind) ||
		errors.Is(err, mining.ErrUnknownSource) ||
		errors.Is(err, mining.ErrInvalidRange) ||
		errors.Is(err, mining.ErrColumnNotAllowed) ||
		errors.Is(err, domain.ErrInvalidDate) ||
		errors.Is(err, domain.ErrInvalidQuery)
}

func requestLogger(r *http.Request, name string) *slog.Logger {
	return slog.With(
		slog.String("request_id", uuid.NewString()),
		slog.String("handler", name),
		slog.String("remote_addr", r.RemoteAddr),
	)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, domain.Envelope{
		Code: domain.CodeSuccess,
		Msg:  "success",
		Data: data,
	})
}

func writeError(w http.ResponseWriter, status int, message string) {
	if message == "" {
		message = http.StatusText(status)
	}
	writeJSON(w, status, domain.Envelope{
		Code: domain.CodeError,
		Msg:  message,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("writeJSON", slog.String("error", err.Error()))
	}
}
