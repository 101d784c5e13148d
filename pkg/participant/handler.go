package participant

import (
	"encoding/json"
	"errors"
	"fmt"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const (
	maxBodyBytes   = 1 << 20
	maxUploadBytes = 10 << 20
	uploadField    = "file"
)

type Handler struct {
	logger *zap.Logger
	serv   *Service
	sheets SheetParser
}

// NewHandler builds the HTTP surface. sheets may be nil, which disables /import.
func NewHandler(logger *zap.Logger, serv *Service, sheets SheetParser) *Handler {
	return &Handler{logger: logger, serv: serv, sheets: sheets}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.list)
	r.Get("/details", h.listDetails(FilterActive))
	r.Get("/details/deleted", h.listDetails(FilterDeleted))
	r.Get("/details/{email}", h.getByEmail)
	r.Get("/work/{email}", h.getWork)
	r.Get("/home/{email}", h.getHome)
	r.Post("/add", h.add)
	if h.sheets != nil {
		r.Post("/import", h.importSheet)
	}
	r.Put("/{email}", h.update)
	r.Delete("/{email}", h.softDelete)

	return r
}

type envelope map[string]interface{}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	list, err := h.serv.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, envelope{"status": "success", "participants": list})
}

func (h *Handler) listDetails(filter Filter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := h.serv.ListDetails(r.Context(), filter)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		if len(entries) == 0 {
			h.respond(w, http.StatusOK, envelope{"status": "no " + filter.String()})
			return
		}
		h.respond(w, http.StatusOK, envelope{"status": "success", "participants": entries})
	}
}

func (h *Handler) getByEmail(w http.ResponseWriter, r *http.Request) {
	p, err := h.serv.GetByEmail(r.Context(), emailParam(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, envelope{"status": "success", "participant": p})
}

func (h *Handler) getWork(w http.ResponseWriter, r *http.Request) {
	work, err := h.serv.GetWork(r.Context(), emailParam(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, envelope{"status": "success", "participant": work})
}

func (h *Handler) getHome(w http.ResponseWriter, r *http.Request) {
	home, err := h.serv.GetHome(r.Context(), emailParam(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, envelope{"status": "success", "participant": home})
}

func (h *Handler) add(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	p, err := h.serv.Add(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, envelope{"status": "success", "message": "Participant added successfully.", "participant": p})
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	p, err := h.serv.Update(r.Context(), emailParam(r), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, envelope{"status": "success", "message": "Participant updated successfully.", "participant": p})
}

func (h *Handler) softDelete(w http.ResponseWriter, r *http.Request) {
	p, err := h.serv.SoftDelete(r.Context(), emailParam(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, envelope{"status": "success", "message": "Participant deleted successfully.", "participant": p})
}

// importSheet accepts the workbook either as the "file" field of a multipart
// form or as the raw request body.
func (h *Handler) importSheet(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	var src io.Reader = r.Body
	if isMultipart(r) {
		file, _, err := r.FormFile(uploadField)
		if err != nil {
			h.respond(w, http.StatusBadRequest, envelope{"status": "error", "message": fmt.Sprintf("Missing %q upload.", uploadField)})
			return
		}
		defer file.Close()
		src = file
	}

	rows, err := h.sheets.ParseXlsx(src)
	if err != nil {
		h.logger.Warn("Spreadsheet rejected", zap.Error(err))
		h.respond(w, http.StatusBadRequest, envelope{"status": "error", "message": "Invalid spreadsheet."})
		return
	}

	results := h.serv.Import(r.Context(), rows)
	added := 0
	for _, res := range results {
		if res.Status == ImportAdded {
			added++
		}
	}

	h.respond(w, http.StatusOK, envelope{
		"status":  "success",
		"message": fmt.Sprintf("Imported %d of %d participants.", added, len(results)),
		"results": results,
	})
}

// fail maps service errors onto status codes. Not-found, deleted and
// already-deleted are all 404. Anything unexpected is logged and answered
// with a generic 500.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		h.respond(w, http.StatusBadRequest, envelope{"status": "error", "message": "Validation failed.", "errors": verr.Fields})
	case errors.Is(err, errMalformedBody):
		h.respond(w, http.StatusBadRequest, envelope{"status": "error", "message": "Malformed JSON body."})
	case errors.Is(err, ErrConflict):
		h.respond(w, http.StatusConflict, envelope{"status": "error", "message": "A participant with this email already exists."})
	case errors.Is(err, ErrNotFound):
		h.respond(w, http.StatusNotFound, envelope{"status": "error", "message": "Participant not found."})
	case errors.Is(err, ErrGone):
		h.respond(w, http.StatusNotFound, envelope{"status": "error", "message": "Participant has been deleted."})
	case errors.Is(err, ErrAlreadyDeleted):
		h.respond(w, http.StatusNotFound, envelope{"status": "error", "message": "Participant has already been deleted."})
	default:
		h.logger.Error("Request failed", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Error(err))
		h.respond(w, http.StatusInternalServerError, envelope{"status": "error", "message": "Internal server error"})
	}
}

func (h *Handler) respond(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Response encoding failed", zap.Error(err))
	}
}

var errMalformedBody = errors.New("malformed JSON body")

// decodeRequest reads an add/update body. A field of the wrong JSON type does
// not fail the decode: it is kept on the request and reported by Validate
// after the service has checked whether the record exists.
func decodeRequest(w http.ResponseWriter, r *http.Request) (Request, error) {
	var req Request
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req)
	if err == nil {
		return req, nil
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		req.TypeErrors = []FieldError{{Field: typeErr.Field, Message: "has the wrong type"}}
		return req, nil
	}
	return Request{}, errMalformedBody
}

func emailParam(r *http.Request) string {
	raw := chi.URLParam(r, "email")
	if email, err := url.PathUnescape(raw); err == nil {
		return email
	}
	return raw
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}
