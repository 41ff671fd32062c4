package handlers

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/benvon/pasfoto/internal/database"
	logpkg "github.com/benvon/pasfoto/internal/logger"
	"github.com/benvon/pasfoto/internal/models"
	"github.com/benvon/pasfoto/internal/request"
	"github.com/benvon/pasfoto/internal/storage"
	"github.com/benvon/pasfoto/internal/validation"
	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	// UploadPath is the route of the pas foto upload endpoint
	UploadPath = "/api/upload-pas-foto"

	uploadServiceName = "Upload Pas Foto API"
	multipartMemory   = 8 << 20
	rollbackTimeout   = 10 * time.Second
	tracerName        = "github.com/benvon/pasfoto/internal/handlers"
)

// UploadResponse is returned after a successful upload
type UploadResponse struct {
	Success  bool   `json:"success"`
	OrderID  string `json:"orderId"`
	PhotoURL string `json:"photoUrl"`
	Message  string `json:"message"`
}

// ServiceStatus is returned by GET on the upload endpoint
type ServiceStatus struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Timestamp string `json:"timestamp"`
}

// UploadHandler stores a customer photo and records the order.
// Admission control runs before it as middleware.
type UploadHandler struct {
	store    storage.ObjectStore
	orders   database.OrderRepositoryInterface
	branchID string
	log      *zap.Logger
	now      func() time.Time
	tracer   trace.Tracer
	rollback func() backoff.BackOff
}

// UploadOption configures an UploadHandler
type UploadOption func(*UploadHandler)

// WithUploadClock overrides the time source
func WithUploadClock(now func() time.Time) UploadOption {
	return func(h *UploadHandler) {
		h.now = now
	}
}

// WithRollbackBackOff overrides the retry policy for removing orphaned photos
func WithRollbackBackOff(newBackOff func() backoff.BackOff) UploadOption {
	return func(h *UploadHandler) {
		h.rollback = newBackOff
	}
}

// NewUploadHandler creates an upload handler that files orders under branchID
func NewUploadHandler(store storage.ObjectStore, orders database.OrderRepositoryInterface, branchID string, log *zap.Logger, opts ...UploadOption) *UploadHandler {
	if log == nil {
		log = zap.NewNop()
	}
	h := &UploadHandler{
		store:    store,
		orders:   orders,
		branchID: branchID,
		log:      log,
		now:      time.Now,
		tracer:   otel.Tracer(tracerName),
		rollback: func() backoff.BackOff {
			return backoff.WithMaxRetries(backoff.NewConstantBackOff(500*time.Millisecond), 3)
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes registers the upload routes; gate wraps POST only
func (h *UploadHandler) RegisterRoutes(r *mux.Router, gate ...mux.MiddlewareFunc) {
	var post http.Handler = http.HandlerFunc(h.Upload)
	for i := len(gate) - 1; i >= 0; i-- {
		post = gate[i](post)
	}
	r.Handle(UploadPath, post).Methods(http.MethodPost)
	r.HandleFunc(UploadPath, h.Status).Methods(http.MethodGet)
}

// Status handles GET /api/upload-pas-foto
func (h *UploadHandler) Status(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, ServiceStatus{
		Status:    "OK",
		Service:   uploadServiceName,
		Timestamp: h.now().UTC().Format(time.RFC3339),
	})
}

// Upload handles POST /api/upload-pas-foto
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "upload.pas_foto")
	defer span.End()
	log := h.log.With(zap.String("request_id", request.RequestIDFromContext(ctx)))

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondJSONError(w, http.StatusRequestEntityTooLarge, "Request Entity Too Large",
				"File terlalu besar. Maksimal 25MB.")
			return
		}
		respondJSONError(w, http.StatusBadRequest, "Bad Request", validation.ErrMissingFields.Message)
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", validation.ErrMissingFields.Message)
		return
	}
	defer func() { _ = file.Close() }()

	form, err := h.parseForm(r, header)
	if err != nil {
		h.respondValidation(w, log, err)
		return
	}
	span.SetAttributes(
		attribute.String("pasfoto.size", form.Size),
		attribute.Int("pasfoto.quantity", form.Quantity),
		attribute.Int64("pasfoto.file_size", form.FileSize),
	)

	uploadedAt := h.now()
	objectPath := storage.ObjectPath(form.FileName, uploadedAt)

	if err := h.store.Upload(ctx, objectPath, file, form.FileSize, form.ContentType); err != nil {
		h.fail(span, log, "upload_failed", err)
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Gagal upload foto. Silakan coba lagi.")
		return
	}
	log.Info("upload_stored", zap.String("object_path", objectPath), zap.Int64("file_size", form.FileSize))

	photoURL, err := h.store.CreateSignedURL(ctx, objectPath, storage.SignedURLTTL)
	if err != nil {
		h.fail(span, log, "signed_url_failed", err)
		h.removeOrphan(ctx, log, objectPath)
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Gagal generate URL. Silakan coba lagi.")
		return
	}

	order := &models.Order{
		CustomerName:     form.CustomerName,
		CustomerWhatsApp: form.CustomerWhatsApp,
		ProductType:      models.ProductTypePasFoto,
		PhotoURL:         photoURL,
		Status:           models.OrderStatusPending,
		BranchID:         h.branchID,
		Details: models.OrderDetails{
			Background:       form.Background,
			Size:             form.Size,
			Quantity:         form.Quantity,
			OriginalFilename: form.FileName,
			FilePath:         objectPath,
			FileSize:         form.FileSize,
			UploadedAt:       uploadedAt.UTC(),
		},
	}
	if err := h.orders.Create(ctx, order); err != nil {
		h.fail(span, log, "order_insert_failed", err)
		h.removeOrphan(ctx, log, objectPath)
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Gagal menyimpan pesanan. Silakan coba lagi.")
		return
	}

	span.SetAttributes(attribute.String("pasfoto.order_id", order.ID.String()))
	log.Info("order_created",
		zap.String("order_id", order.ID.String()),
		zap.String("branch_id", order.BranchID),
		zap.String("object_path", objectPath),
	)
	respondJSON(w, http.StatusOK, UploadResponse{
		Success:  true,
		OrderID:  order.ID.String(),
		PhotoURL: photoURL,
		Message:  "Upload berhasil! Foto Anda telah diterima.",
	})
}

func (h *UploadHandler) parseForm(r *http.Request, header *multipart.FileHeader) (*validation.UploadForm, error) {
	rawName := r.FormValue("customerName")
	rawWhatsApp := r.FormValue("customerWhatsApp")
	background := r.FormValue("background")
	size := r.FormValue("size")
	rawQuantity := r.FormValue("quantity")
	if err := validation.RequireFields(rawName, rawWhatsApp, background, size, rawQuantity); err != nil {
		return nil, err
	}

	// a non-numeric quantity stays 0 and is rejected as an invalid quantity
	quantity, _ := strconv.Atoi(rawQuantity)
	form := &validation.UploadForm{
		CustomerName:     validation.SanitizeName(rawName),
		CustomerWhatsApp: validation.SanitizeWhatsApp(rawWhatsApp),
		Background:       background,
		Size:             size,
		Quantity:         quantity,
		FileName:         header.Filename,
		FileSize:         header.Size,
		ContentType:      header.Header.Get("Content-Type"),
	}
	if err := validation.ValidateUpload(form); err != nil {
		return nil, err
	}
	return form, nil
}

func (h *UploadHandler) respondValidation(w http.ResponseWriter, log *zap.Logger, err error) {
	var fe *validation.FieldError
	if errors.As(err, &fe) {
		log.Debug("upload_rejected_invalid_form", zap.String("field", fe.Field))
		respondJSONError(w, http.StatusBadRequest, "Bad Request", fe.Message)
		return
	}
	log.Error("upload_validation_error", zap.Error(err))
	respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Terjadi kesalahan server. Silakan coba lagi.")
}

func (h *UploadHandler) fail(span trace.Span, log *zap.Logger, event string, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, event)
	log.Error(event, zap.String("error", logpkg.SanitizeError(err)))
}

// removeOrphan deletes a photo that has no order. It outlives the request context.
func (h *UploadHandler) removeOrphan(ctx context.Context, log *zap.Logger, objectPath string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()

	op := func() error {
		return h.store.Remove(ctx, objectPath)
	}
	if err := backoff.Retry(op, backoff.WithContext(h.rollback(), ctx)); err != nil {
		log.Error("upload_rollback_failed",
			zap.String("object_path", objectPath),
			zap.String("error", logpkg.SanitizeError(err)),
		)
		return
	}
	log.Info("upload_rolled_back", zap.String("object_path", objectPath))
}
