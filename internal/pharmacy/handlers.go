package pharmacy

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/StricklySoft/clinic-hub/internal/serve"
	"github.com/StricklySoft/clinic-hub/pkg/auth"
	sserr "github.com/StricklySoft/clinic-hub/pkg/errors"
	"github.com/StricklySoft/clinic-hub/pkg/lifecycle"
	"github.com/StricklySoft/clinic-hub/pkg/models"
	"github.com/StricklySoft/clinic-hub/pkg/respond"
)

const (
	maxRequestBody = 64 << 10

	// ReasonIdentityDenied is returned by verify-staff when identity
	// reports that the caller lacks read_users.
	ReasonIdentityDenied = "identity_denied"
)

// StaffVerifier asks the identity service about the current caller.
// *IdentityClient implements it.
type StaffVerifier interface {
	PreviewUsers(ctx context.Context) (*StaffPreview, error)
}

// Server holds the pharmacy HTTP handlers.
type Server struct {
	cfg      Config
	gate     *auth.Gate
	store    Store
	identity StaffVerifier
	svc      *lifecycle.Service
}

// NewServer wires the handlers.
func NewServer(cfg Config, authn auth.Authenticator, store Store, identity StaffVerifier, svc *lifecycle.Service) *Server {
	return &Server{
		cfg:      cfg,
		gate:     auth.NewGate(authn, Policy(cfg.ClientID), ServiceName),
		store:    store,
		identity: identity,
		svc:      svc,
	}
}

// Routes returns the service's router.
//
//	GET    /health
//	GET    /ready
//	POST   /pharmacy/verify-staff                  staff.verify
//	GET    /pharmacy/medicines                     medicines.list
//	POST   /pharmacy/medicines                     medicines.create
//	GET    /pharmacy/medicines/{id}                medicines.get
//	PUT    /pharmacy/medicines/{id}                medicines.update
//	DELETE /pharmacy/medicines/{id}                medicines.delete
//	GET    /pharmacy/medicines/{id}/distributions  distributions.list
//	POST   /pharmacy/distributions                 distributions.create
func (s *Server) Routes() http.Handler {
	r := serve.NewRouter(serve.RouterOptions{AllowedOrigins: s.cfg.AllowedOrigins})
	serve.MountProbes(r, s.svc)

	g := s.gate.Require
	r.Route("/pharmacy", func(r chi.Router) {
		r.With(g(OpStaffVerify)).Post("/verify-staff", s.verifyStaff)
		r.With(g(OpDistributionsCreate)).Post("/distributions", s.createDistribution)

		r.Route("/medicines", func(r chi.Router) {
			r.With(g(OpMedicinesList)).Get("/", s.listMedicines)
			r.With(g(OpMedicinesCreate)).Post("/", s.createMedicine)
			r.With(g(OpMedicinesGet)).Get("/{id}", s.getMedicine)
			r.With(g(OpMedicinesUpdate)).Put("/{id}", s.updateMedicine)
			r.With(g(OpMedicinesDelete)).Delete("/{id}", s.deleteMedicine)
			r.With(g(OpDistributionsList)).Get("/{id}/distributions", s.listDistributions)
		})
	})
	return r
}

func (s *Server) listMedicines(w http.ResponseWriter, r *http.Request) {
	meds, err := s.store.ListMedicines(r.Context())
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, meds)
}

func (s *Server) getMedicine(w http.ResponseWriter, r *http.Request) {
	id, err := medicineID(r)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	m, err := s.store.GetMedicine(r.Context(), id)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, m)
}

func (s *Server) createMedicine(w http.ResponseWriter, r *http.Request) {
	var in models.MedicineInput
	if err := decodeBody(r, &in); err != nil {
		respond.Error(w, r, err)
		return
	}
	m := models.NewMedicine(in)
	if err := s.store.CreateMedicine(r.Context(), m); err != nil {
		respond.Error(w, r, err)
		return
	}
	slog.InfoContext(r.Context(), "pharmacy: medicine created",
		"medicine_id", m.ID,
		"stock", m.Stock,
		"subject", auth.MustClaimsFromContext(r.Context()).Subject,
	)
	respond.JSON(w, http.StatusCreated, m)
}

func (s *Server) updateMedicine(w http.ResponseWriter, r *http.Request) {
	id, err := medicineID(r)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	var in models.MedicineInput
	if err := decodeBody(r, &in); err != nil {
		respond.Error(w, r, err)
		return
	}
	m, err := s.store.UpdateMedicine(r.Context(), id, in)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, m)
}

func (s *Server) deleteMedicine(w http.ResponseWriter, r *http.Request) {
	id, err := medicineID(r)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	if err := s.store.DeleteMedicine(r.Context(), id); err != nil {
		respond.Error(w, r, err)
		return
	}
	slog.InfoContext(r.Context(), "pharmacy: medicine deleted",
		"medicine_id", id,
		"subject", auth.MustClaimsFromContext(r.Context()).Subject,
	)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listDistributions(w http.ResponseWriter, r *http.Request) {
	id, err := medicineID(r)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	out, err := s.store.ListDistributions(r.Context(), id)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, out)
}

// createDistribution hands out stock. The record is attributed to the
// token subject, never to a field of the body.
func (s *Server) createDistribution(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req models.DistributionRequest
	if err := decodeBody(r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}

	c := auth.MustClaimsFromContext(ctx)
	d := models.NewDistribution(req, c.Subject)
	if err := s.store.Distribute(ctx, d); err != nil {
		if sserr.HasCode(err, sserr.CodeInsufficientStock) {
			slog.InfoContext(ctx, "pharmacy: distribution refused",
				"medicine_id", req.MedicineID,
				"quantity", req.Quantity,
				"subject", c.Subject,
			)
		}
		respond.Error(w, r, err)
		return
	}

	slog.InfoContext(ctx, "pharmacy: medicine distributed",
		"distribution_id", d.ID,
		"medicine_id", d.MedicineID,
		"quantity", d.Quantity,
		"subject", c.Subject,
	)
	respond.JSON(w, http.StatusCreated, d)
}

// verifyStaff checks the caller against identity by forwarding their
// token to GET /users?debug=1.
func (s *Server) verifyStaff(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req models.VerifyStaffRequest
	if err := decodeBody(r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}

	c := auth.MustClaimsFromContext(ctx)
	preview, err := s.identity.PreviewUsers(ctx)
	if err != nil {
		slog.WarnContext(ctx, "pharmacy: staff verification failed",
			"subject", c.Subject,
			"code", sserr.GetCode(err),
			"error", err,
		)
		respond.Error(w, r, err)
		return
	}

	resp := models.VerifyStaffResponse{
		OK:        preview.OK,
		UserID:    c.Subject,
		StaffData: preview.Raw,
	}
	if !preview.OK {
		resp.Reason = ReasonIdentityDenied
	}
	slog.InfoContext(ctx, "pharmacy: staff verified", "subject", c.Subject, "ok", resp.OK)
	respond.JSON(w, http.StatusOK, resp)
}

type idParam struct {
	ID string `json:"id" validate:"required,max=64,printascii"`
}

func medicineID(r *http.Request) (string, error) {
	p := idParam{ID: chi.URLParam(r, "id")}
	if err := models.Validate(p); err != nil {
		return "", err
	}
	return p.ID, nil
}

// decodeBody reads a JSON body into v and validates it.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return sserr.Validation("request body is required")
		}
		return sserr.Wrap(err, sserr.CodeValidationFormat, "request body is not valid JSON")
	}
	return models.Validate(v)
}
