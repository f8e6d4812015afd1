package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gartstein/solarcrm/internal/crm/auth"
	"github.com/gartstein/solarcrm/internal/crm/controller"
	"github.com/gartstein/solarcrm/internal/crm/db"
	e "github.com/gartstein/solarcrm/internal/crm/errors"
	"github.com/gartstein/solarcrm/internal/crm/models"
	"github.com/gartstein/solarcrm/internal/crm/storage"
	"github.com/google/uuid"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
)

// MaxDocumentSize bounds contract document uploads.
const MaxDocumentSize = 20 << 20

type CustomerController interface {
	CreateCustomer(ctx context.Context, c *models.Customer) (*models.Customer, error)
	GetCustomer(ctx context.Context, id uuid.UUID) (*models.Customer, error)
	UpdateCustomer(ctx context.Context, id uuid.UUID, update *models.CustomerUpdate) (*models.Customer, error)
	DeactivateCustomer(ctx context.Context, id uuid.UUID) (*models.Customer, error)
	RestoreCustomer(ctx context.Context, id uuid.UUID) (*models.Customer, error)
	DeleteCustomer(ctx context.Context, id uuid.UUID) error
	ListCustomers(ctx context.Context, f db.CustomerFilter) ([]models.Customer, int64, error)
}

type VendorController interface {
	CreateInstaller(ctx context.Context, i *models.Installer) (*models.Installer, error)
	GetInstaller(ctx context.Context, id uuid.UUID) (*models.Installer, error)
	UpdateInstaller(ctx context.Context, id uuid.UUID, update *models.InstallerUpdate) (*models.Installer, error)
	SetInstallerActive(ctx context.Context, id uuid.UUID, active bool) (*models.Installer, error)
	DeleteInstaller(ctx context.Context, id uuid.UUID) error
	ListInstallers(ctx context.Context, f db.InstallerFilter) ([]models.Installer, int64, error)

	CreateSupplier(ctx context.Context, s *models.Supplier) (*models.Supplier, error)
	GetSupplier(ctx context.Context, id uuid.UUID) (*models.Supplier, error)
	UpdateSupplier(ctx context.Context, id uuid.UUID, update *models.SupplierUpdate) (*models.Supplier, error)
	SetSupplierActive(ctx context.Context, id uuid.UUID, active bool) (*models.Supplier, error)
	DeleteSupplier(ctx context.Context, id uuid.UUID) error
	ListSuppliers(ctx context.Context, f db.SupplierFilter) ([]models.Supplier, int64, error)
}

type ContactController interface {
	CreateContact(ctx context.Context, c *models.Contact) (*models.Contact, error)
	GetContact(ctx context.Context, id uuid.UUID) (*models.Contact, error)
	UpdateContact(ctx context.Context, id uuid.UUID, update *models.ContactUpdate) (*models.Contact, error)
	DeleteContact(ctx context.Context, id uuid.UUID) error
	ListContacts(ctx context.Context, f db.ContactFilter) ([]models.Contact, int64, error)
	RelatedEntity(ctx context.Context, id uuid.UUID) (interface{}, error)
}

type LeadController interface {
	LeadServiceController
	CreateLead(ctx context.Context, l *models.Lead) (*models.Lead, error)
	UpdateLead(ctx context.Context, id uuid.UUID, update *models.LeadUpdate) (*models.Lead, error)
	SetLeadActive(ctx context.Context, id uuid.UUID, active bool) (*models.Lead, error)
	ListLeads(ctx context.Context, f db.LeadFilter) ([]models.Lead, int64, error)
	SetLeadStatus(ctx context.Context, ids []uuid.UUID, status models.LeadStatus) ([]uuid.UUID, error)
	UnassignLeads(ctx context.Context, user string) (int64, error)
}

type ContractController interface {
	Today() time.Time
	CreateContract(ctx context.Context, c *models.Contract) (*models.Contract, error)
	GetContract(ctx context.Context, id uuid.UUID) (*models.Contract, error)
	UpdateContract(ctx context.Context, id uuid.UUID, update *models.ContractUpdate) (*models.Contract, error)
	SetContractActive(ctx context.Context, id uuid.UUID, active bool) (*models.Contract, error)
	ListContracts(ctx context.Context, f db.ContractFilter) ([]models.Contract, int64, error)
	UploadContractDocument(ctx context.Context, id uuid.UUID, filename string, size int64, contentType string, r io.Reader) (*models.Contract, error)
	OpenContractDocument(ctx context.Context, id uuid.UUID) (*storage.Object, string, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Controllers are the services behind the HTTP admin API.
type Controllers struct {
	Customers CustomerController
	Vendors   VendorController
	Contacts  ContactController
	Leads     LeadController
	Contracts ContractController
	Health    Pinger
}

// ControllersOf exposes the services of s to the HTTP handler.
func ControllersOf(s *controller.Services) Controllers {
	return Controllers{
		Customers: s.Customers,
		Vendors:   s.Vendors,
		Contacts:  s.Contacts,
		Leads:     s.Leads,
		Contracts: s.Contracts,
		Health:    s,
	}
}

// HTTPHandler serves the JSON admin API on a grpc-gateway mux.
type HTTPHandler struct {
	Controllers
	logger *zap.Logger
}

func NewHTTPHandler(c Controllers, logger *zap.Logger) *HTTPHandler {
	return &HTTPHandler{
		Controllers: c,
		logger:      logger.Named("http_handler"),
	}
}

type route struct {
	method  string
	pattern string
	handle  runtime.HandlerFunc
}

// Register adds every admin route to mux.
func (h *HTTPHandler) Register(mux *runtime.ServeMux) error {
	for _, rt := range h.routes() {
		if err := mux.HandlePath(rt.method, rt.pattern, rt.handle); err != nil {
			return fmt.Errorf("failed to register %s %s: %w", rt.method, rt.pattern, err)
		}
	}
	return nil
}

func (h *HTTPHandler) routes() []route {
	get, post, patch, put, del := http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodPut, http.MethodDelete
	return []route{
		{get, "/v1/customers", h.respond(http.StatusOK, h.listCustomers)},
		{post, "/v1/customers", h.respond(http.StatusCreated, h.createCustomer)},
		{get, "/v1/customers/{id}", h.respond(http.StatusOK, h.getCustomer)},
		{patch, "/v1/customers/{id}", h.respond(http.StatusOK, h.updateCustomer)},
		{del, "/v1/customers/{id}", h.respond(http.StatusNoContent, h.deleteCustomer)},
		{post, "/v1/customers/{id}/deactivate", h.respond(http.StatusOK, h.setCustomerActive(false))},
		{post, "/v1/customers/{id}/restore", h.respond(http.StatusOK, h.setCustomerActive(true))},
		{get, "/v1/customers/{id}/contacts", h.respond(http.StatusOK, h.listContactsOf(models.KindCustomer))},
		{post, "/v1/customers/{id}/contacts", h.respond(http.StatusCreated, h.createContactOf(models.KindCustomer))},

		{get, "/v1/installers", h.respond(http.StatusOK, h.listInstallers)},
		{post, "/v1/installers", h.respond(http.StatusCreated, h.createInstaller)},
		{get, "/v1/installers/{id}", h.respond(http.StatusOK, h.getInstaller)},
		{patch, "/v1/installers/{id}", h.respond(http.StatusOK, h.updateInstaller)},
		{del, "/v1/installers/{id}", h.respond(http.StatusNoContent, h.deleteInstaller)},
		{post, "/v1/installers/{id}/deactivate", h.respond(http.StatusOK, h.setInstallerActive(false))},
		{post, "/v1/installers/{id}/restore", h.respond(http.StatusOK, h.setInstallerActive(true))},
		{get, "/v1/installers/{id}/contacts", h.respond(http.StatusOK, h.listContactsOf(models.KindInstaller))},
		{post, "/v1/installers/{id}/contacts", h.respond(http.StatusCreated, h.createContactOf(models.KindInstaller))},

		{get, "/v1/suppliers", h.respond(http.StatusOK, h.listSuppliers)},
		{post, "/v1/suppliers", h.respond(http.StatusCreated, h.createSupplier)},
		{get, "/v1/suppliers/{id}", h.respond(http.StatusOK, h.getSupplier)},
		{patch, "/v1/suppliers/{id}", h.respond(http.StatusOK, h.updateSupplier)},
		{del, "/v1/suppliers/{id}", h.respond(http.StatusNoContent, h.deleteSupplier)},
		{post, "/v1/suppliers/{id}/deactivate", h.respond(http.StatusOK, h.setSupplierActive(false))},
		{post, "/v1/suppliers/{id}/restore", h.respond(http.StatusOK, h.setSupplierActive(true))},
		{get, "/v1/suppliers/{id}/contacts", h.respond(http.StatusOK, h.listContactsOf(models.KindSupplier))},
		{post, "/v1/suppliers/{id}/contacts", h.respond(http.StatusCreated, h.createContactOf(models.KindSupplier))},

		{get, "/v1/contacts", h.respond(http.StatusOK, h.listContacts)},
		{post, "/v1/contacts", h.respond(http.StatusCreated, h.createContact)},
		{get, "/v1/contacts/{id}", h.respond(http.StatusOK, h.getContact)},
		{patch, "/v1/contacts/{id}", h.respond(http.StatusOK, h.updateContact)},
		{del, "/v1/contacts/{id}", h.respond(http.StatusNoContent, h.deleteContact)},
		{get, "/v1/contacts/{id}/related", h.respond(http.StatusOK, h.getRelatedEntity)},

		{get, "/v1/leads", h.respond(http.StatusOK, h.listLeads)},
		{post, "/v1/leads", h.respond(http.StatusCreated, h.createLead)},
		{post, "/v1/leads/status", h.respond(http.StatusOK, h.setLeadStatus)},
		{get, "/v1/leads/{id}", h.respond(http.StatusOK, h.getLead)},
		{patch, "/v1/leads/{id}", h.respond(http.StatusOK, h.updateLead)},
		{post, "/v1/leads/{id}/convert", h.respond(http.StatusOK, h.convertLead)},
		{post, "/v1/leads/{id}/deactivate", h.respond(http.StatusOK, h.setLeadActive(false))},
		{post, "/v1/leads/{id}/restore", h.respond(http.StatusOK, h.setLeadActive(true))},
		{post, "/v1/users/{user}/unassign-leads", h.respond(http.StatusOK, h.unassignLeads)},

		{get, "/v1/contracts", h.respond(http.StatusOK, h.listContracts)},
		{post, "/v1/contracts", h.respond(http.StatusCreated, h.createContract)},
		{get, "/v1/contracts/{id}", h.respond(http.StatusOK, h.getContract)},
		{patch, "/v1/contracts/{id}", h.respond(http.StatusOK, h.updateContract)},
		{post, "/v1/contracts/{id}/deactivate", h.respond(http.StatusOK, h.setContractActive(false))},
		{post, "/v1/contracts/{id}/restore", h.respond(http.StatusOK, h.setContractActive(true))},
		{put, "/v1/contracts/{id}/document", h.respond(http.StatusOK, h.uploadDocument)},
		{get, "/v1/contracts/{id}/document", h.downloadDocument},

		{get, "/v1/exports/customers", h.exportCustomers},
		{get, "/v1/exports/leads", h.exportLeads},
	}
}

type handlerFunc func(r *http.Request, params map[string]string) (interface{}, error)

// respond runs fn and writes its result as JSON with status, or the
// mapped error.
func (h *HTTPHandler) respond(status int, fn handlerFunc) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, params map[string]string) {
		out, err := fn(r, params)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		if status == http.StatusNoContent {
			w.WriteHeader(status)
			return
		}
		writeJSON(w, status, out)
	}
}

type errorBody struct {
	Error  string         `json:"error"`
	Fields []e.FieldError `json:"fields,omitempty"`
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := codeOf(err)
	body := errorBody{Error: err.Error()}
	var v *e.ValidationError
	if errors.As(err, &v) {
		body.Fields = v.Fields
	}
	if code == codes.Internal {
		h.logger.Error("Internal server error",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		body = errorBody{Error: "internal server error"}
	}
	writeJSON(w, runtime.HTTPStatusFromCode(code), body)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decode(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, e.ErrInvalidInput) {
			return err
		}
		return fmt.Errorf("%w: invalid request body: %v", e.ErrInvalidInput, err)
	}
	return nil
}

func pathID(params map[string]string) (uuid.UUID, error) {
	id, err := uuid.Parse(params["id"])
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid id %q", e.ErrInvalidInput, params["id"])
	}
	return id, nil
}

func listOptions(q url.Values) (db.ListOptions, error) {
	opts := db.ListOptions{Search: q.Get("q")}
	var err error
	if opts.ActiveOnly, err = boolParam(q, "active"); err != nil {
		return opts, err
	}
	if opts.Page, err = intParam(q, "page", db.MaxPage); err != nil {
		return opts, err
	}
	if opts.PageSize, err = intParam(q, "page_size", db.MaxPage); err != nil {
		return opts, err
	}
	return opts, nil
}

func boolParam(q url.Values, key string) (bool, error) {
	v := q.Get(key)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be true or false", e.ErrInvalidInput, key)
	}
	return b, nil
}

// intParam parses key as a number in [0, max]; absent means 0.
func intParam(q url.Values, key string, max int) (int, error) {
	v := q.Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 || n > max {
		return 0, fmt.Errorf("%w: %s must be a number between 0 and %d", e.ErrInvalidInput, key, max)
	}
	return n, nil
}

func uuidParam(q url.Values, key string) (*uuid.UUID, error) {
	v := q.Get(key)
	if v == "" {
		return nil, nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid %s", e.ErrInvalidInput, key)
	}
	return &id, nil
}

func (h *HTTPHandler) healthz(w http.ResponseWriter, r *http.Request) {
	if h.Health != nil {
		if err := h.Health.Ping(r.Context()); err != nil {
			h.logger.Warn("Health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Customers

func customerFilter(q url.Values) (db.CustomerFilter, error) {
	opts, err := listOptions(q)
	return db.CustomerFilter{
		ListOptions: opts,
		Type:        models.CustomerType(q.Get("type")),
		City:        q.Get("city"),
	}, err
}

func (h *HTTPHandler) listCustomers(r *http.Request, _ map[string]string) (interface{}, error) {
	f, err := customerFilter(r.URL.Query())
	if err != nil {
		return nil, err
	}
	found, total, err := h.Customers.ListCustomers(r.Context(), f)
	if err != nil {
		return nil, err
	}
	return newList(found, total, toCustomerDTO), nil
}

func (h *HTTPHandler) createCustomer(r *http.Request, _ map[string]string) (interface{}, error) {
	var in customerInput
	if err := decode(r, &in); err != nil {
		return nil, err
	}
	created, err := h.Customers.CreateCustomer(r.Context(), in.model())
	if err != nil {
		return nil, err
	}
	return toCustomerDTO(created), nil
}

func (h *HTTPHandler) getCustomer(r *http.Request, params map[string]string) (interface{}, error) {
	id, err := pathID(params)
	if err != nil {
		return nil, err
	}
	c, err := h.Customers.GetCustomer(r.Context(), id)
	if err != nil {
		return nil, err
	}
	return toCustomerDTO(c), nil
}

func (h *HTTPHandler) updateCustomer(r *http.Request, params map[string]string) (interface{}, error) {
	id, err := pathID(params)
	if err != nil {
		return nil, err
	}
	var in customerInput
	if err := decode(r, &in); err != nil {
		return nil, err
	}
	updated, err := h.Customers.UpdateCustomer(r.Context(), id, in.update())
	if err != nil {
		return nil, err
	}
	return toCustomerDTO(updated), nil
}

func (h *HTTPHandler) deleteCustomer(r *http.Request, params map[string]string) (interface{}, error) {
	id, err := pathID(params)
	if err != nil {
		return nil, err
	}
	return nil, h.Customers.DeleteCustomer(r.Context(), id)
}

func (h *HTTPHandler) setCustomerActive(active bool) handlerFunc {
	return func(r *http.Request, params map[string]string) (interface{}, error) {
		id, err := pathID(params)
		if err != nil {
			return nil, err
		}
		var c *models.Customer
		if active {
			c, err = h.Customers.RestoreCustomer(r.Context(), id)
		} else {
			c, err = h.Customers.DeactivateCustomer(r.Context(), id)
		}
		if err != nil {
			return nil, err
		}
		return toCustomerDTO(c), nil
	}
}

// Installers

func (h *HTTPHandler) listInstallers(r *http.Request, _ map[string]string) (interface{}, error) {
	q := r.URL.Query()
	opts, err := listOptions(q)
	if err != nil {
		return nil, err
	}
	found, total, err := h.Vendors.ListInstallers(r.Context(), db.InstallerFilter{ListOptions: opts, City: q.Get("city")})
	if err != nil {
		return nil, err
	}
	return newList(found, total, toInstallerDTO), nil
}

func (h *HTTPHandler) createInstaller(r *http.Request, _ map[string]string) (interface{}, error) {
	var in installerInput
	if err := decode(r, &in); err != nil {
		return nil, err
	}
	created, err := h.Vendors.CreateInstaller(r.Context(), in.model())
	if err != nil {
		return nil, err
	}
	return toInstallerDTO(created), nil
}

func (h *HTTPHandler) getInstaller(r *http.Request, params map[string]string) (interface{}, error) {
	id, err := pathID(params)
	if err != nil {
		return nil, err
	}
	i, err := h.Vendors.GetInstaller(r.Context(), id)
	if err != nil {
		return nil, err
	}
	return toInstallerDTO(i), nil
}

func (h *HTTPHandler) updateInstaller(r *http.Request, params map[string]string) (interface{}, error) {
	id, err := pathID(params)
	if err != nil {
		return nil, err
	}
	var in installerInput
	if err := decode(r, &in); err != nil {
		return nil, err
	}
	updated, err := h.Vendors.UpdateInstaller(r.Context(), id, in.update())
	if err != nil {
		return nil, err
	}
	return toInstallerDTO(updated), nil
}

func (h *HTTPHandler) deleteInstaller(r *http.Request, params map[string]string) (interface{}, error) {
	id, err := pathID(params)
	if err != nil {
		return nil, err
	}
	return nil, h.Vendors.DeleteInstaller(r.Context(), id)
}

func (h *HTTPHandler) setInstallerActive(active bool) handlerFunc {
	return func(r *http.Request, params map[string]string) (interface{}, error) {
		id, err := pathID(params)
		if err != nil {
			return nil, err
		}
		i, err := h.Vendors.SetInstallerActive(r.Context(), id, active)
		if err != nil {
			return nil, err
		}
		return toInstallerDTO(i), nil
	}
}

// Suppliers

func (h *HTTPHandler) listSuppliers(r *http.Request, _ map[string]string) (interface{}, error) {
	q := r.URL.Query()
	opts, err := listOptions(q)
	if err != nil {
		return nil, err
	}
	found, total, err := h.Vendors.ListSuppliers(r.Context(), db.SupplierFilter{ListOptions: opts, Type: models.SupplierType(q.Get("type"))})
	if err != nil {
		return nil, err
	}
	return newList(found, total, toSupplierDTO), nil
}

func (h *HTTPHandler) createSupplier(r *http.Request, _ map[string]string) (interface{}, error) {
	var in supplierInput
	if err := decode(r, &in); err != nil {
		return nil, err
	}
	created, err := h.Vendors.CreateSupplier(r.Context(), in.model())
	if err != nil {
		return nil, err
	}
	return toSupplierDTO(created), nil
}

func (h *HTTPHandler) getSupplier(r *http.Request, params map[string]string) (interface{}, error) {
	id, err := pathID(params)
	if err != nil {
		return nil, err
	}
	s, err := h.Vendors.GetSupplier(r.Context(), id)
	if err != nil {
		return nil, err
	}
	return toSupplierDTO(s), nil
}

func (h *HTTPHandler) updateSupplier(r *http.Request, params map[string]string) (interface{}, error) {
	id, err := pathID(params)
	if err != nil {
		return nil, err
	}
	var in supplierInput
	if err := decode(r, &in); err != nil {
		return nil, err
	}
	updated, err := h.Vendors.UpdateSupplier(r.Context(), id, in.update())
	if err != nil {
		return nil, err
	}
	return toSupplierDTO(updated), nil
}

func (h *HTTPHandler) deleteSupplier(r *http.Request, params map[string]string) (interface{}, error) {
	id, err := pathID(params)
	if err != nil {
		return nil, err
	}
	return nil, h.Vendors.DeleteSupplier(r.Context(), id)
}

func (h *HTTPHandler) setSupplierActive(active bool) handlerFunc {
	return func(r *http.Request, params map[string]string) (interface{}, error) {
		id, err := pathID(params)
		if err != nil {
			return nil, err
		}
		s, err := h.Vendors.SetSupplierActive(r.Context(), id, active)
		if err != nil {
			return nil, err
		}
		return toSupplierDTO(s), nil
	}
}

// Contacts

func contactFilter(q url.Values) (db.ContactFilter, error) {
	opts, err := listOptions(q)
	if err != nil {
		return db.ContactFilter{}, err
	}
	f := db.ContactFilter{ListOptions: opts, Kind: models.EntityKind(q.Get("kind"))}
	if f.Kind != "" && !f.Kind.Valid() {
		return f, fmt.Errorf("%w: unknown kind %q", e.ErrInvalidInput, f.Kind)
	}
	if q.Get("primary") != "" {
		primary, err := boolParam(q, "primary")
		if err != nil {
			return f, err
		}
		f.Primary = &primary
	}
	return f, nil
}

func (h *HTTPHandler) listContacts(r *http.Request, _ map[string]string) (interface{}, error) {
	f, err := contactFilter(r.URL.Query())
	if err != nil {
		return nil, err
	}
	found, total, err := h.Contacts.ListContacts(r.Context(), f)
	if err != nil {
		return nil, err
	}
	return newList(found, total, toContactDTO), nil
}

func (h *HTTPHandler) listContactsOf(kind models.EntityKind) handlerFunc {
	return func(r *http.Request, params map[string]string) (interface{}, error) {
		id, err := pathID(params)
		if err != nil {
			return nil, err
		}
		f, err := contactFilter(r.URL.Query())
		if err != nil {
			return nil, err
		}
		f.Parent = &models.ParentRef{Kind: kind, ID: id}
		found, total, err := h.Contacts.ListContacts(r.Context(), f)
		if err != nil {
			return nil, err
		}
		return newList(found, total, toContactDTO), nil
	}
}

func (h *HTTPHandler) createContact(r *http.Request, _ map[string]string) (interface{}, error) {
	var in contactInput
	if err := decode(r, &in); err != nil {
		return nil, err
	}
	created, err := h.Contacts.CreateContact(r.Context(), in.model(nil))
	if err != nil {
		return nil, err
	}
	return toContactDTO(created), nil
}

func (h *HTTPHandler) createContactOf(kind models.EntityKind) handlerFunc {
	return func(r *http.Request, params map[string]string) (interface{}, error) {
		id, err := pathID(params)
		if err != nil {
			return nil, err
		}
		var in contactInput
		if err := decode(r, &in); err != nil {
			return nil, err
		}
		created, err := h.Contacts.CreateContact(r.Context(), in.model(&models.ParentRef{Kind: kind, ID: id}))
		if err != nil {
			return nil, err
		}
		return toContactDTO(created), nil
	}
}

func (h *HTTPHandler) getContact(r *http.Request, params map[string]string) (interface{}, error) {
	id, err := pathID(params)
	if err != nil {
		return nil, err
	}
	c, err := h.Contacts.GetContact(r.Context(), id)
	if err != nil {
		return nil, err
	}
	return toContactDTO(c), nil
}

func (h *HTTPHandler) updateContact(r *http.Request, params map[string]string) (interface{}, error) {
	id, err := pathID(params)
	if err != nil {
		return nil, err
	}
	var in contactInput
	if err := decode(r, &in); err != nil {
		return nil, err
	}
	update, err := in.update()
	if err != nil {
		return nil, err
	}
	updated, err := h.Contacts.UpdateContact(r.Context(), id, update)
	if err != nil {
		return nil, err
	}
	return toContactDTO(updated), nil
}

func (h *HTTPHandler) deleteContact(r *http.Request, params map[string]string) (interface{}, error) {
	id, err := pathID(params)
	if err != nil {
		return nil, err
	}
	return nil, h.Contacts.DeleteContact(r.Context(), id)
}

// getRelatedEntity returns the customer, installer or supplier owning the
// contact, tagged with its entity type.
func (h *HTTPHandler) getRelatedEntity(r *http.Request, params map[string]string) (interface{}, error) {
	id, err := pathID(params)
	if err != nil {
		return nil, err
	}
	related, err := h.Contacts.RelatedEntity(r.Context(), id)
	if err != nil {
		return nil, err
	}
	switch v := related.(type) {
	case *models.Customer:
		return relatedDTO{EntityType: models.KindCustomer, Entity: toCustomerDTO(v)}, nil
	case *models.Installer:
		return relatedDTO{EntityType: models.KindInstaller, Entity: toInstallerDTO(v)}, nil
	case *models.Supplier:
		return relatedDTO{EntityType: models.KindSupplier, Entity: toSupplierDTO(v)}, nil
	}
	return nil, fmt.Errorf("unexpected related entity %T", related)
}

// Leads

func leadFilter(q url.Values) (db.LeadFilter, error) {
	opts, err := listOptions(q)
	if err != nil {
		return db.LeadFilter{}, err
	}
	customerID, err := uuidParam(q, "customer_id")
	return db.LeadFilter{
		ListOptions: opts,
		Status:      models.LeadStatus(q.Get("status")),
		Source:      models.LeadSource(q.Get("source")),
		AssignedTo:  q.Get("assigned_to"),
		Country:     q.Get("country"),
		CustomerID:  customerID,
	}, err
}

func (h *HTTPHandler) listLeads(r *http.Request, _ map[string]string) (interface{}, error) {
	f, err := leadFilter(r.URL.Query())
	if err != nil {
		return nil, err
	}
	found, total, err := h.Leads.ListLeads(r.Context(), f)
	if err != nil {
		return nil, err
	}
	return newList(found, total, toLeadDTO), nil
}

func (h *HTTPHandler) createLead(r *http.Request, _ map[string]string) (interface{}, error) {
	var in leadInput
	if err := decode(r, &in); err != nil {
		return nil, err
	}
	if in.AssignedTo == nil {
		if user, ok := auth.UserFromContext(r.Context()); ok {
			in.AssignedTo = &user
		}
	}
	created, err := h.Leads.CreateLead(r.Context(), in.model())
	if err != nil {
		return nil, err
	}
	return toLeadDTO(created), nil
}

func (h *HTTPHandler) getLead(r *http.Request, params map[string]string) (interface{}, error) {
	id, err := pathID(params)
	if err != nil {
		return nil, err
	}
	l, err := h.Leads.GetLead(r.Context(), id)
	if err != nil {
		return nil, err
	}
	return toLeadDTO(l), nil
}

func (h *HTTPHandler) updateLead(r *http.Request, params map[string]string) (interface{}, error) {
	id, err := pathID(params)
	if err != nil {
		return nil, err
	}
	var in leadInput
	if err := decode(r, &in); err != nil {
		return nil, err
	}
	updated, err := h.Leads.UpdateLead(r.Context(), id, in.update())
	if err != nil {
		return nil, err
	}
	return toLeadDTO(updated), nil
}

func (h *HTTPHandler) setLeadActive(active bool) handlerFunc {
	return func(r *http.Request, params map[string]string) (interface{}, error) {
		id, err := pathID(params)
		if err != nil {
			return nil, err
		}
		l, err := h.Leads.SetLeadActive(r.Context(), id, active)
		if err != nil {
			return nil, err
		}
		return toLeadDTO(l), nil
	}
}

func (h *HTTPHandler) convertLead(r *http.Request, params map[string]string) (interface{}, error) {
	id, err := pathID(params)
	if err != nil {
		return nil, err
	}
	conv, err := h.Leads.ConvertLead(r.Context(), id)
	if err != nil {
		return nil, err
	}
	return toConversionDTO(conv), nil
}

func toConversionDTO(conv *controller.Conversion) conversionDTO {
	out := conversionDTO{
		Lead:     toLeadDTO(conv.Lead),
		Customer: toCustomerDTO(conv.Customer),
		Created:  conv.Created,
	}
	if conv.Contact != nil {
		contact := toContactDTO(conv.Contact)
		out.Contact = &contact
	}
	return out
}

func (h *HTTPHandler) setLeadStatus(r *http.Request, _ map[string]string) (interface{}, error) {
	var in statusChangeInput
	if err := decode(r, &in); err != nil {
		return nil, err
	}
	if len(in.IDs) == 0 {
		return nil, fmt.Errorf("%w: ids are required", e.ErrInvalidInput)
	}
	changed, err := h.Leads.SetLeadStatus(r.Context(), in.IDs, in.Status)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"changed": changed}, nil
}

func (h *HTTPHandler) unassignLeads(r *http.Request, params map[string]string) (interface{}, error) {
	n, err := h.Leads.UnassignLeads(r.Context(), params["user"])
	if err != nil {
		return nil, err
	}
	return map[string]int64{"unassigned": n}, nil
}

// Contracts

func contractFilter(q url.Values) (db.ContractFilter, error) {
	opts, err := listOptions(q)
	if err != nil {
		return db.ContractFilter{}, err
	}
	customerID, err := uuidParam(q, "customer_id")
	return db.ContractFilter{
		ListOptions: opts,
		Type:        models.ContractType(q.Get("type")),
		Status:      models.ContractStatus(q.Get("status")),
		CustomerID:  customerID,
	}, err
}

func (h *HTTPHandler) contractDTO(c *models.Contract) contractDTO {
	return toContractDTO(c, h.Contracts.Today())
}

func (h *HTTPHandler) listContracts(r *http.Request, _ map[string]string) (interface{}, error) {
	f, err := contractFilter(r.URL.Query())
	if err != nil {
		return nil, err
	}
	found, total, err := h.Contracts.ListContracts(r.Context(), f)
	if err != nil {
		return nil, err
	}
	return newList(found, total, h.contractDTO), nil
}

func (h *HTTPHandler) createContract(r *http.Request, _ map[string]string) (interface{}, error) {
	var in contractInput
	if err := decode(r, &in); err != nil {
		return nil, err
	}
	created, err := h.Contracts.CreateContract(r.Context(), in.model())
	if err != nil {
		return nil, err
	}
	return h.contractDTO(created), nil
}

func (h *HTTPHandler) getContract(r *http.Request, params map[string]string) (interface{}, error) {
	id, err := pathID(params)
	if err != nil {
		return nil, err
	}
	c, err := h.Contracts.GetContract(r.Context(), id)
	if err != nil {
		return nil, err
	}
	return h.contractDTO(c), nil
}

func (h *HTTPHandler) updateContract(r *http.Request, params map[string]string) (interface{}, error) {
	id, err := pathID(params)
	if err != nil {
		return nil, err
	}
	var in contractInput
	if err := decode(r, &in); err != nil {
		return nil, err
	}
	update, err := in.update()
	if err != nil {
		return nil, err
	}
	updated, err := h.Contracts.UpdateContract(r.Context(), id, update)
	if err != nil {
		return nil, err
	}
	return h.contractDTO(updated), nil
}

func (h *HTTPHandler) setContractActive(active bool) handlerFunc {
	return func(r *http.Request, params map[string]string) (interface{}, error) {
		id, err := pathID(params)
		if err != nil {
			return nil, err
		}
		c, err := h.Contracts.SetContractActive(r.Context(), id, active)
		if err != nil {
			return nil, err
		}
		return h.contractDTO(c), nil
	}
}

// uploadDocument accepts a multipart form with a "file" field or a raw
// body named by the filename query parameter.
func (h *HTTPHandler) uploadDocument(r *http.Request, params map[string]string) (interface{}, error) {
	id, err := pathID(params)
	if err != nil {
		return nil, err
	}

	var (
		body        io.Reader
		filename    = r.URL.Query().Get("filename")
		size        = r.ContentLength
		contentType = r.Header.Get("Content-Type")
	)
	mediaType, _, _ := mime.ParseMediaType(contentType)
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(MaxDocumentSize); err != nil {
			return nil, fmt.Errorf("%w: invalid multipart form: %v", e.ErrInvalidInput, err)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			return nil, fmt.Errorf("%w: file field is required", e.ErrInvalidInput)
		}
		defer file.Close()
		body, filename, size = file, header.Filename, header.Size
		contentType = header.Header.Get("Content-Type")
	} else {
		if size < 0 {
			return nil, fmt.Errorf("%w: Content-Length is required", e.ErrInvalidInput)
		}
		body = r.Body
	}
	if size > MaxDocumentSize {
		return nil, fmt.Errorf("%w: document exceeds %d bytes", e.ErrInvalidInput, MaxDocumentSize)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	updated, err := h.Contracts.UploadContractDocument(r.Context(), id, filename, size, contentType, body)
	if err != nil {
		return nil, err
	}
	return h.contractDTO(updated), nil
}

func (h *HTTPHandler) downloadDocument(w http.ResponseWriter, r *http.Request, params map[string]string) {
	id, err := pathID(params)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	obj, key, err := h.Contracts.OpenContractDocument(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer obj.Close()

	contentType := obj.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": baseName(key)}))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, obj); err != nil {
		h.logger.Warn("Contract document download interrupted", zap.String("document", key), zap.Error(err))
	}
}

func baseName(key string) string {
	if i := strings.LastIndex(key, "/"); i >= 0 {
		return key[i+1:]
	}
	return key
}
