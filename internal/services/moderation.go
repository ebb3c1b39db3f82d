package services

import (
	"log"
	"net/http"
	"strconv"
	"time"

	goahttp "goa.design/goa/v3/http"

	"envelope/internal/domain"
	"envelope/internal/metrics"
	"envelope/internal/store"
)

// ListPage is the data handed to the moderation listing template.
type ListPage struct {
	Company     *domain.Company
	Kind        domain.ContactKind
	Page        *store.MessagePage
	StateFilter string
	States      []domain.State
	Now         time.Time
}

// DetailPage is the data handed to the moderation detail template.
type DetailPage struct {
	Company *domain.Company
	Kind    domain.ContactKind
	Message *domain.ContactMessage
	Now     time.Time
}

// StatePayload is the body of PATCH /api/v1/contact/{id}/state.
type StatePayload struct {
	State *int `json:"state"`
}

// ModerationService serves the staff read path and state changes.
type ModerationService struct {
	store    store.Store
	renderer Renderer
	mux      goahttp.Muxer
}

// NewModerationService creates a new moderation service
func NewModerationService(st store.Store, renderer Renderer, mux goahttp.Muxer) *ModerationService {
	return &ModerationService{store: st, renderer: renderer, mux: mux}
}

// Mount registers the moderation routes on the service's muxer.
func (s *ModerationService) Mount() {
	s.mux.Handle(http.MethodGet, "/moderation/{slug}/{kind}/", RequireStaff(false, s.handleList))
	s.mux.Handle(http.MethodGet, "/moderation/{slug}/{kind}/{id}/", RequireStaff(false, s.handleDetail))
	s.mux.Handle(http.MethodPatch, "/api/v1/contact/{id}/state", RequireStaff(true, s.handleUpdateState))
}

// resolve maps the slug and kind path parameters to a company and kind.
func (s *ModerationService) resolve(r *http.Request) (*domain.Company, domain.ContactKind, error) {
	vars := s.mux.Vars(r)
	kind := domain.ContactKind(vars["kind"])
	if !kind.Valid() {
		return nil, "", NotFound("unknown message kind %q", vars["kind"])
	}
	company, err := s.store.GetCompanyBySlug(r.Context(), vars["slug"])
	if err != nil {
		return nil, "", err
	}
	return company, kind, nil
}

func parseID(raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, NotFound("contact message %q not found", raw)
	}
	return uint(id), nil
}

func (s *ModerationService) handleList(w http.ResponseWriter, r *http.Request) {
	company, kind, err := s.resolve(r)
	if err != nil {
		writePageError(w, err)
		return
	}

	query := r.URL.Query()
	rawState := query.Get("state")
	state, err := domain.ParseStateFilter(rawState)
	if err != nil {
		writePageError(w, BadRequest("%s", err.Error()))
		return
	}
	page, err := strconv.Atoi(query.Get("page"))
	if err != nil || page < 1 {
		page = 1
	}

	result, err := s.store.ListMessages(r.Context(), store.ListQuery{
		CompanyID: company.ID,
		Kind:      kind,
		State:     state,
		Page:      page,
		PageSize:  store.DefaultPageSize,
	})
	if err != nil {
		writePageError(w, err)
		return
	}

	filter := ""
	if state != nil {
		filter = strconv.Itoa(int(*state))
	}
	renderPage(w, s.renderer, http.StatusOK, "moderation_list.html", &ListPage{
		Company:     company,
		Kind:        kind,
		Page:        result,
		StateFilter: filter,
		States:      domain.States,
		Now:         time.Now(),
	})
}

func (s *ModerationService) handleDetail(w http.ResponseWriter, r *http.Request) {
	company, kind, err := s.resolve(r)
	if err != nil {
		writePageError(w, err)
		return
	}
	id, err := parseID(s.mux.Vars(r)["id"])
	if err != nil {
		writePageError(w, err)
		return
	}
	msg, err := s.store.GetMessage(r.Context(), id)
	if err != nil {
		writePageError(w, err)
		return
	}
	// Product decision: a message is only visible under the company and kind
	// it was sent to. Removing this check lets staff open any message by id.
	if msg.CompanyID != company.ID || msg.Kind != kind {
		writePageError(w, NotFound("contact message %d not found", id))
		return
	}
	renderPage(w, s.renderer, http.StatusOK, "moderation_detail.html", &DetailPage{
		Company: company,
		Kind:    kind,
		Message: msg,
		Now:     time.Now(),
	})
}

func (s *ModerationService) handleUpdateState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := parseID(s.mux.Vars(r)["id"])
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	var p StatePayload
	if err := goahttp.RequestDecoder(r).Decode(&p); err != nil {
		writeError(ctx, w, BadRequest("invalid request body: %v", err))
		return
	}
	if p.State == nil {
		writeError(ctx, w, BadRequest("state is required"))
		return
	}
	state := domain.State(*p.State)
	if !state.Valid() {
		writeError(ctx, w, BadRequest("invalid state %d", *p.State))
		return
	}

	user, _ := UserFromContext(ctx)
	msg, err := s.store.UpdateMessageState(ctx, id, state, &user.ID)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	log.Printf("[CONTACT] State changed: id=%d, state=%s, by=%s", msg.ID, state, user.Username)
	metrics.RecordStateChange(state.String())
	writeJSON(ctx, w, http.StatusOK, msg)
}
