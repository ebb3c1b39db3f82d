package services

import (
	"net/http"

	goahttp "goa.design/goa/v3/http"

	"envelope/internal/config"
	"envelope/internal/domain"
	"envelope/internal/store"
)

// ContactService routes the public contact forms to one workflow per kind.
type ContactService struct {
	companies      store.CompanyRepository
	mux            goahttp.Muxer
	defaultCompany string
	workflows      map[domain.ContactKind]*Workflow
}

// NewContactService builds the company, product and solution workflows from cfg.
func NewContactService(st store.Store, mux goahttp.Muxer, hooks *Hooks, renderer Renderer, flash *FlashStore, cfg *config.ContactConfig) *ContactService {
	s := &ContactService{
		companies:      st,
		mux:            mux,
		defaultCompany: cfg.DefaultCompany,
		workflows:      make(map[domain.ContactKind]*Workflow, len(domain.ContactKinds)),
	}
	for _, kind := range domain.ContactKinds {
		s.workflows[kind] = &Workflow{
			Kind:          kind,
			Template:      "contact.html",
			HoneypotField: cfg.HoneypotField,
			Store:         st,
			Hooks:         hooks,
			Renderer:      renderer,
			Flash:         flash,
			NewForm:       PrefilledForm(cfg.Choices[string(kind)]),
			SuccessURL:    SuccessURLOrSelf(cfg.SuccessURL),
		}
	}
	return s
}

// Workflow returns the workflow serving kind.
func (s *ContactService) Workflow(kind domain.ContactKind) *Workflow {
	return s.workflows[kind]
}

// Mount registers the contact form routes.
func (s *ContactService) Mount() {
	for _, method := range []string{http.MethodGet, http.MethodPost} {
		s.mux.Handle(method, "/contact/", s.handleDefault)
		s.mux.Handle(method, "/contact/{slug}/", s.handler(domain.KindCompany))
		s.mux.Handle(method, "/contact/{slug}/product/", s.handler(domain.KindProduct))
		s.mux.Handle(method, "/contact/{slug}/solution/", s.handler(domain.KindSolution))
	}
}

func (s *ContactService) handleDefault(w http.ResponseWriter, r *http.Request) {
	if s.defaultCompany == "" {
		http.NotFound(w, r)
		return
	}
	s.serve(w, r, s.defaultCompany, domain.KindCompany)
}

func (s *ContactService) handler(kind domain.ContactKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.serve(w, r, s.mux.Vars(r)["slug"], kind)
	}
}

func (s *ContactService) serve(w http.ResponseWriter, r *http.Request, slug string, kind domain.ContactKind) {
	company, err := s.companies.GetCompanyBySlug(r.Context(), slug)
	if err != nil {
		writePageError(w, err)
		return
	}
	s.workflows[kind].Serve(w, r, company)
}
