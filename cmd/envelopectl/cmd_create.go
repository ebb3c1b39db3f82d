package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"envelope/internal/database"
	"envelope/internal/domain"
	"envelope/internal/store"
	"envelope/internal/util"
)

var (
	userUsername string
	userEmail    string
	userPassword string
	userFullName string
	userStaff    bool
	userAdmin    bool

	companySlug  string
	companyName  string
	companyEmail string
)

// createUserCmd creates a login for moderators
var createUserCmd = &cobra.Command{
	Use:   "create-user",
	Short: "Create a user",
	Long: `Create a user account. Staff and admin users can read and moderate
contact messages.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, db, err := openStore()
		if err != nil {
			return err
		}
		defer database.Close(db)
		return createUser(cmd.Context(), st, cmd.OutOrStdout(), userParams{
			Username: userUsername,
			Email:    userEmail,
			Password: userPassword,
			FullName: userFullName,
			Staff:    userStaff,
			Admin:    userAdmin,
		})
	},
}

// createCompanyCmd registers a contact addressee
var createCompanyCmd = &cobra.Command{
	Use:   "create-company",
	Short: "Register a company",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, db, err := openStore()
		if err != nil {
			return err
		}
		defer database.Close(db)
		return createCompany(cmd.Context(), st, cmd.OutOrStdout(), companySlug, companyName, companyEmail)
	},
}

func init() {
	f := createUserCmd.Flags()
	f.StringVar(&userUsername, "username", "", "login name (required)")
	f.StringVar(&userEmail, "email", "", "email address (required)")
	f.StringVar(&userPassword, "password", "", "initial password (required)")
	f.StringVar(&userFullName, "full-name", "", "display name")
	f.BoolVar(&userStaff, "staff", false, "grant moderation rights")
	f.BoolVar(&userAdmin, "admin", false, "grant admin rights")
	_ = createUserCmd.MarkFlagRequired("username")
	_ = createUserCmd.MarkFlagRequired("email")
	_ = createUserCmd.MarkFlagRequired("password")

	f = createCompanyCmd.Flags()
	f.StringVar(&companySlug, "slug", "", "URL slug (required)")
	f.StringVar(&companyName, "name", "", "display name (required)")
	f.StringVar(&companyEmail, "email", "", "address notified of new messages")
	_ = createCompanyCmd.MarkFlagRequired("slug")
	_ = createCompanyCmd.MarkFlagRequired("name")
}

type userParams struct {
	Username string
	Email    string
	Password string
	FullName string
	Staff    bool
	Admin    bool
}

func createUser(ctx context.Context, users store.UserRepository, out io.Writer, p userParams) error {
	username := strings.TrimSpace(p.Username)
	email := strings.ToLower(strings.TrimSpace(p.Email))
	if username == "" || email == "" {
		return fmt.Errorf("username and email are required")
	}
	if len(p.Password) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}

	hashed, err := util.HashPassword(p.Password)
	if err != nil {
		return err
	}
	user := &domain.User{
		Username:       username,
		Email:          email,
		HashedPassword: hashed,
		IsActive:       true,
		IsStaff:        p.Staff || p.Admin,
		IsAdmin:        p.Admin,
	}
	if name := strings.TrimSpace(p.FullName); name != "" {
		user.FullName = &name
	}
	if err := users.CreateUser(ctx, user); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	fmt.Fprintf(out, "User created: %s (id=%d, staff=%v, admin=%v)\n", user.Username, user.ID, user.IsStaff, user.IsAdmin)
	return nil
}

func createCompany(ctx context.Context, companies store.CompanyRepository, out io.Writer, slug, name, email string) error {
	slug = strings.TrimSpace(slug)
	name = strings.TrimSpace(name)
	if slug == "" || name == "" {
		return fmt.Errorf("slug and name are required")
	}
	c := &domain.Company{Slug: slug, Name: name}
	if email = strings.TrimSpace(email); email != "" {
		c.Email = &email
	}
	if err := companies.CreateCompany(ctx, c); err != nil {
		return fmt.Errorf("failed to create company: %w", err)
	}

	fmt.Fprintf(out, "Company created: %s (id=%d)\n", c.Slug, c.ID)
	fmt.Fprintf(out, "Contact form: /contact/%s/\n", c.Slug)
	return nil
}
