package controller

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/gartstein/fleet/internal/fleet/auth"
	"github.com/gartstein/fleet/internal/fleet/authz"
	"github.com/gartstein/fleet/internal/fleet/db"
	e "github.com/gartstein/fleet/internal/fleet/errors"
	"github.com/gartstein/fleet/internal/fleet/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	slugPattern  = regexp.MustCompile(`^[a-z0-9-]{3,50}$`)
	colorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)
)

// AccountRepository defines the storage interface for companies and users.
type AccountRepository interface {
	CreateCompany(ctx context.Context, company *models.Company) error
	GetCompany(ctx context.Context, id uuid.UUID) (*models.Company, error)
	GetCompanyBySlug(ctx context.Context, slug string) (*models.Company, error)
	CompanyExistsBySlug(ctx context.Context, slug string) (bool, error)
	UpdateCompany(ctx context.Context, update *models.CompanyUpdate) error

	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	ListUsers(ctx context.Context, q db.ListQuery) ([]models.User, error)
	UpdateUser(ctx context.Context, update *models.UserUpdate) error
	TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}

type TokenIssuer interface {
	Issue(user *models.User) (string, error)
}

// CompanyInput is the data accepted when a company is created.
type CompanyInput struct {
	Name           string
	Slug           string
	Email          string
	Phone          string
	Address        string
	PrimaryColor   string
	SecondaryColor string
}

// RegisterInput is the data accepted on user signup.
type RegisterInput struct {
	Username    string
	Password    string
	Email       string
	FirstName   string
	LastName    string
	Phone       string
	Role        models.Role
	CompanySlug string
	EmployeeID  string
}

// AccountService handles signup, login and company membership.
type AccountService struct {
	repo        AccountRepository
	tokens      TokenIssuer
	trialPeriod time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// NewAccountService builds the service. A non-positive trialPeriod falls
// back to models.DefaultTrialPeriod.
func NewAccountService(repo AccountRepository, tokens TokenIssuer, trialPeriod time.Duration, logger *zap.Logger) *AccountService {
	if trialPeriod <= 0 {
		trialPeriod = models.DefaultTrialPeriod
	}
	return &AccountService{
		repo:        repo,
		tokens:      tokens,
		trialPeriod: trialPeriod,
		logger:      logger.Named("account_service"),
		now:         time.Now,
	}
}

// RegisterCompany signs up a new tenant on a trial.
func (s *AccountService) RegisterCompany(ctx context.Context, in CompanyInput) (*models.Company, error) {
	company, err := createCompany(ctx, s.repo, in, models.TierTrial, s.trialPeriod, s.now())
	if err != nil {
		return nil, err
	}
	s.logger.Info("company registered",
		zap.String("company_id", company.ID.String()),
		zap.String("slug", company.Slug),
	)
	return company, nil
}

// Register creates a user. An unknown company slug leaves the user without
// a company; such a user passes no membership check.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	verr := &e.ValidationError{}
	if in.Username == "" {
		verr.Add("username", "This field is required.")
	}
	if in.Role == "" {
		in.Role = models.RoleDriver
	}
	if !in.Role.Valid() {
		verr.Add("role", fmt.Sprintf("%q is not a valid choice.", in.Role))
	}
	if in.Email != "" {
		if _, err := mail.ParseAddress(in.Email); err != nil {
			verr.Add("email", "Enter a valid email address.")
		}
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		var pwErr *e.ValidationError
		if !errors.As(err, &pwErr) {
			return nil, err
		}
		for field, msg := range pwErr.Fields {
			verr.Add(field, msg)
		}
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	user := &models.User{
		Username:     in.Username,
		Email:        in.Email,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Phone:        in.Phone,
		PasswordHash: hash,
		Role:         in.Role,
		IsActive:     true,
	}
	if in.EmployeeID != "" {
		user.EmployeeID = &in.EmployeeID
	}
	if in.CompanySlug != "" {
		company, err := s.repo.GetCompanyBySlug(ctx, in.CompanySlug)
		switch {
		case err == nil:
			user.CompanyID = &company.ID
		case errors.Is(err, e.ErrNotFound):
			s.logger.Warn("registration for unknown company", zap.String("slug", in.CompanySlug))
		default:
			return nil, fmt.Errorf("failed to resolve company: %w", err)
		}
	}

	if err := s.repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, e.ErrDuplicate) {
			return nil, e.NewValidationError("username", "A user with that username or employee id already exists.")
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// Login checks credentials and issues a token. Unknown users, wrong
// passwords and inactive accounts are indistinguishable to the caller.
func (s *AccountService) Login(ctx context.Context, username, password string) (string, *models.User, error) {
	user, err := s.repo.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, e.ErrNotFound) {
			return "", nil, e.ErrInvalidCredentials
		}
		return "", nil, fmt.Errorf("failed to load user: %w", err)
	}
	if err := auth.CheckPassword(user.PasswordHash, password); err != nil {
		return "", nil, err
	}
	if !user.IsActive {
		return "", nil, e.ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		return "", nil, fmt.Errorf("failed to issue token: %w", err)
	}
	now := s.now().UTC()
	if err := s.repo.TouchLastLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn("failed to record login", zap.Error(err), zap.String("user_id", user.ID.String()))
	} else {
		user.LastLoginAt = &now
	}
	return token, user, nil
}

// Me returns the caller with its company loaded.
func (s *AccountService) Me(ctx context.Context, pr *authz.Principal) (*models.User, error) {
	if !pr.Authenticated() {
		return nil, e.ErrUnauthenticated
	}
	return s.repo.GetUser(ctx, pr.UserID)
}

func (s *AccountService) ListUsers(ctx context.Context, pr *authz.Principal, opts ListOptions) ([]models.User, error) {
	if err := authz.IsOrgMember.Check(pr, authz.ActionRead); err != nil {
		return nil, err
	}
	q := opts.query(authz.IsOrgMember.ScopeFor(pr))
	q.Status, q.VehicleID = "", nil
	users, err := s.repo.ListUsers(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// UpdateUser lets an org admin change a member's role or active flag.
// Admins cannot demote or deactivate themselves.
func (s *AccountService) UpdateUser(ctx context.Context, pr *authz.Principal, update *models.UserUpdate) (*models.User, error) {
	if err := authz.IsOrgAdminOrReadOnly.Check(pr, authz.ActionUpdate); err != nil {
		return nil, err
	}
	user, err := s.repo.GetUser(ctx, update.ID)
	if err != nil {
		return nil, err
	}
	if err := authz.IsOrgAdminOrReadOnly.CheckObject(pr, authz.ActionUpdate, user); err != nil {
		return nil, err
	}

	verr := &e.ValidationError{}
	if update.Role != nil && !update.Role.Valid() {
		verr.Add("role", fmt.Sprintf("%q is not a valid choice.", *update.Role))
	}
	if user.ID == pr.UserID {
		if update.Role != nil && *update.Role != models.RoleAdmin {
			verr.Add("role", "You cannot change your own role.")
		}
		if update.IsActive != nil && !*update.IsActive {
			verr.Add("is_active", "You cannot deactivate yourself.")
		}
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateUser(ctx, update); err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return s.repo.GetUser(ctx, update.ID)
}

// UpdateCompany changes contact and branding details of the caller's
// company. The slug is immutable.
func (s *AccountService) UpdateCompany(ctx context.Context, pr *authz.Principal, update *models.CompanyUpdate) (*models.Company, error) {
	if err := authz.IsOrgAdminOrReadOnly.Check(pr, authz.ActionUpdate); err != nil {
		return nil, err
	}
	if err := requireCompany(pr); err != nil {
		return nil, err
	}
	company, err := s.repo.GetCompany(ctx, pr.Company())
	if err != nil {
		return nil, fmt.Errorf("failed to load company: %w", err)
	}

	verr := &e.ValidationError{}
	if update.Slug != nil && *update.Slug != company.Slug {
		verr.Add("slug", "Slug cannot be changed.")
	}
	update.Slug = nil
	if update.Name != nil && strings.TrimSpace(*update.Name) == "" {
		verr.Add("name", "This field may not be blank.")
	}
	if update.Email != nil && *update.Email != "" {
		if _, err := mail.ParseAddress(*update.Email); err != nil {
			verr.Add("email", "Enter a valid email address.")
		}
	}
	checkColor(verr, "primary_color", update.PrimaryColor)
	checkColor(verr, "secondary_color", update.SecondaryColor)
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	update.ID = company.ID
	if err := s.repo.UpdateCompany(ctx, update); err != nil {
		return nil, fmt.Errorf("failed to update company: %w", err)
	}
	return s.repo.GetCompany(ctx, company.ID)
}

func checkColor(verr *e.ValidationError, field string, value *string) {
	if value != nil && *value != "" && !colorPattern.MatchString(*value) {
		verr.Add(field, "Enter a hex color such as #1A2B3C.")
	}
}

type companyCreator interface {
	CreateCompany(ctx context.Context, company *models.Company) error
	CompanyExistsBySlug(ctx context.Context, slug string) (bool, error)
}

// createCompany validates in and creates the company with a trial of the
// given length starting at now.
func createCompany(ctx context.Context, repo companyCreator, in CompanyInput, tier models.PlanTier,
	trial time.Duration, now time.Time) (*models.Company, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Slug = strings.TrimSpace(in.Slug)

	verr := &e.ValidationError{}
	switch {
	case in.Name == "":
		verr.Add("name", "This field is required.")
	case len(in.Name) > 200:
		verr.Add("name", "Ensure this field has no more than 200 characters.")
	}
	if !slugPattern.MatchString(in.Slug) {
		verr.Add("slug", "Use 3 to 50 lowercase letters, digits or hyphens.")
	}
	if in.Email != "" {
		if _, err := mail.ParseAddress(in.Email); err != nil {
			verr.Add("email", "Enter a valid email address.")
		}
	}
	checkColor(verr, "primary_color", &in.PrimaryColor)
	checkColor(verr, "secondary_color", &in.SecondaryColor)
	switch tier {
	case models.TierTrial, models.TierBasic, models.TierProfessional, models.TierEnterprise:
	default:
		verr.Add("subscription_plan", fmt.Sprintf("%q is not a valid choice.", tier))
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	exists, err := repo.CompanyExistsBySlug(ctx, in.Slug)
	if err != nil {
		return nil, fmt.Errorf("failed to check slug existence: %w", err)
	}
	if exists {
		return nil, e.NewValidationError("slug", "company with this slug already exists.")
	}

	status := models.CompanyActive
	if tier == models.TierTrial {
		status = models.CompanyTrial
	}
	trialEnd := now.Add(trial)
	company := &models.Company{
		Name:               in.Name,
		Slug:               in.Slug,
		Email:              in.Email,
		Phone:              in.Phone,
		Address:            in.Address,
		PrimaryColor:       in.PrimaryColor,
		SecondaryColor:     in.SecondaryColor,
		SubscriptionPlan:   tier,
		SubscriptionStatus: status,
		TrialStartedAt:     now,
		TrialEndsAt:        &trialEnd,
		IsActive:           true,
	}
	if err := repo.CreateCompany(ctx, company); err != nil {
		if errors.Is(err, e.ErrDuplicateSlug) {
			return nil, e.NewValidationError("slug", "company with this slug already exists.")
		}
		return nil, fmt.Errorf("failed to create company: %w", err)
	}
	return company, nil
}
