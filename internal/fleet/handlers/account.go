package handlers

import (
	"net/http"

	"github.com/gartstein/fleet/internal/fleet/controller"
	"github.com/gartstein/fleet/internal/fleet/models"
	"github.com/gin-gonic/gin"
)

type companyRequest struct {
	Name           string `json:"name"`
	Slug           string `json:"slug"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	Address        string `json:"address"`
	PrimaryColor   string `json:"primary_color"`
	SecondaryColor string `json:"secondary_color"`
}

func (r companyRequest) input() controller.CompanyInput {
	return controller.CompanyInput{
		Name:           r.Name,
		Slug:           r.Slug,
		Email:          r.Email,
		Phone:          r.Phone,
		Address:        r.Address,
		PrimaryColor:   r.PrimaryColor,
		SecondaryColor: r.SecondaryColor,
	}
}

type registerRequest struct {
	Username    string      `json:"username"`
	Password    string      `json:"password"`
	Email       string      `json:"email"`
	FirstName   string      `json:"first_name"`
	LastName    string      `json:"last_name"`
	Phone       string      `json:"phone"`
	Role        models.Role `json:"role"`
	CompanySlug string      `json:"company_slug"`
	EmployeeID  string      `json:"employee_id"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type userPatch struct {
	Role     *models.Role `json:"role"`
	IsActive *bool        `json:"is_active"`
	Phone    *string      `json:"phone"`
}

type companyPatch struct {
	Name           *string `json:"name"`
	Slug           *string `json:"slug"`
	Email          *string `json:"email"`
	Phone          *string `json:"phone"`
	Address        *string `json:"address"`
	PrimaryColor   *string `json:"primary_color"`
	SecondaryColor *string `json:"secondary_color"`
}

func (h *Handler) registerCompany(c *gin.Context) {
	var req companyRequest
	if !bind(c, &req) {
		return
	}
	company, err := h.svc.Accounts.RegisterCompany(c.Request.Context(), req.input())
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, company)
}

func (h *Handler) register(c *gin.Context) {
	var req registerRequest
	if !bind(c, &req) {
		return
	}
	user, err := h.svc.Accounts.Register(c.Request.Context(), controller.RegisterInput{
		Username:    req.Username,
		Password:    req.Password,
		Email:       req.Email,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Phone:       req.Phone,
		Role:        req.Role,
		CompanySlug: req.CompanySlug,
		EmployeeID:  req.EmployeeID,
	})
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toUserView(user))
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if !bind(c, &req) {
		return
	}
	token, user, err := h.svc.Accounts.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "user": toUserView(user)})
}

func (h *Handler) me(c *gin.Context) {
	user, err := h.svc.Accounts.Me(c.Request.Context(), principal(c))
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, toUserView(user))
}

func (h *Handler) listUsers(c *gin.Context) {
	opts, ok := listOptions(c)
	if !ok {
		return
	}
	users, err := h.svc.Accounts.ListUsers(c.Request.Context(), principal(c), opts)
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, results(toUserViews(users)))
}

func (h *Handler) updateUser(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req userPatch
	if !bind(c, &req) {
		return
	}
	user, err := h.svc.Accounts.UpdateUser(c.Request.Context(), principal(c), &models.UserUpdate{
		ID:       id,
		Role:     req.Role,
		IsActive: req.IsActive,
		Phone:    req.Phone,
	})
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, toUserView(user))
}

func (h *Handler) updateCompany(c *gin.Context) {
	var req companyPatch
	if !bind(c, &req) {
		return
	}
	company, err := h.svc.Accounts.UpdateCompany(c.Request.Context(), principal(c), &models.CompanyUpdate{
		Name:           req.Name,
		Slug:           req.Slug,
		Email:          req.Email,
		Phone:          req.Phone,
		Address:        req.Address,
		PrimaryColor:   req.PrimaryColor,
		SecondaryColor: req.SecondaryColor,
	})
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, company)
}
