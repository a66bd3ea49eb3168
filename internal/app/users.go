package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"facilityfix/api/internal/identity"
	"facilityfix/api/internal/rbac"
	"facilityfix/api/internal/repo"
)

type CreateUserInput struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Phone      string `json:"phone_number,omitempty"`
	Department string `json:"department,omitempty"`
	Role       string `json:"role"`
	BuildingID string `json:"building_id,omitempty"`
	UnitID     string `json:"unit_id,omitempty"`
}

type UpdateUserClaimsInput struct {
	Role       string `json:"role"`
	BuildingID string `json:"building_id,omitempty"`
	UnitID     string `json:"unit_id,omitempty"`
}

// CreateUser provisions an account on behalf of an admin. Tenants
// self-register through the auth endpoint; staff and admin accounts
// come in through here.
func (s *Service) CreateUser(ctx context.Context, subject identity.Subject, input CreateUserInput) (repo.User, error) {
	if err := requireRole(subject); err != nil {
		return repo.User{}, err
	}
	if !rbac.Can(subject.Role, rbac.ActionManageUsers) {
		return repo.User{}, errForbidden()
	}
	if rbac.Normalize(input.Role) == "" {
		return repo.User{}, errInvalidRole(fmt.Sprintf("unknown role %q", input.Role))
	}

	user, err := s.identity.Register(ctx, identity.RegisterRequest{
		Email:      input.Email,
		Password:   input.Password,
		FirstName:  input.FirstName,
		LastName:   input.LastName,
		Phone:      input.Phone,
		Department: input.Department,
		Role:       input.Role,
		BuildingID: input.BuildingID,
		UnitID:     input.UnitID,
	})
	if err != nil {
		if errors.Is(err, identity.ErrEmailTaken) {
			return repo.User{}, domainError(http.StatusConflict, "EMAIL_EXISTS", "Email already registered", nil)
		}
		return repo.User{}, errValidation(err.Error())
	}
	return user, nil
}

// ListUsers returns the active accounts holding a role, for the admin
// console's assignment pickers.
func (s *Service) ListUsers(ctx context.Context, subject identity.Subject, role string) ([]repo.User, error) {
	if err := requireRole(subject); err != nil {
		return nil, err
	}
	if !rbac.Can(subject.Role, rbac.ActionManageUsers) {
		return nil, errForbidden()
	}
	normalized := rbac.Normalize(role)
	if normalized == "" {
		return nil, errInvalidRole(fmt.Sprintf("unknown role %q", role))
	}
	users, err := s.identity.ListByRole(ctx, normalized)
	if err != nil {
		return nil, errDependency(err)
	}
	return users, nil
}

// UpdateUserClaims changes an account's role or building/unit
// attributes. Tokens already in flight keep their old claims until
// they are refreshed.
func (s *Service) UpdateUserClaims(ctx context.Context, subject identity.Subject, id string, input UpdateUserClaimsInput) error {
	if err := requireRole(subject); err != nil {
		return err
	}
	if !rbac.Can(subject.Role, rbac.ActionManageUsers) {
		return errForbidden()
	}
	role := rbac.Normalize(input.Role)
	if role == "" {
		return errInvalidRole(fmt.Sprintf("unknown role %q", input.Role))
	}

	err := s.identity.UpdateClaims(ctx, id, role, input.BuildingID, input.UnitID)
	if err != nil {
		if errors.Is(err, identity.ErrUnknownSubject) {
			return errNotFound("user not found")
		}
		return errDependency(err)
	}
	return nil
}
