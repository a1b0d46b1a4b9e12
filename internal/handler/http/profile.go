package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/labqa/qualitylab/internal/service"
	"github.com/labqa/qualitylab/pkg/httputil"
)

// ProfileHandler serves account profiles.
type ProfileHandler struct {
	profiles *service.ProfileService
	logger   *slog.Logger
}

func NewProfileHandler(profiles *service.ProfileService, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, logger: logger}
}

// UpdateProfileRequest is the JSON body of PUT /profile/{email}. Absent
// fields are left unchanged.
type UpdateProfileRequest struct {
	Role          *string    `json:"role" validate:"omitempty,oneof=administrator user"`
	Name          *string    `json:"name" validate:"omitempty,notblank,max=100"`
	BirthDate     *time.Time `json:"birth_date"`
	Sex           *string    `json:"sex" validate:"omitempty,max=16"`
	EyeCorrection *bool      `json:"eye_correction"`
	EyeCheckDate  *time.Time `json:"eye_check_date"`
	AvatarURL     *string    `json:"avatar_url" validate:"omitempty,url,max=512"`
	OldPassword   *string    `json:"old_password"`
	NewPassword   *string    `json:"new_password" validate:"omitempty,min=8"`
}

// Get handles GET /profile/{email}
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	email, ok := emailParam(w, r)
	if !ok {
		return
	}
	user, err := h.profiles.Get(r.Context(), actor, email)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, user)
}

// Update handles PUT /profile/{email}
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	email, ok := emailParam(w, r)
	if !ok {
		return
	}

	var req UpdateProfileRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	user, err := h.profiles.Update(r.Context(), actor, email, service.UpdateProfileInput{
		Role:          req.Role,
		Name:          req.Name,
		BirthDate:     req.BirthDate,
		Sex:           req.Sex,
		EyeCorrection: req.EyeCorrection,
		EyeCheckDate:  req.EyeCheckDate,
		AvatarURL:     req.AvatarURL,
		OldPassword:   req.OldPassword,
		NewPassword:   req.NewPassword,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, user)
}
