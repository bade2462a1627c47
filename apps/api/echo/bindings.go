package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/eduavalia/backend/core"
)

var orderingParam = "ordering"

// orderableFields are the only columns ?ordering= may name. The field text is
// concatenated into ORDER BY clauses downstream, so anything outside this set
// is dropped here.
var orderableFields = map[string]bool{
	"name":       true,
	"created_at": true,
}

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	val, ok := data[orderingParam]
	if !ok || len(val) == 0 || val[0] == "" {
		return
	}

	for _, field := range strings.Split(val[0], ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if !orderableFields[field] {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// Request/Response serializers

type (
	LoginRequest struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		Token string `json:"token"`
	}

	// SuccessResponse is the uniform happy-path envelope; the error handler
	// produces its {"success": false, "error": ...} counterpart.
	SuccessResponse struct {
		Success bool        `json:"success"`
		Data    interface{} `json:"data,omitempty"`
	}
)

func (r *LoginRequest) Validate(ctx echo.Context, s *server) error {
	r.Email = core.CleanString(r.Email, true /* lower */)
	return s.deps.Validate.Struct(r)
}
