package access

import (
	"errors"
	"net/http"
)

// Denial is a terminal authorization outcome with the HTTP status it maps to.
type Denial struct {
	Status  int
	Code    string
	Message string
}

func (d *Denial) Error() string {
	return d.Message
}

var (
	ErrUnauthenticated         = &Denial{Status: http.StatusUnauthorized, Code: "unauthorized", Message: "authentication required"}
	ErrOrgContextMissing       = &Denial{Status: http.StatusBadRequest, Code: "organization_required", Message: "organization context required"}
	ErrOrgNotFound             = &Denial{Status: http.StatusNotFound, Code: "organization_not_found", Message: "organization not found"}
	ErrModuleNotFound          = &Denial{Status: http.StatusNotFound, Code: "module_not_found", Message: "module not found"}
	ErrOrgInactive             = &Denial{Status: http.StatusForbidden, Code: "organization_inactive", Message: "organization is inactive"}
	ErrOrgSuspended            = &Denial{Status: http.StatusForbidden, Code: "organization_suspended", Message: "organization is suspended"}
	ErrSubscriptionExpired     = &Denial{Status: http.StatusForbidden, Code: "subscription_expired", Message: "organization subscription has expired"}
	ErrWrongOrganization       = &Denial{Status: http.StatusForbidden, Code: "forbidden", Message: "access to this organization is not allowed"}
	ErrImpersonationRequired   = &Denial{Status: http.StatusForbidden, Code: "impersonation_required", Message: "super admins must enter support mode for this organization"}
	ErrPlatformOnly            = &Denial{Status: http.StatusForbidden, Code: "forbidden", Message: "super admin access is limited to platform routes"}
	ErrPlatformAccessRequired  = &Denial{Status: http.StatusForbidden, Code: "forbidden", Message: "platform access required"}
	ErrImpersonationRestricted = &Denial{Status: http.StatusForbidden, Code: "impersonation_restricted", Message: "action is not permitted in support mode"}
	ErrNoRole                  = &Denial{Status: http.StatusForbidden, Code: "forbidden", Message: "no role assigned"}
	ErrModuleDisabled          = &Denial{Status: http.StatusForbidden, Code: "module_disabled", Message: "module is not enabled for this organization"}
	ErrPermissionDenied        = &Denial{Status: http.StatusForbidden, Code: "forbidden", Message: "insufficient permissions"}
)

// ErrInvalidMatrix wraps every rejection of a submitted permission matrix.
var ErrInvalidMatrix = errors.New("invalid permission matrix")

// AsDenial extracts a Denial from err. Anything else is an unexpected failure.
func AsDenial(err error) (*Denial, bool) {
	var denial *Denial
	if errors.As(err, &denial) {
		return denial, true
	}
	return nil, false
}
