package domain

import "strings"

// ListRequest is the operator-facing listing query.
type ListRequest struct {
	TenantID string `json:"tenant_id" query:"tenant_id"`
	Status   string `json:"status" query:"status"`
	Limit    int    `json:"limit" query:"limit"`
	Offset   int    `json:"offset" query:"offset"`
}

// Filter converts the request; Status may hold several comma separated values.
func (r ListRequest) Filter() Filter {
	f := Filter{TenantID: strings.TrimSpace(r.TenantID), Limit: r.Limit, Offset: r.Offset}
	for _, s := range strings.Split(r.Status, ",") {
		if s = strings.TrimSpace(s); s != "" {
			f.Statuses = append(f.Statuses, Status(s))
		}
	}
	if f.Limit <= 0 {
		f.Limit = 50
	}
	return f
}

type DenyRequest struct {
	Reason string `json:"reason" form:"reason"`
}
