package repository

// legacyStatuses maps the free-form status strings used by the system this
// service replaced onto the closed status enum. Consulted exclusively by
// cmd/migrate when importing pre-migration rows; nothing at runtime reads it.
var legacyStatuses = map[string]ProposalStatus{
	"Mới tạo":                StatusNew,
	"Chờ duyệt":              StatusNew,
	"Trưởng phòng đã duyệt":  StatusTeamApproved,
	"IT đã tư vấn":           StatusITConsulted,
	"Tài chính đã duyệt":     StatusFinanceReviewed,
	"Giám đốc đã duyệt":      StatusApproved,
	"Đã duyệt":               StatusApproved,
	"Đang mua hàng":          StatusApproved,
	"Hoàn tất":               StatusCompleted,
	"Đã hoàn thành":          StatusCompleted,
	"Từ chối":                StatusRejected,
	"Bị từ chối":             StatusRejected,
}

// TranslateLegacyStatus maps a pre-migration status string to its enum value.
func TranslateLegacyStatus(legacy string) (ProposalStatus, bool) {
	s, ok := legacyStatuses[legacy]
	return s, ok
}

// LegacyStatusMapping returns a copy of the full mapping for migration tools.
func LegacyStatusMapping() map[string]ProposalStatus {
	out := make(map[string]ProposalStatus, len(legacyStatuses))
	for k, v := range legacyStatuses {
		out[k] = v
	}
	return out
}
